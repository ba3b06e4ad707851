package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// DefaultConcurrency is the number of parallel downloads during a sync.
const DefaultConcurrency = 4

// Fetcher opens an object of the content bucket.
type Fetcher interface {
	Fetch(ctx context.Context, object string) (io.ReadCloser, error)
}

// HTTPFetcher reads objects from a public bucket URL.
type HTTPFetcher struct {
	baseURL string
	client  *httpclient.Client
}

// NewHTTPFetcher returns a fetcher for baseURL, e.g. https://storage.googleapis.com/<bucket>.
func NewHTTPFetcher(baseURL string, client *httpclient.Client) *HTTPFetcher {
	if client == nil {
		client = httpclient.New(nil)
	}
	return &HTTPFetcher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, object string) (io.ReadCloser, error) {
	resp, err := f.client.Get(ctx, f.baseURL+"/"+object)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &httpclient.StatusError{URL: f.baseURL + "/" + object, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// GCSFetcher reads objects through the Cloud Storage JSON API without credentials.
type GCSFetcher struct {
	bucket string
	svc    *storage.Service
}

// NewGCSFetcher creates an unauthenticated Cloud Storage client for bucket.
// Extra options are passed to the service, e.g. option.WithEndpoint.
func NewGCSFetcher(ctx context.Context, bucket string, client *httpclient.Client, opts ...option.ClientOption) (*GCSFetcher, error) {
	base := []option.ClientOption{option.WithoutAuthentication()}
	if client != nil {
		base = append(base, option.WithHTTPClient(client.HTTPClient()))
	}
	svc, err := storage.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, errors.New(fmt.Errorf("create storage service: %w", err)).
			Component("catalog").
			Category(errors.CategoryConfiguration).
			Context("bucket", bucket).
			Build()
	}
	return &GCSFetcher{bucket: bucket, svc: svc}, nil
}

// Fetch implements Fetcher.
func (f *GCSFetcher) Fetch(ctx context.Context, object string) (io.ReadCloser, error) {
	resp, err := f.svc.Objects.Get(f.bucket, object).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &httpclient.StatusError{URL: "gs://" + f.bucket + "/" + object, StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return nil, err
	}
	return resp.Body, nil
}

// SyncReport lists what a sync did per object.
type SyncReport struct {
	Downloaded []string
	Skipped    []string
	Failed     []string
}

// Mirror copies bucket objects into a local directory.
type Mirror struct {
	root        string
	files       []string
	fetcher     Fetcher
	concurrency int
}

// NewMirror returns a mirror of files into root.
func NewMirror(root string, files []string, fetcher Fetcher) *Mirror {
	return &Mirror{root: root, files: files, fetcher: fetcher, concurrency: DefaultConcurrency}
}

// Sync downloads every object not yet present locally. A failing object is
// logged and reported, it never aborts the others. The returned error is set
// only when ctx ends before the sync completes.
func (m *Mirror) Sync(ctx context.Context) (*SyncReport, error) {
	start := time.Now()
	report := &SyncReport{}
	var mu sync.Mutex
	record := func(list *[]string, object string) {
		mu.Lock()
		*list = append(*list, object)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, object := range m.files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if !filepath.IsLocal(object) {
				GetLogger().Warn("refusing object outside the mirror", logger.String("object", object))
				record(&report.Failed, object)
				return nil
			}
			local := filepath.Join(m.root, filepath.FromSlash(object))
			if _, err := os.Stat(local); err == nil {
				GetLogger().Debug("skipping existing object", logger.String("object", object))
				record(&report.Skipped, object)
				return nil
			}
			if err := m.download(gctx, object, local); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				GetLogger().Warn("failed to download object",
					logger.String("object", object),
					logger.Error(err))
				record(&report.Failed, object)
				return nil
			}
			record(&report.Downloaded, object)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	GetLogger().Info("content sync finished",
		logger.Int("downloaded", len(report.Downloaded)),
		logger.Int("skipped", len(report.Skipped)),
		logger.Int("failed", len(report.Failed)),
		logger.Duration("duration", time.Since(start)))

	if err != nil {
		return report, errors.New(err).
			Component("catalog").
			Category(errors.CategoryContentFetch).
			Build()
	}
	return report, nil
}

// download writes object to a temp file and renames it into place so a
// partial download never looks like a mirrored file.
func (m *Mirror) download(ctx context.Context, object, local string) error {
	body, err := m.fetcher.Fetch(ctx, object)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), local)
}
