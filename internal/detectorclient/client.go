// Package detectorclient talks to a detector running as a separate service.
//
// Both endpoints take the audio file as the multipart field "audio":
//
//	POST {base}/analyze     -> {"detections": [{"scientific_name", "common_name", "confidence", "start", "end"}]}
//	POST {base}/embeddings  -> {"embeddings": [[float, ...], ...]}
package detectorclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

var (
	_ identify.Detector           = (*Client)(nil)
	_ identify.EmbeddingExtractor = (*Client)(nil)
)

// Client is a remote identify.Detector and identify.EmbeddingExtractor.
type Client struct {
	baseURL string
	overlap float64
	http    *httpclient.Client
}

// New returns a client for the service at baseURL.
func New(baseURL string, overlap float64, hc *httpclient.Client) *Client {
	if hc == nil {
		hc = httpclient.New(nil)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		overlap: overlap,
		http:    hc,
	}
}

// Detect uploads the file to /analyze.
func (c *Client) Detect(ctx context.Context, path string) ([]identify.Detection, error) {
	obj, err := c.upload(ctx, "/analyze", path)
	if err != nil {
		return nil, err
	}
	items, err := obj.GetObjectArray("detections")
	if err != nil {
		return nil, c.parseError("/analyze", err)
	}

	detections := make([]identify.Detection, 0, len(items))
	for i, item := range items {
		d, err := parseDetection(item)
		if err != nil {
			return nil, c.parseError("/analyze", fmt.Errorf("detection %d: %w", i, err))
		}
		detections = append(detections, d)
	}
	return detections, nil
}

// Embeddings uploads the file to /embeddings.
func (c *Client) Embeddings(ctx context.Context, path string) ([][]float32, error) {
	obj, err := c.upload(ctx, "/embeddings", path)
	if err != nil {
		return nil, err
	}
	rows, err := obj.GetValueArray("embeddings")
	if err != nil {
		return nil, c.parseError("/embeddings", err)
	}

	vectors := make([][]float32, 0, len(rows))
	for i, row := range rows {
		values, err := row.Array()
		if err != nil {
			return nil, c.parseError("/embeddings", fmt.Errorf("row %d: %w", i, err))
		}
		vec := make([]float32, len(values))
		for j, v := range values {
			f, err := v.Float64()
			if err != nil {
				return nil, c.parseError("/embeddings", fmt.Errorf("row %d column %d: %w", i, j, err))
			}
			vec[j] = float32(f)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (c *Client) upload(ctx context.Context, endpoint, path string) (*jason.Object, error) {
	f, err := os.Open(path) //nolint:gosec // G304: scratch file created by the pipeline
	if err != nil {
		return nil, errors.New(err).
			Component("detectorclient").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer f.Close()

	url := c.baseURL + endpoint
	start := time.Now()
	body, err := c.http.PostMultipart(ctx, url,
		map[string]string{"overlap": strconv.FormatFloat(c.overlap, 'f', -1, 64)},
		httpclient.Part{Field: "audio", FileName: filepath.Base(path), Content: f})
	if err != nil {
		return nil, errors.New(err).
			Component("detectorclient").
			Category(errors.CategoryNetwork).
			Context("endpoint", endpoint).
			Timing("remote_detect", time.Since(start)).
			Build()
	}

	GetLogger().Debug("remote detector responded",
		logger.String("endpoint", endpoint),
		logger.Int("bytes", len(body)),
		logger.Duration("duration", time.Since(start)))

	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, c.parseError(endpoint, err)
	}
	return obj, nil
}

func parseDetection(item *jason.Object) (identify.Detection, error) {
	name, err := item.GetString("scientific_name")
	if err != nil {
		return identify.Detection{}, err
	}
	confidence, err := item.GetFloat64("confidence")
	if err != nil {
		return identify.Detection{}, err
	}
	d := identify.Detection{ScientificName: name, Confidence: confidence}
	// optional fields
	d.CommonName, _ = item.GetString("common_name")
	d.Start, _ = item.GetFloat64("start")
	d.End, _ = item.GetFloat64("end")
	return d, nil
}

func (c *Client) parseError(endpoint string, err error) error {
	return errors.New(fmt.Errorf("malformed response from %s: %w", endpoint, err)).
		Component("detectorclient").
		Category(errors.CategoryFileParsing).
		Context("endpoint", endpoint).
		Build()
}
