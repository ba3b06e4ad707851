package analysis

import (
	"context"

	"github.com/birdwatch-app/birdwatch-go/internal/catalog"
	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// SyncRecorder receives per-object sync counts.
type SyncRecorder interface {
	RecordSync(downloaded, skipped, failed int)
}

// NewFetcher returns the object storage client selected by content.backend.
func NewFetcher(ctx context.Context, settings *conf.Settings, hc *httpclient.Client) (catalog.Fetcher, error) {
	switch settings.Content.Backend {
	case conf.ContentBackendHTTP:
		return catalog.NewHTTPFetcher(settings.Content.BucketURL, hc), nil
	case conf.ContentBackendGCS:
		return catalog.NewGCSFetcher(ctx, settings.Content.Bucket, hc)
	default:
		return nil, errors.Newf("unknown content backend %q", settings.Content.Backend).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// SyncContent mirrors the configured catalog objects into the data
// directory. Objects already present are left alone.
func SyncContent(ctx context.Context, settings *conf.Settings, hc *httpclient.Client, recorder SyncRecorder) (*catalog.SyncReport, error) {
	fetcher, err := NewFetcher(ctx, settings, hc)
	if err != nil {
		return nil, err
	}

	mirror := catalog.NewMirror(settings.Content.DataDir, settings.Content.Files, fetcher)
	report, err := mirror.Sync(ctx)
	if report != nil && recorder != nil {
		recorder.RecordSync(len(report.Downloaded), len(report.Skipped), len(report.Failed))
	}
	if err != nil {
		return report, err
	}

	GetLogger().Info("content sync finished",
		logger.String("backend", settings.Content.Backend),
		logger.Int("downloaded", len(report.Downloaded)),
		logger.Int("skipped", len(report.Skipped)),
		logger.Int("failed", len(report.Failed)))
	return report, nil
}
