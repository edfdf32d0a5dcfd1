package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/config"
	"github.com/guttosm/b3lake/internal/ingestion"
	"github.com/guttosm/b3lake/internal/remote"
	"github.com/guttosm/b3lake/internal/tidy"
	"github.com/guttosm/b3lake/internal/yahoo"
)

// storeOpener is an indirection for unit testing; builds the S3 backed store by default.
var storeOpener = func(ctx context.Context, cfg config.S3Config) (remote.ObjectStore, error) {
	s, err := remote.NewS3Store(ctx, remote.S3Options{
		Region:         cfg.Region,
		Endpoint:       cfg.Endpoint,
		ForcePathStyle: cfg.ForcePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewSyncer builds a checked transfer client for the configured object store.
//
// Returns:
//   - *remote.Syncer: ready for uploads and downloads.
//   - error: ErrCredentials when no AWS credentials resolve, ErrConfig otherwise.
func NewSyncer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*remote.Syncer, error) {
	store, err := storeOpener(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	return remote.NewSyncer(store, log), nil
}

// NewPipeline assembles an ingestion pipeline from configuration.
//
// Parameters:
//   - src: market data source; nil selects the Yahoo client from cfg.Yahoo.
//   - upload: whether this run publishes to the object store. The store (and
//     its credential check) is only built when true.
//
// Returns:
//   - *ingestion.Pipeline: the wired pipeline.
//   - func(): cleanup closing the manifest connection.
//   - error: any initialization error, already categorized with apperr.
func NewPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger, src ingestion.Fetcher, upload bool) (*ingestion.Pipeline, func(), error) {
	if src == nil {
		src = yahoo.New(cfg.Yahoo.BaseURL, cfg.Yahoo.Timeout, log)
	}

	p := &ingestion.Pipeline{
		Fetcher:    src,
		Normalizer: tidy.Normalizer{Log: log},
		Log:        log,
	}
	if upload {
		syncer, err := NewSyncer(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		p.Uploader = syncer
	}

	repo, conn, err := manifestOpener(cfg.Manifest)
	if err != nil {
		return nil, nil, err
	}
	p.Manifest = repo

	cleanup := func() {
		if conn != nil {
			_ = conn.Close()
		}
	}
	return p, cleanup, nil
}
