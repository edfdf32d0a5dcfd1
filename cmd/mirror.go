package main

import (
	"context"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/config"
	"github.com/guttosm/b3lake/internal/app"
	"github.com/guttosm/b3lake/internal/apperr"
	"github.com/guttosm/b3lake/internal/remote"
)

// newSyncer is an indirection for tests; builds the S3 backed syncer by default.
var newSyncer = app.NewSyncer

func runUpload(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer, log zerolog.Logger) error {
	fs := newFlagSet("upload", stdout)
	localRoot := fs.String("local-root", filepath.Join(cfg.Data.Dir, "refined"), "Local root dir to upload")
	prefix := fs.String("prefix", "refined", "S3 prefix to upload into")
	bucket := fs.String("bucket", cfg.S3.Bucket, "S3 bucket name (defaults to S3_BUCKET)")
	dryRun := fs.Bool("dry-run", false, "List files that would be uploaded and exit")
	parallel := fs.Int("parallel", 0, "Objects transferred concurrently (0 or 1 = sequential)")
	if err := parseFlags(fs, args); err != nil {
		return helpOK(err)
	}
	if *bucket == "" {
		return apperr.Errorf(apperr.ErrUsage, "S3 bucket not specified. Set --bucket or S3_BUCKET")
	}

	// a dry run never touches the store, so no credentials are needed
	syncer := remote.NewSyncer(nil, log)
	if !*dryRun {
		var err error
		if syncer, err = newSyncer(ctx, cfg, log); err != nil {
			return err
		}
	}
	syncer.Parallelism = *parallel

	n, err := syncer.UploadTree(ctx, *localRoot, *bucket, *prefix, *dryRun)
	if err != nil {
		return apperr.Wrap(apperr.ErrRuntime, err)
	}
	log.Info().Int("files", n).Str("bucket", *bucket).Str("prefix", *prefix).Bool("dry_run", *dryRun).Msg("upload finished")
	return nil
}

func runDownload(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer, log zerolog.Logger) error {
	fs := newFlagSet("download", stdout)
	prefix := fs.String("prefix", "refined", "S3 prefix to download")
	outDir := fs.String("out-dir", cfg.Data.Dir, "Local output root dir")
	bucket := fs.String("bucket", cfg.S3.Bucket, "S3 bucket name (defaults to S3_BUCKET)")
	dryRun := fs.Bool("dry-run", false, "List objects that would be downloaded and exit")
	parallel := fs.Int("parallel", 0, "Objects transferred concurrently (0 or 1 = sequential)")
	if err := parseFlags(fs, args); err != nil {
		return helpOK(err)
	}
	if *bucket == "" {
		return apperr.Errorf(apperr.ErrUsage, "S3 bucket not specified. Set --bucket or S3_BUCKET")
	}

	syncer, err := newSyncer(ctx, cfg, log)
	if err != nil {
		return err
	}
	syncer.Parallelism = *parallel

	n, err := syncer.DownloadPrefix(ctx, *bucket, *prefix, *outDir, *dryRun)
	if err != nil {
		return apperr.Wrap(apperr.ErrRuntime, err)
	}
	log.Info().Int("objects", n).Str("bucket", *bucket).Str("prefix", *prefix).Bool("dry_run", *dryRun).Msg("download finished")
	return nil
}
