package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/config"
	"github.com/guttosm/b3lake/internal/app"
	"github.com/guttosm/b3lake/internal/apperr"
	"github.com/guttosm/b3lake/internal/ingestion"
	"github.com/guttosm/b3lake/internal/partition"
)

// runIngest fetches bars for the requested tickers and publishes one
// partition per trade day.
//
// Behavior:
//   - Positional arguments are tickers; without them the universe file, then
//     the built-in universe is used.
//   - --date and --start-date/--end-date override --period.
//   - Default mode writes locally and uploads only when S3_BUCKET is set.
func runIngest(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer, log zerolog.Logger) error {
	fs := newFlagSet("ingest", stdout)
	period := fs.String("period", "1mo", "e.g. 1d, 5d, 1mo, 3mo, 1y (allowed: max, ytd)")
	interval := fs.String("interval", "1d", "data interval, e.g. 1m, 5m, 60m, 1d (intraday may have limited history)")
	startDate := fs.String("start-date", "", "Start date inclusive in YYYY-MM-DD. Overrides --period")
	endDate := fs.String("end-date", "", "End date inclusive in YYYY-MM-DD. Defaults to --start-date")
	date := fs.StringP("date", "d", "", "Single date YYYY-MM-DD. Mutually exclusive with --start-date/--end-date")
	local := fs.Bool("local", false, "Write locally only (no S3 upload)")
	remoteOnly := fs.Bool("s3-only", false, "Upload to S3 only, do not keep the local copy")
	both := fs.Bool("both", false, "Write locally and upload to S3")
	prefix := fs.String("prefix", cfg.S3.Prefix, "S3 prefix and local sub directory")
	outDir := fs.String("out-dir", cfg.Data.Dir, "Local output root dir")
	continueOnError := fs.Bool("continue-on-error", false, "Skip partitions that fail to write and report them at the end")
	parallel := fs.Int("parallel", 0, "Partitions written concurrently (0 or 1 = sequential)")
	universe := fs.String("universe", cfg.UniverseFile, "YAML ticker universe used when no tickers are given")
	fromFile := fs.String("from-file", "", "Read bars from a CSV export instead of Yahoo Finance")
	csvSep := fs.String("csv-sep", ",", "Field delimiter of --from-file (';' accepts decimal commas)")
	if err := parseFlags(fs, args); err != nil {
		return helpOK(err)
	}

	mode, err := ingestion.ResolveMode(*local, *remoteOnly, *both)
	if err != nil {
		return err
	}
	dates, err := ingestion.ResolveDates(*date, *startDate, *endDate)
	if err != nil {
		return err
	}
	if err := ingestion.ValidateInterval(*interval); err != nil {
		return err
	}
	if dates == nil {
		if err := ingestion.ValidatePeriod(*period); err != nil {
			return err
		}
	}
	if *date != "" {
		if h := ingestion.Holiday(dates.Start); h != "" {
			log.Warn().Str("dt", *date).Str("reason", h).Msg("requested date is not a B3 session; expect an empty result")
		}
	}

	tickers := fs.Args()
	if len(tickers) == 0 {
		if *universe != "" {
			if tickers, err = config.LoadUniverse(*universe); err != nil {
				return apperr.Wrap(apperr.ErrConfig, err)
			}
		} else {
			tickers = config.DefaultTickers
		}
	}

	var src ingestion.Fetcher
	if *fromFile != "" {
		sep, size := utf8.DecodeRuneInString(*csvSep)
		if size == 0 || size != len(*csvSep) {
			return apperr.Errorf(apperr.ErrUsage, "--csv-sep must be a single character, got %q", *csvSep)
		}
		src = &ingestion.FileSource{Path: *fromFile, Comma: sep}
	}

	_, upload := mode.Targets(cfg.S3.Bucket)
	if upload {
		if err := cfg.RequireBucket(); err != nil {
			return apperr.Wrap(apperr.ErrConfig, err)
		}
	}
	if err := partition.CheckEngine(); err != nil {
		return apperr.Wrap(apperr.ErrConfig, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, cleanup, err := app.NewPipeline(ctx, cfg, log, src, upload)
	if err != nil {
		return err
	}
	defer cleanup()

	sum, err := p.Run(ctx, ingestion.Options{
		Tickers:         tickers,
		Period:          *period,
		Interval:        *interval,
		Dates:           dates,
		Mode:            mode,
		Prefix:          *prefix,
		OutDir:          *outDir,
		Bucket:          cfg.S3.Bucket,
		ContinueOnError: *continueOnError,
		Parallelism:     *parallel,
	})
	if err != nil {
		return err
	}
	log.Info().Str("run_id", sum.RunID).Int("partitions", len(sum.Partitions)).Int("uploaded", sum.Uploaded).
		Msg("ingestion completed successfully")
	return nil
}
