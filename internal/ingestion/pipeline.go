package ingestion

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/internal/apperr"
	"github.com/guttosm/b3lake/internal/partition"
	"github.com/guttosm/b3lake/internal/remote"
	"github.com/guttosm/b3lake/internal/source"
	"github.com/guttosm/b3lake/internal/storage"
	"github.com/guttosm/b3lake/internal/tidy"
	"github.com/guttosm/b3lake/internal/yahoo"
)

// Mode selects where partitions end up.
type Mode int

const (
	// ModeAuto writes locally and uploads only when a bucket is configured.
	ModeAuto Mode = iota
	// ModeLocal writes locally and never uploads.
	ModeLocal
	// ModeRemoteOnly uploads and removes the local copy afterwards.
	ModeRemoteOnly
	// ModeBoth writes locally and always uploads.
	ModeBoth
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeRemoteOnly:
		return "s3-only"
	case ModeBoth:
		return "both"
	default:
		return "auto"
	}
}

// ResolveMode maps the --local, --s3-only and --both flags to a Mode.
// At most one flag may be set.
func ResolveMode(local, remoteOnly, both bool) (Mode, error) {
	switch {
	case remoteOnly && local:
		return ModeAuto, apperr.Errorf(apperr.ErrUsage, "--s3-only cannot be used together with --local")
	case both && (local || remoteOnly):
		return ModeAuto, apperr.Errorf(apperr.ErrUsage, "--both cannot be combined with --local or --s3-only")
	case remoteOnly:
		return ModeRemoteOnly, nil
	case local:
		return ModeLocal, nil
	case both:
		return ModeBoth, nil
	default:
		return ModeAuto, nil
	}
}

// Targets reports whether the local copy is kept and whether partitions are uploaded.
func (m Mode) Targets(bucket string) (keepLocal, upload bool) {
	switch m {
	case ModeLocal:
		return true, false
	case ModeRemoteOnly:
		return false, true
	case ModeBoth:
		return true, true
	default:
		return true, bucket != ""
	}
}

// Fetcher supplies raw bars for a request.
type Fetcher interface {
	Fetch(ctx context.Context, req yahoo.Request) (source.Table, error)
}

// Uploader publishes one local file under bucket/key.
type Uploader interface {
	UploadChecked(ctx context.Context, path, bucket, key string) error
}

// Options configures a single ingestion run.
type Options struct {
	Tickers         []string
	Period          string
	Interval        string
	Dates           *DateRange // overrides Period when set
	Mode            Mode
	Prefix          string
	OutDir          string
	Bucket          string
	ContinueOnError bool
	Parallelism     int
}

// Summary describes what a run produced.
type Summary struct {
	RunID      string
	Rows       int
	Partitions []partition.Written
	Uploaded   int
}

// Pipeline wires the fetch, normalize, write and upload stages.
//
// Fields:
//   - Fetcher: upstream bars.
//   - Normalizer: reshapes the source into canonical rows.
//   - Uploader: checked uploads; may be nil when nothing is ever uploaded.
//   - Manifest: records published partitions; nil disables bookkeeping.
//   - Log: run diagnostics.
type Pipeline struct {
	Fetcher    Fetcher
	Normalizer tidy.Normalizer
	Uploader   Uploader
	Manifest   storage.PartitionsRepository
	Log        zerolog.Logger

	now func() time.Time
}

// Run executes one ingestion.
//
// Behavior:
//   - Validation happens before any I/O.
//   - No source data, or nothing left after normalization, is logged and
//     returns a zero Summary with a nil error.
//   - Each partition is written locally first, then uploaded in key order.
//     A failed upload never removes or rolls back the local file.
//   - ModeRemoteOnly deletes the local file after its upload succeeds.
//   - With ContinueOnError, failed partitions are skipped and reported together
//     once the remaining partitions are done.
//
// Returns:
//   - Summary: run id, canonical row count and the partitions published.
//   - error: categorized with apperr so callers can map it to an exit code.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	log := p.Log.With().Str("run_id", sum.RunID).Logger()

	if err := ValidateInterval(opts.Interval); err != nil {
		return sum, err
	}
	if opts.Dates == nil {
		if err := ValidatePeriod(opts.Period); err != nil {
			return sum, err
		}
		if msg := IntervalPeriodWarning(opts.Interval, opts.Period); msg != "" {
			log.Warn().Msg(msg)
		}
	} else if len(BusinessDays(*opts.Dates)) == 0 {
		log.Warn().Str("start", opts.Dates.Start.Format(DateLayout)).Msg("no B3 sessions in the requested dates; expect an empty result")
	}
	if p.Fetcher == nil {
		return sum, apperr.Errorf(apperr.ErrConfig, "no market data source configured")
	}

	keepLocal, upload := opts.Mode.Targets(opts.Bucket)
	if upload {
		if opts.Bucket == "" {
			return sum, apperr.Errorf(apperr.ErrConfig, "S3_BUCKET not set")
		}
		if p.Uploader == nil {
			return sum, apperr.Errorf(apperr.ErrConfig, "no object store configured for upload")
		}
	}

	req := yahoo.Request{Tickers: opts.Tickers, Period: opts.Period, Interval: opts.Interval}
	if opts.Dates != nil {
		req.Start, req.End = &opts.Dates.Start, &opts.Dates.End
	}
	log.Info().Int("tickers", len(opts.Tickers)).Str("period", opts.Period).Str("interval", opts.Interval).
		Str("mode", opts.Mode.String()).Msg("ingestion start")

	src, err := p.Fetcher.Fetch(ctx, req)
	if err != nil {
		return sum, apperr.Wrap(apperr.ErrRuntime, err)
	}
	if src == nil || src.Rows() == 0 {
		log.Warn().Msg("no data returned; possible causes: unknown tickers, unsupported interval/period or no sessions in range")
		return sum, nil
	}

	tbl, err := p.Normalizer.Normalize(src, opts.Tickers)
	if err != nil {
		return sum, apperr.Wrap(apperr.ErrRuntime, fmt.Errorf("normalize: %w", err))
	}
	if tbl.Empty() {
		log.Warn().Msg("tidy table empty")
		return sum, nil
	}
	sum.Rows = tbl.Len()

	w := &partition.Writer{
		Root:            opts.OutDir,
		Log:             log,
		ContinueOnError: opts.ContinueOnError,
		Parallelism:     opts.Parallelism,
	}
	written, writeErr := w.WritePartitions(ctx, tbl, opts.Prefix)
	if writeErr != nil && !opts.ContinueOnError {
		sum.Partitions = written
		return sum, apperr.Wrap(apperr.ErrRuntime, writeErr)
	}

	for _, part := range written {
		entry := storage.Entry{
			Prefix:   opts.Prefix,
			Path:     part.Path,
			RowCount: part.Rows,
			ByteSize: part.Bytes,
			RunID:    sum.RunID,
		}
		entry.Day, _ = time.Parse(DateLayout, part.Key)

		if upload {
			key := remote.PartitionKey(opts.Prefix, part.Key)
			if err := p.Uploader.UploadChecked(ctx, part.Path, opts.Bucket, key); err != nil {
				return sum, apperr.Wrap(apperr.ErrRuntime, err)
			}
			sum.Uploaded++
			entry.RemoteKey = key
			log.Info().Str("dt", part.Key).Str("bucket", opts.Bucket).Str("key", key).Msg("partition uploaded")

			if !keepLocal {
				if err := os.Remove(part.Path); err != nil {
					log.Warn().Str("path", part.Path).Err(err).Msg("failed to remove local file")
				} else {
					entry.Path = ""
					log.Debug().Str("path", part.Path).Msg("local file removed")
				}
			}
		}
		sum.Partitions = append(sum.Partitions, part)

		if err := p.record(ctx, entry); err != nil {
			return sum, apperr.Wrap(apperr.ErrRuntime, fmt.Errorf("dt=%s: update manifest: %w", part.Key, err))
		}
	}

	log.Info().Int("partitions", len(sum.Partitions)).Int("uploaded", sum.Uploaded).Int("rows", sum.Rows).
		Msg("ingestion done")
	if writeErr != nil {
		return sum, apperr.Wrap(apperr.ErrRuntime, writeErr)
	}
	return sum, nil
}

func (p *Pipeline) record(ctx context.Context, e storage.Entry) error {
	if p.Manifest == nil {
		return nil
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	e.IngestedAt = now().UTC()
	return p.Manifest.UpsertPartition(ctx, e)
}

var _ Uploader = (*remote.Syncer)(nil)
