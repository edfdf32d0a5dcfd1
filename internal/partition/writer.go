// Package partition writes canonical tables as one Parquet file per UTC day and
// reads day-partitioned datasets back.
package partition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/guttosm/b3lake/internal/schema"
)

// Magic is the marker Parquet files start and end with.
const Magic = "PAR1"

var (
	// ErrMagicMissing reports a temp file whose header is not a Parquet marker.
	ErrMagicMissing = errors.New("parquet-magic-missing")
	// ErrFooterMagicMissing reports a temp file whose trailer is not a Parquet marker.
	ErrFooterMagicMissing = errors.New("parquet-footer-magic-missing")
)

// encodeRecords and renameFile are indirections so tests can simulate corrupt
// encoders and crashes before the publish step.
var (
	encodeRecords = writeRecords
	renameFile    = os.Rename
)

// Written describes one published partition file.
type Written struct {
	Key   string // UTC day, 2006-01-02
	Path  string
	Rows  int
	Bytes int64
}

// Writer publishes day partitions under Root.
//
// Fields:
//   - Root: local output root.
//   - Log: sink for per-partition progress.
//   - ContinueOnError: keep writing remaining partitions after a failure; all
//     failures are still returned, joined.
//   - Parallelism: partitions written at once (<=1 means sequential).
type Writer struct {
	Root            string
	Log             zerolog.Logger
	ContinueOnError bool
	Parallelism     int
}

// Group splits rows by UTC calendar day. Rows with invalid timestamps are dropped.
// Keys are returned in ascending order.
func Group(tbl *schema.Table) ([]string, map[string][]schema.Row) {
	groups := make(map[string][]schema.Row)
	if tbl == nil {
		return nil, groups
	}
	for _, r := range tbl.Rows {
		day := r.Day()
		if day == "" {
			continue
		}
		groups[day] = append(groups[day], r)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, groups
}

// PartitionPath joins root, prefix, the dt=<day> segment and the fixed file name.
func PartitionPath(root, prefix, day string) string {
	return filepath.Join(root, filepath.FromSlash(prefix), "dt="+day, schema.FileName)
}

// WritePartitions groups tbl by UTC day and publishes one file per day.
//
// Parameters:
//   - ctx: cancels pending partitions; a partition already being encoded finishes.
//   - tbl: canonical rows.
//   - prefix: path segment(s) between Root and dt=<day>.
//
// Returns:
//   - []Written: descriptors of published partitions, ascending by day.
//   - error: the first failure, or every failure joined when ContinueOnError is set.
//
// Behavior:
//   - Each file is encoded to <path>.tmp, checked for the PAR1 marker at both
//     ends and renamed onto <path>. A failed check removes the temp file and
//     leaves any previous file at <path> untouched.
//   - Rows with invalid timestamps belong to no partition and are skipped.
func (w *Writer) WritePartitions(ctx context.Context, tbl *schema.Table, prefix string) ([]Written, error) {
	keys, groups := Group(tbl)
	if skipped := tbl.Len() - countRows(groups); skipped > 0 {
		w.Log.Warn().Int("rows", skipped).Msg("rows without a valid trade_date skipped")
	}
	if len(keys) == 0 {
		return nil, nil
	}

	results := make([]*Written, len(keys))
	var (
		mu   sync.Mutex
		errs []error
	)

	writeOne := func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := keys[i]
		path := PartitionPath(w.Root, prefix, key)
		start := time.Now()
		n, err := w.publish(path, groups[key])
		if err != nil {
			w.Log.Error().Str("dt", key).Str("path", path).Err(err).Msg("partition write failed")
			err = fmt.Errorf("partition dt=%s: %w", key, err)
			if !w.ContinueOnError {
				return err
			}
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			return nil
		}
		results[i] = &Written{Key: key, Path: path, Rows: len(groups[key]), Bytes: n}
		w.Log.Info().Str("dt", key).Str("path", path).Int("rows", len(groups[key])).Int64("bytes", n).
			Dur("elapsed", time.Since(start)).Msg("partition written")
		return nil
	}

	if w.Parallelism <= 1 {
		for i := range keys {
			if err := writeOne(ctx, i); err != nil {
				return collect(results), err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.Parallelism)
		for i := range keys {
			g.Go(func() error {
				return writeOne(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return collect(results), err
		}
	}

	return collect(results), errors.Join(errs...)
}

func collect(results []*Written) []Written {
	out := make([]Written, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func countRows(groups map[string][]schema.Row) int {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	return n
}

// publish runs the temp-write, validate, rename protocol for one file and
// returns the published size.
func (w *Writer) publish(path string, rows []schema.Row) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create partition dir: %w", err)
	}
	tmp := path + ".tmp"

	if err := writeTemp(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := CheckMagic(tmp); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := renameFile(tmp, path); err != nil {
		return 0, fmt.Errorf("publish %s: %w", path, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func writeTemp(tmp string, rows []schema.Row) error {
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	recs := make([]schema.Record, len(rows))
	for i, r := range rows {
		recs[i] = schema.ToRecord(r)
	}
	if err := encodeRecords(f, recs); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode parquet: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeRecords encodes records with the fixed layout: Snappy, no dictionary
// pages, no statistics. Min/max bounds are skipped for every column, which
// leaves both the chunk statistics and the page index empty.
func writeRecords(out io.Writer, recs []schema.Record) error {
	opts := []parquet.WriterOption{
		parquet.Compression(&parquet.Snappy),
		parquet.DataPageStatistics(false),
		parquet.CreatedBy("b3lake", "1", ""),
	}
	for _, col := range schema.Columns {
		opts = append(opts, parquet.SkipPageBounds(col))
	}
	pw := parquet.NewGenericWriter[schema.Record](out, opts...)
	if _, err := pw.Write(recs); err != nil {
		_ = pw.Close()
		return err
	}
	return pw.Close()
}

// CheckMagic verifies the PAR1 marker at the start and at the end of the file.
func CheckMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, len(Magic))
	if _, err := io.ReadFull(f, head); err != nil || string(head) != Magic {
		return ErrMagicMissing
	}
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() < int64(2*len(Magic)) {
		return ErrFooterMagicMissing
	}
	tail := make([]byte, len(Magic))
	if _, err := f.ReadAt(tail, st.Size()-int64(len(Magic))); err != nil || string(tail) != Magic {
		return ErrFooterMagicMissing
	}
	return nil
}

// CheckEngine round-trips a one-row file in memory. Call it once at startup;
// a failure means the encoder cannot be used at all.
func CheckEngine() error {
	var buf bytes.Buffer
	row := schema.Row{TradeDate: time.Unix(0, 0).UTC(), Valid: true, Ticker: "CHECK", Volume: 1}
	if err := encodeRecords(&buf, []schema.Record{schema.ToRecord(row)}); err != nil {
		return fmt.Errorf("parquet encoder unavailable: %w", err)
	}
	b := buf.Bytes()
	if len(b) < 2*len(Magic) || string(b[:4]) != Magic || string(b[len(b)-4:]) != Magic {
		return fmt.Errorf("parquet encoder unavailable: %w", ErrMagicMissing)
	}
	recs, err := parquet.Read[schema.Record](bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return fmt.Errorf("parquet decoder unavailable: %w", err)
	}
	if len(recs) != 1 || recs[0].Ticker != "CHECK" {
		return fmt.Errorf("parquet round trip returned %d rows", len(recs))
	}
	return nil
}
