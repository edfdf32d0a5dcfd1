package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/config"
	"github.com/guttosm/b3lake/internal/apperr"
	"github.com/guttosm/b3lake/internal/ingestion"
	"github.com/guttosm/b3lake/internal/partition"
)

// largeResult is the row count above which printing the full table is warned about.
const largeResult = 10000

// runRead selects local partition files, reads them and prints or exports the rows.
//
// Behavior (first match wins):
//   - --sample N prints the first N rows.
//   - --stats prints row counts per day and per ticker.
//   - --out-csv writes every row to a CSV file.
//   - Without --trade-date every row is printed, ordered by day and ticker.
//   - Otherwise the column list and the first rows are printed.
func runRead(_ context.Context, cfg *config.Config, args []string, stdout io.Writer, log zerolog.Logger) error {
	fs := newFlagSet("read", stdout)
	root := fs.String("path", filepath.Join(cfg.Data.Dir, "refined"), "Local root path of the partitioned dataset")
	dates := fs.StringArray("trade-date", nil, "Filter by trade date (YYYY-MM-DD). Can be repeated")
	tickers := fs.StringArray("acao", nil, "Filter by ticker (e.g. VALE3.SA). Can be repeated")
	start := fs.String("start", "", "Start trade date (inclusive) YYYY-MM-DD")
	end := fs.String("end", "", "End trade date (inclusive) YYYY-MM-DD")
	outCSV := fs.String("out-csv", "", "Write combined CSV to this path")
	sample := fs.Int("sample", 0, "Print the first N rows and exit")
	stats := fs.Bool("stats", false, "Print row counts by trade date and ticker")
	maxFiles := fs.Int("max-files", 0, "Limit number of parquet files to read (0 = no limit)")
	if err := parseFlags(fs, args); err != nil {
		return helpOK(err)
	}
	for _, d := range append(append([]string{}, *dates...), *start, *end) {
		if d == "" {
			continue
		}
		if _, err := ingestion.ValidateDate(d); err != nil {
			return err
		}
	}

	files, err := partition.FindFiles(*root)
	if err != nil {
		return apperr.Wrap(apperr.ErrRuntime, err)
	}
	if len(files) == 0 {
		log.Info().Str("path", *root).Msg("no parquet files found")
		return nil
	}
	files = partition.FilterFiles(files, partition.Filter{Dates: *dates, Tickers: *tickers, Start: *start, End: *end})
	log.Info().Int("files", len(files)).Msg("files to read")

	reader := &partition.Reader{Log: log, MaxFiles: *maxFiles}
	fr, err := reader.ReadFiles(files, nil)
	if err != nil {
		return apperr.Wrap(apperr.ErrRuntime, err)
	}
	if fr.Len() == 0 {
		log.Info().Msg("no rows after reading selected files")
		return nil
	}

	switch {
	case *sample > 0:
		return writeOut(fr.Head(*sample).WriteTable(stdout))
	case *stats:
		return writeOut(printStats(stdout, fr.Stats()))
	case *outCSV != "":
		if err := writeCSVFile(*outCSV, fr); err != nil {
			return apperr.Wrap(apperr.ErrRuntime, err)
		}
		log.Info().Str("path", *outCSV).Int("rows", fr.Len()).Msg("wrote combined CSV")
		return nil
	case len(*dates) == 0:
		fr.SortBy(partition.KeyDate, partition.KeyTicker)
		if fr.Len() > largeResult {
			log.Warn().Int("rows", fr.Len()).Msg("result is large; printing may take a while")
		}
		return writeOut(fr.WriteTable(stdout))
	default:
		if _, err := fmt.Fprintf(stdout, "%d rows, columns: %v\n", fr.Len(), fr.Columns); err != nil {
			return writeOut(err)
		}
		return writeOut(fr.Head(5).WriteTable(stdout))
	}
}

func writeOut(err error) error {
	if err != nil {
		return apperr.Wrap(apperr.ErrRuntime, fmt.Errorf("write output: %w", err))
	}
	return nil
}

func writeCSVFile(path string, fr *partition.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fr.WriteCSV(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// printStats lists counts per day in date order, then per ticker by descending count.
func printStats(w io.Writer, s partition.Stats) error {
	if _, err := fmt.Fprintln(w, "Counts by trade date:"); err != nil {
		return err
	}
	for _, day := range partition.SortedKeys(s.ByDay) {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", day, s.ByDay[day]); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "\nCounts by ticker:"); err != nil {
		return err
	}
	tickers := partition.SortedKeys(s.ByTicker)
	sort.SliceStable(tickers, func(i, j int) bool { return s.ByTicker[tickers[i]] > s.ByTicker[tickers[j]] })
	for _, t := range tickers {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", t, s.ByTicker[t]); err != nil {
			return err
		}
	}
	return nil
}
