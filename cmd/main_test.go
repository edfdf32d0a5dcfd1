package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/config"
	"github.com/guttosm/b3lake/internal/apperr"
	"github.com/guttosm/b3lake/internal/partition"
	"github.com/guttosm/b3lake/internal/remote"
	"github.com/guttosm/b3lake/internal/remote/remotetest"
)

type dummyHandler struct{}

func (d dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestStartServerAndShutdown(t *testing.T) {
	srv := startServer(dummyHandler{}, "0", zerolog.Nop()) // random port
	if srv == nil {
		t.Fatalf("expected server")
	}

	// Give server a moment to start
	time.Sleep(50 * time.Millisecond)

	// Directly call Shutdown to simulate graceful flow.
	shutdownCtx, c := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer c()
	if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		t.Fatalf("shutdown err: %v", err)
	}
}

func TestGracefulShutdown_SignalPath(t *testing.T) {
	srv := startServer(dummyHandler{}, "0", zerolog.Nop())

	cleaned := make(chan struct{}, 1)
	go func() {
		_ = gracefulShutdown(context.Background(), srv, func() { close(cleaned) }, zerolog.Nop())
	}()

	// Give the goroutine time to set up signal notifications
	time.Sleep(50 * time.Millisecond)

	// Send SIGTERM to current process
	p, _ := os.FindProcess(os.Getpid())
	_ = p.Signal(syscall.SIGTERM)

	select {
	case <-cleaned:
		// success
	case <-time.After(2 * time.Second):
		t.Fatalf("cleanup not called after SIGTERM")
	}
}

// isolate points configuration at a temp data dir with no bucket and no manifest.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("S3_BUCKET", "")
	t.Setenv("MANIFEST_DRIVER", "")
	t.Setenv("UNIVERSE_FILE", "")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out, zerolog.Nop())
	return out.String(), err
}

func TestRun_ExitCodes(t *testing.T) {
	isolate(t)
	export := writeExport(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, apperr.ExitUsage},
		{"unknown command", []string{"serve"}, apperr.ExitUsage},
		{"help", []string{"help"}, apperr.ExitOK},
		{"command help", []string{"ingest", "--help"}, apperr.ExitOK},
		{"unknown flag", []string{"ingest", "--bogus"}, apperr.ExitUsage},
		{"date with range", []string{"ingest", "--date", "2026-01-15", "--start-date", "2026-01-14"}, apperr.ExitUsage},
		{"end before start", []string{"ingest", "--start-date", "2026-01-15", "--end-date", "2026-01-14"}, apperr.ExitUsage},
		{"local with s3-only", []string{"ingest", "--local", "--s3-only"}, apperr.ExitUsage},
		{"both with local", []string{"ingest", "--both", "--local"}, apperr.ExitUsage},
		{"bad interval", []string{"ingest", "--interval", "7m"}, apperr.ExitValidation},
		{"bad period", []string{"ingest", "--period", "1month"}, apperr.ExitValidation},
		{"bad date", []string{"ingest", "--date", "2026-02-30"}, apperr.ExitValidation},
		{"s3-only without bucket", []string{"ingest", "--s3-only", "--from-file", export}, apperr.ExitValidation},
		{"wide separator", []string{"ingest", "--from-file", export, "--csv-sep", ";;"}, apperr.ExitUsage},
		{"missing universe", []string{"ingest", "--universe", "nope.yaml", "--local"}, apperr.ExitValidation},
		{"missing export", []string{"ingest", "PETR4.SA", "--local", "--from-file", "nope.csv"}, apperr.ExitRuntime},
		{"upload without bucket", []string{"upload", "--dry-run"}, apperr.ExitUsage},
		{"download without bucket", []string{"download"}, apperr.ExitUsage},
		{"read bad date", []string{"read", "--start", "2026/01/01"}, apperr.ExitValidation},
		{"read missing root", []string{"read", "--path", "does/not/exist"}, apperr.ExitRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if got := apperr.ExitCode(err); got != tt.want {
				t.Fatalf("exit=%d, want %d (err=%v)", got, tt.want, err)
			}
		})
	}
}

// writeExport writes a single-ticker daily CSV export covering two sessions.
func writeExport(t *testing.T) string {
	t.Helper()
	body := "Date,Open,High,Low,Close,Adj Close,Volume\n" +
		"2026-01-15,38.10,38.90,37.95,38.50,38.50,1000\n" +
		"2026-01-16,38.50,39.20,38.40,39.00,39.00,1200\n"
	path := filepath.Join(t.TempDir(), "petr4.csv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}
	return path
}

func TestRun_IngestThenRead(t *testing.T) {
	dir := isolate(t)
	export := writeExport(t)

	if _, err := runCLI(t, "ingest", "PETR4.SA", "--from-file", export, "--local", "--prefix", "raw"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	for _, day := range []string{"2026-01-15", "2026-01-16"} {
		if _, err := os.Stat(partition.PartitionPath(dir, "raw", day)); err != nil {
			t.Fatalf("partition %s: %v", day, err)
		}
	}

	out, err := runCLI(t, "read", "--path", filepath.Join(dir, "raw"), "--stats")
	if err != nil {
		t.Fatalf("read --stats: %v", err)
	}
	if !strings.Contains(out, "2026-01-15\t1") || !strings.Contains(out, "PETR4.SA\t2") {
		t.Fatalf("unexpected stats:\n%s", out)
	}

	csvPath := filepath.Join(t.TempDir(), "out", "all.csv")
	if _, err := runCLI(t, "read", "--path", filepath.Join(dir, "raw"), "--trade-date", "2026-01-16", "--out-csv", csvPath); err != nil {
		t.Fatalf("read --out-csv: %v", err)
	}
	raw, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(raw)), "\n"); len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", raw)
	}

	out, err = runCLI(t, "read", "--path", filepath.Join(dir, "raw"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if i, j := strings.Index(out, "2026-01-15"), strings.Index(out, "2026-01-16"); i < 0 || j < i {
		t.Fatalf("rows not ordered by day:\n%s", out)
	}
}

func stubSyncer(t *testing.T, store remote.ObjectStore) {
	t.Helper()
	old := newSyncer
	newSyncer = func(context.Context, *config.Config, zerolog.Logger) (*remote.Syncer, error) {
		s := remote.NewSyncer(store, zerolog.Nop())
		s.Sleep = func(context.Context, time.Duration) error { return nil }
		return s, nil
	}
	t.Cleanup(func() { newSyncer = old })
}

func TestRun_UploadDryRunNeedsNoStore(t *testing.T) {
	isolate(t)
	old := newSyncer
	newSyncer = func(context.Context, *config.Config, zerolog.Logger) (*remote.Syncer, error) {
		t.Fatalf("dry run must not build a store")
		return nil, nil
	}
	t.Cleanup(func() { newSyncer = old })

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.parquet"), []byte("PAR1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "upload", "--bucket", "b", "--local-root", root, "--dry-run"); err != nil {
		t.Fatalf("upload --dry-run: %v", err)
	}
}

func TestRun_UploadAndDownload(t *testing.T) {
	isolate(t)
	store := remotetest.New()
	stubSyncer(t, store)

	root := t.TempDir()
	local := filepath.Join(root, "dt=2026-01-15", "b3_stocks.parquet")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(local, []byte("PAR1-data-PAR1"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "upload", "--bucket", "b", "--local-root", root, "--prefix", "refined"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, ok := store.Get("b", "refined/dt=2026-01-15/b3_stocks.parquet"); !ok {
		t.Fatalf("object not uploaded: %v", store.Keys("b"))
	}

	out := t.TempDir()
	if _, err := runCLI(t, "download", "--bucket", "b", "--prefix", "refined", "--out-dir", out); err != nil {
		t.Fatalf("download: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(out, "refined", "dt=2026-01-15", "b3_stocks.parquet"))
	if err != nil || string(got) != "PAR1-data-PAR1" {
		t.Fatalf("downloaded=%q err=%v", got, err)
	}
}

func TestRun_PanicIsUnexpected(t *testing.T) {
	isolate(t)
	old := newSyncer
	newSyncer = func(context.Context, *config.Config, zerolog.Logger) (*remote.Syncer, error) {
		panic("boom")
	}
	t.Cleanup(func() { newSyncer = old })

	_, err := runCLI(t, "download", "--bucket", "b")
	if apperr.ExitCode(err) != apperr.ExitUnexpected {
		t.Fatalf("exit=%d err=%v", apperr.ExitCode(err), err)
	}
}
