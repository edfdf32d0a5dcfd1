package remote_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/internal/apperr"
	"github.com/guttosm/b3lake/internal/remote"
	"github.com/guttosm/b3lake/internal/remote/remotetest"
)

type sleeps struct{ got []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.got = append(s.got, d)
	return nil
}

func newSyncer(store remote.ObjectStore) (*remote.Syncer, *sleeps) {
	sl := &sleeps{}
	s := remote.NewSyncer(store, zerolog.Nop())
	s.Sleep = sl.sleep
	return s, sl
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestUploadChecked_Success(t *testing.T) {
	store := remotetest.New()
	s, sl := newSyncer(store)
	p := writeFile(t, t.TempDir(), "f.parquet", "PAR1....PAR1")

	if err := s.UploadChecked(context.Background(), p, "lake", "raw/dt=2026-01-16/b3_stocks.parquet"); err != nil {
		t.Fatalf("UploadChecked: %v", err)
	}
	if b, ok := store.Get("lake", "raw/dt=2026-01-16/b3_stocks.parquet"); !ok || string(b) != "PAR1....PAR1" {
		t.Fatalf("object not stored")
	}
	if store.Uploads != 1 || store.Heads != 1 || len(sl.got) != 0 {
		t.Fatalf("uploads=%d heads=%d sleeps=%v", store.Uploads, store.Heads, sl.got)
	}
}

func TestUploadChecked_SizeMismatchExhaustsRetries(t *testing.T) {
	store := remotetest.New()
	store.HeadSize = func(string) int64 { return 1 }
	s, sl := newSyncer(store)
	p := writeFile(t, t.TempDir(), "f.parquet", "PAR1....PAR1")

	err := s.UploadChecked(context.Background(), p, "lake", "raw/k")
	var te *remote.TransferError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransferError, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "upload failed: s3://lake/raw/k") {
		t.Fatalf("message does not identify destination: %q", err.Error())
	}
	if !errors.Is(err, remote.ErrSizeMismatch) || !errors.Is(err, apperr.ErrRuntime) {
		t.Fatalf("error chain incomplete: %v", err)
	}
	if store.Uploads != 3 {
		t.Fatalf("uploads=%d, want 3", store.Uploads)
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !reflect.DeepEqual(sl.got, want) {
		t.Fatalf("backoff=%v, want %v", sl.got, want)
	}
	if apperr.ExitCode(err) != apperr.ExitRuntime {
		t.Fatalf("exit code=%d", apperr.ExitCode(err))
	}
}

func TestUploadChecked_AccessDeniedFailsFast(t *testing.T) {
	store := remotetest.New()
	store.UploadErr = func(int) error { return remote.ErrAccessDenied }
	s, sl := newSyncer(store)
	p := writeFile(t, t.TempDir(), "f.parquet", "x")

	err := s.UploadChecked(context.Background(), p, "lake", "k")
	if !errors.Is(err, remote.ErrAccessDenied) {
		t.Fatalf("err=%v", err)
	}
	if store.Uploads != 1 || len(sl.got) != 0 {
		t.Fatalf("access denied must not retry: uploads=%d sleeps=%v", store.Uploads, sl.got)
	}
}

func TestUploadChecked_RecoversFromTransientError(t *testing.T) {
	store := remotetest.New()
	store.UploadErr = func(call int) error {
		if call == 1 {
			return errors.New("connection reset")
		}
		return nil
	}
	s, sl := newSyncer(store)
	p := writeFile(t, t.TempDir(), "f.parquet", "abc")
	if err := s.UploadChecked(context.Background(), p, "lake", "k"); err != nil {
		t.Fatalf("UploadChecked: %v", err)
	}
	if store.Uploads != 2 || !reflect.DeepEqual(sl.got, []time.Duration{time.Second}) {
		t.Fatalf("uploads=%d sleeps=%v", store.Uploads, sl.got)
	}
}

func TestUploadChecked_MissingLocalFile(t *testing.T) {
	s, _ := newSyncer(remotetest.New())
	if err := s.UploadChecked(context.Background(), filepath.Join(t.TempDir(), "nope"), "b", "k"); err == nil {
		t.Fatalf("expected stat error")
	}
}

func TestUploadChecked_CanceledDuringBackoff(t *testing.T) {
	store := remotetest.New()
	store.UploadErr = func(int) error { return errors.New("boom") }
	s := remote.NewSyncer(store, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := writeFile(t, t.TempDir(), "f", "x")
	err := s.UploadChecked(ctx, p, "b", "k")
	if !errors.Is(err, context.Canceled) || store.Uploads != 1 {
		t.Fatalf("err=%v uploads=%d", err, store.Uploads)
	}
}

func TestDownloadChecked_Success(t *testing.T) {
	store := remotetest.New()
	store.Put("lake", "raw/dt=2026-01-16/b3_stocks.parquet", []byte("PAR1data"))
	s, _ := newSyncer(store)
	dst := filepath.Join(t.TempDir(), "out", "b3_stocks.parquet")

	if err := s.DownloadChecked(context.Background(), "lake", "raw/dt=2026-01-16/b3_stocks.parquet", dst); err != nil {
		t.Fatalf("DownloadChecked: %v", err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "PAR1data" {
		t.Fatalf("content=%q", b)
	}
	if _, err := os.Stat(dst + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}

func TestDownloadChecked_TruncatedRetriesThenFails(t *testing.T) {
	store := remotetest.New()
	store.Put("lake", "k", []byte("0123456789"))
	store.Truncate = 4
	s, sl := newSyncer(store)
	dst := filepath.Join(t.TempDir(), "f")
	prior := []byte("old")
	_ = os.WriteFile(dst, prior, 0o644)

	err := s.DownloadChecked(context.Background(), "lake", "k", dst)
	if !errors.Is(err, remote.ErrSizeMismatch) || !strings.HasPrefix(err.Error(), "download failed: s3://lake/k") {
		t.Fatalf("err=%v", err)
	}
	if store.Downloads != 3 || len(sl.got) != 2 {
		t.Fatalf("downloads=%d sleeps=%v", store.Downloads, sl.got)
	}
	if b, _ := os.ReadFile(dst); string(b) != string(prior) {
		t.Fatalf("target replaced by partial download")
	}
}

func TestDownloadChecked_HeadFailureSkipsVerification(t *testing.T) {
	store := remotetest.New()
	store.Put("lake", "k", []byte("0123456789"))
	store.HeadErr = errors.New("head throttled")
	store.Truncate = 4
	s, _ := newSyncer(store)
	dst := filepath.Join(t.TempDir(), "f")
	if err := s.DownloadChecked(context.Background(), "lake", "k", dst); err != nil {
		t.Fatalf("download should proceed unverified: %v", err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "0123" {
		t.Fatalf("content=%q", b)
	}
}

func TestDownloadChecked_AccessDeniedFailsFast(t *testing.T) {
	store := remotetest.New()
	store.Put("lake", "k", []byte("x"))
	store.DownloadErr = func(int) error { return remote.ErrAccessDenied }
	s, sl := newSyncer(store)
	err := s.DownloadChecked(context.Background(), "lake", "k", filepath.Join(t.TempDir(), "f"))
	if !errors.Is(err, remote.ErrAccessDenied) || store.Downloads != 1 || len(sl.got) != 0 {
		t.Fatalf("err=%v downloads=%d sleeps=%v", err, store.Downloads, sl.got)
	}
}

func TestDownloadChecked_DeniedProbeIsNotRetried(t *testing.T) {
	store := remotetest.New()
	store.Put("lake", "k", []byte("x"))
	store.HeadErr = remote.ErrAccessDenied
	s, sl := newSyncer(store)
	var logs bytes.Buffer
	s.Log = zerolog.New(&logs)

	dir := t.TempDir()
	err := s.DownloadChecked(context.Background(), "lake", "k", filepath.Join(dir, "f"))
	if !errors.Is(err, remote.ErrAccessDenied) || store.Downloads != 0 || len(sl.got) != 0 {
		t.Fatalf("err=%v downloads=%d sleeps=%v", err, store.Downloads, sl.got)
	}
	if !strings.Contains(logs.String(), "download denied, not retrying") {
		t.Fatalf("denial not logged: %s", logs.String())
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("nothing should be written: %v", entries)
	}
}

func TestUploadTreeAndDownloadPrefix(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dt=2026-01-16/b3_stocks.parquet", "one")
	writeFile(t, root, "dt=2026-01-17/b3_stocks.parquet", "two")
	writeFile(t, root, "dt=2026-01-17/b3_stocks.parquet.tmp", "partial")

	for _, parallel := range []int{0, 3} {
		store := remotetest.New()
		s, _ := newSyncer(store)
		s.Parallelism = parallel

		n, err := s.UploadTree(context.Background(), root, "lake", "refined", true)
		if err != nil || n != 2 || len(store.Keys("lake")) != 0 {
			t.Fatalf("dry run: n=%d err=%v keys=%v", n, err, store.Keys("lake"))
		}

		n, err = s.UploadTree(context.Background(), root, "lake", "refined", false)
		if err != nil || n != 2 {
			t.Fatalf("UploadTree: n=%d err=%v", n, err)
		}
		want := []string{"refined/dt=2026-01-16/b3_stocks.parquet", "refined/dt=2026-01-17/b3_stocks.parquet"}
		if got := store.Keys("lake"); !reflect.DeepEqual(got, want) {
			t.Fatalf("keys=%v, want %v", got, want)
		}

		store.Put("lake", "refined/folder/", nil)
		out := t.TempDir()
		n, err = s.DownloadPrefix(context.Background(), "lake", "refined", out, false)
		if err != nil || n != 2 {
			t.Fatalf("DownloadPrefix: n=%d err=%v", n, err)
		}
		b, err := os.ReadFile(filepath.Join(out, "refined", "dt=2026-01-17", "b3_stocks.parquet"))
		if err != nil || string(b) != "two" {
			t.Fatalf("mirrored content=%q err=%v", b, err)
		}
	}
}

func TestPartitionKey(t *testing.T) {
	if got := remote.PartitionKey("raw", "2026-01-16"); got != "raw/dt=2026-01-16/b3_stocks.parquet" {
		t.Fatalf("PartitionKey=%q", got)
	}
}
