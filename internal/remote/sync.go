package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultAttempts bounds every transfer.
const DefaultAttempts = 3

// Syncer runs checked transfers against an ObjectStore.
//
// Fields:
//   - Store: transfer backend.
//   - Log: per-attempt diagnostics.
//   - Attempts: transfer attempts per object (default 3).
//   - Sleep: backoff wait, returning early with ctx's error on cancellation.
//     Defaults to a timer; tests replace it to skip waiting.
//   - Parallelism: objects mirrored at once by UploadTree and DownloadPrefix.
type Syncer struct {
	Store       ObjectStore
	Log         zerolog.Logger
	Attempts    int
	Sleep       func(ctx context.Context, d time.Duration) error
	Parallelism int
}

// NewSyncer returns a Syncer with default retry settings.
func NewSyncer(store ObjectStore, log zerolog.Logger) *Syncer {
	return &Syncer{Store: store, Log: log, Attempts: DefaultAttempts, Sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Syncer) attempts() int {
	if s.Attempts <= 0 {
		return DefaultAttempts
	}
	return s.Attempts
}

func (s *Syncer) backoff(ctx context.Context, attempt int) error {
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, time.Duration(attempt)*time.Second)
}

// UploadChecked uploads path to bucket/key and verifies the remote size.
//
// Behavior:
//   - Up to Attempts tries. After each upload the object is probed and its
//     content length compared to the local size; a mismatch counts as a failure.
//   - ErrAccessDenied aborts immediately.
//   - Other failures wait attempt seconds before the next try.
//   - Exhaustion returns *TransferError naming the destination.
func (s *Syncer) UploadChecked(ctx context.Context, path, bucket, key string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	size := st.Size()
	fail := func(err error) error {
		return &TransferError{Op: "upload", Bucket: bucket, Key: key, Err: err}
	}

	var last error
	n := s.attempts()
	for attempt := 1; attempt <= n; attempt++ {
		last = s.Store.Upload(ctx, bucket, key, path)
		if last == nil {
			var remote int64
			remote, last = s.Store.Head(ctx, bucket, key)
			if last == nil && remote != size {
				last = fmt.Errorf("%w: remote %d bytes, local %d bytes", ErrSizeMismatch, remote, size)
			}
		}
		if last == nil {
			s.Log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", size).Int("attempt", attempt).Msg("upload verified")
			return nil
		}
		if errors.Is(last, ErrAccessDenied) {
			s.Log.Error().Str("bucket", bucket).Str("key", key).Err(last).Msg("upload denied")
			return fail(last)
		}
		s.Log.Warn().Str("bucket", bucket).Str("key", key).Int("attempt", attempt).Int("of", n).Err(last).Msg("upload attempt failed")
		if attempt < n {
			if err := s.backoff(ctx, attempt); err != nil {
				return fail(err)
			}
		}
	}
	return fail(last)
}

// DownloadChecked fetches bucket/key to path through <path>.tmp.
//
// Behavior:
//   - Probes the remote size first. A failed probe is logged and the download
//     proceeds without size verification, unless the probe was denied.
//   - Each attempt writes the temp file, checks its size when known and renames
//     it onto path. A failed attempt removes the temp file.
//   - Same retry and backoff policy as UploadChecked. ErrAccessDenied is never
//     retried: a denied size probe or a denied attempt fails immediately.
func (s *Syncer) DownloadChecked(ctx context.Context, bucket, key, path string) error {
	fail := func(err error) error {
		return &TransferError{Op: "download", Bucket: bucket, Key: key, Err: err}
	}
	expected := int64(-1)
	if n, err := s.Store.Head(ctx, bucket, key); err != nil {
		if errors.Is(err, ErrAccessDenied) {
			s.Log.Error().Str("bucket", bucket).Str("key", key).Err(err).Msg("download denied, not retrying")
			return fail(err)
		}
		s.Log.Warn().Str("bucket", bucket).Str("key", key).Err(err).Msg("head failed, size will not be verified")
	} else {
		expected = n
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"

	var last error
	n := s.attempts()
	for attempt := 1; attempt <= n; attempt++ {
		last = s.downloadOnce(ctx, bucket, key, tmp, expected)
		if last == nil {
			if err := os.Rename(tmp, path); err != nil {
				_ = os.Remove(tmp)
				return fmt.Errorf("publish %s: %w", path, err)
			}
			s.Log.Info().Str("bucket", bucket).Str("key", key).Str("path", path).Int("attempt", attempt).Msg("download verified")
			return nil
		}
		_ = os.Remove(tmp)
		if errors.Is(last, ErrAccessDenied) {
			s.Log.Error().Str("bucket", bucket).Str("key", key).Int("attempt", attempt).Err(last).Msg("download denied, not retrying")
			return fail(last)
		}
		s.Log.Warn().Str("bucket", bucket).Str("key", key).Int("attempt", attempt).Int("of", n).Err(last).Msg("download attempt failed")
		if attempt < n {
			if err := s.backoff(ctx, attempt); err != nil {
				return fail(err)
			}
		}
	}
	return fail(last)
}

func (s *Syncer) downloadOnce(ctx context.Context, bucket, key, tmp string, expected int64) error {
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := s.Store.Download(ctx, bucket, key, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if expected < 0 {
		return nil
	}
	st, err := os.Stat(tmp)
	if err != nil {
		return err
	}
	if st.Size() != expected {
		return fmt.Errorf("%w: remote %d bytes, local %d bytes", ErrSizeMismatch, expected, st.Size())
	}
	return nil
}

// UploadTree mirrors every file under root to <prefix>/<relative path>.
// With dryRun set nothing is sent. Returns the number of files handled.
func (s *Syncer) UploadTree(ctx context.Context, root, bucket, prefix string, dryRun bool) (int, error) {
	var jobs [][2]string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		jobs = append(jobs, [2]string{p, path.Join(prefix, filepath.ToSlash(rel))})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", root, err)
	}

	return s.run(ctx, len(jobs), func(ctx context.Context, i int) error {
		local, key := jobs[i][0], jobs[i][1]
		if dryRun {
			s.Log.Info().Str("path", local).Str("bucket", bucket).Str("key", key).Bool("dry_run", true).Msg("would upload")
			return nil
		}
		return s.UploadChecked(ctx, local, bucket, key)
	})
}

// DownloadPrefix mirrors every object under prefix to outDir/<key>.
// Keys ending in "/" are folder markers and are skipped. Returns the number of objects handled.
func (s *Syncer) DownloadPrefix(ctx context.Context, bucket, prefix, outDir string, dryRun bool) (int, error) {
	objs, err := s.Store.List(ctx, bucket, prefix)
	if err != nil {
		return 0, &TransferError{Op: "list", Bucket: bucket, Key: prefix, Err: err}
	}
	var keys []string
	for _, o := range objs {
		if strings.HasSuffix(o.Key, "/") {
			continue
		}
		keys = append(keys, o.Key)
	}

	return s.run(ctx, len(keys), func(ctx context.Context, i int) error {
		key := keys[i]
		local := filepath.Join(outDir, filepath.FromSlash(key))
		if dryRun {
			s.Log.Info().Str("bucket", bucket).Str("key", key).Str("path", local).Bool("dry_run", true).Msg("would download")
			return nil
		}
		return s.DownloadChecked(ctx, bucket, key, local)
	})
}

// run executes n jobs sequentially, or Parallelism at a time, stopping at the first error.
func (s *Syncer) run(ctx context.Context, n int, job func(context.Context, int) error) (int, error) {
	if s.Parallelism <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return i, err
			}
			if err := job(ctx, i); err != nil {
				return i, err
			}
		}
		return n, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Parallelism)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return job(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return n, nil
}
