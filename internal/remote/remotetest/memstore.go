// Package remotetest provides an in-memory remote.ObjectStore for tests.
package remotetest

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/guttosm/b3lake/internal/remote"
)

// MemStore keeps objects in memory. The hook fields inject failures.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// UploadErr, when set, is consulted before each upload with the 1-based call number.
	UploadErr func(call int) error
	// DownloadErr, when set, is consulted before each download with the 1-based call number.
	DownloadErr func(call int) error
	// HeadErr, when set, replaces every Head result with this error.
	HeadErr error
	// HeadSize, when set, overrides the reported content length.
	HeadSize func(key string) int64
	// Truncate, when positive, cuts downloaded payloads to this many bytes.
	Truncate int

	Uploads   int
	Downloads int
	Heads     int
}

var _ remote.ObjectStore = (*MemStore)(nil)

// New returns an empty store.
func New() *MemStore {
	return &MemStore{objects: map[string][]byte{}}
}

func id(bucket, key string) string { return bucket + "/" + key }

// Put seeds an object.
func (m *MemStore) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id(bucket, key)] = append([]byte(nil), data...)
}

// Get returns a stored object.
func (m *MemStore) Get(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[id(bucket, key)]
	return b, ok
}

// Keys lists stored keys of a bucket, sorted.
func (m *MemStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		if rest, ok := strings.CutPrefix(k, bucket+"/"); ok {
			out = append(out, rest)
		}
	}
	sort.Strings(out)
	return out
}

// Upload implements remote.ObjectStore.
func (m *MemStore) Upload(_ context.Context, bucket, key, path string) error {
	m.mu.Lock()
	m.Uploads++
	call := m.Uploads
	hook := m.UploadErr
	m.mu.Unlock()
	if hook != nil {
		if err := hook(call); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.Put(bucket, key, data)
	return nil
}

// Head implements remote.ObjectStore.
func (m *MemStore) Head(_ context.Context, bucket, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Heads++
	if m.HeadErr != nil {
		return 0, m.HeadErr
	}
	b, ok := m.objects[id(bucket, key)]
	if !ok {
		return 0, remote.ErrNotFound
	}
	if m.HeadSize != nil {
		return m.HeadSize(key), nil
	}
	return int64(len(b)), nil
}

// Download implements remote.ObjectStore.
func (m *MemStore) Download(_ context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	m.mu.Lock()
	m.Downloads++
	call := m.Downloads
	hook := m.DownloadErr
	b, ok := m.objects[id(bucket, key)]
	trunc := m.Truncate
	m.mu.Unlock()
	if hook != nil {
		if err := hook(call); err != nil {
			return 0, err
		}
	}
	if !ok {
		return 0, remote.ErrNotFound
	}
	if trunc > 0 && trunc < len(b) {
		b = b[:trunc]
	}
	n, err := w.WriteAt(b, 0)
	return int64(n), err
}

// List implements remote.ObjectStore.
func (m *MemStore) List(_ context.Context, bucket, prefix string) ([]remote.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []remote.Object
	for k, b := range m.objects {
		rest, ok := strings.CutPrefix(k, bucket+"/")
		if !ok || !strings.HasPrefix(rest, prefix) {
			continue
		}
		out = append(out, remote.Object{Key: rest, Size: int64(len(b))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
