// Package remote mirrors partition files to and from an S3-compatible object store
// with size-verified, retried transfers.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/guttosm/b3lake/internal/apperr"
	"github.com/guttosm/b3lake/internal/schema"
)

var (
	// ErrAccessDenied marks authorization failures. They are never retried.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound marks a missing bucket or key.
	ErrNotFound = errors.New("object not found")
	// ErrSizeMismatch marks a transfer whose remote and local sizes disagree.
	ErrSizeMismatch = errors.New("size mismatch")
)

// Object is one listed remote object.
type Object struct {
	Key  string
	Size int64
}

// ObjectStore is the transfer surface the syncer needs.
type ObjectStore interface {
	// Upload sends the local file at path to bucket/key.
	Upload(ctx context.Context, bucket, key, path string) error
	// Head returns the content length of bucket/key.
	Head(ctx context.Context, bucket, key string) (int64, error)
	// Download writes bucket/key into w and returns the number of bytes written.
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
	// List returns every object under prefix.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
}

// TransferError reports an exhausted or fatal transfer.
// It always matches apperr.ErrRuntime.
type TransferError struct {
	Op     string // "upload" or "download"
	Bucket string
	Key    string
	Err    error
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("%s failed: s3://%s/%s", e.Op, e.Bucket, e.Key)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the last cause and the runtime category.
func (e *TransferError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperr.ErrRuntime}
	}
	return []error{e.Err, apperr.ErrRuntime}
}

// PartitionKey builds <prefix>/dt=<day>/b3_stocks.parquet.
func PartitionKey(prefix, day string) string {
	return path.Join(prefix, "dt="+day, schema.FileName)
}
