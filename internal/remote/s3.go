package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/guttosm/b3lake/internal/apperr"
)

const (
	// PartSize is the multipart threshold and part size: smaller files go in a single PUT.
	PartSize = 64 * 1024 * 1024
	// PartConcurrency caps parallel parts for one object.
	PartConcurrency = 2
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	s3.HeadObjectAPIClient
	s3.ListObjectsV2APIClient
}

// S3Options configures the S3 client.
type S3Options struct {
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

// S3Store implements ObjectStore with aws-sdk-go-v2 transfer managers.
type S3Store struct {
	client     S3API
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

var _ ObjectStore = (*S3Store)(nil)

// NewS3Store loads the default AWS credential chain and builds a store.
//
// Behavior:
//   - Resolves credentials once up front; an empty or broken chain is reported
//     as apperr.ErrCredentials before any transfer starts.
//   - A custom endpoint (MinIO, localstack) and path-style addressing are honored.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrConfig, fmt.Errorf("load aws config: %w", err))
	}
	if cfg.Credentials == nil {
		return nil, apperr.Errorf(apperr.ErrCredentials, "no AWS credential provider configured")
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, apperr.Wrap(apperr.ErrCredentials, err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})
	return NewS3StoreFromClient(client), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client S3API) *S3Store {
	return &S3Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = PartSize
			u.Concurrency = PartConcurrency
		}),
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = PartSize
			d.Concurrency = PartConcurrency
		}),
	}
}

// Upload implements ObjectStore.
func (s *S3Store) Upload(ctx context.Context, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
	})
	return classify(err)
}

// Head implements ObjectStore.
func (s *S3Store) Head(ctx context.Context, bucket, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, classify(err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Download implements ObjectStore.
func (s *S3Store) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	n, err := s.downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return n, classify(err)
}

// List implements ObjectStore.
func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	var out []Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, o := range page.Contents {
			out = append(out, Object{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)})
		}
	}
	return out, nil
}

// classify maps SDK errors to ErrAccessDenied / ErrNotFound, keeping the cause.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "AccessDenied", "Forbidden", "403", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		switch re.HTTPStatusCode() {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	}
	return err
}
