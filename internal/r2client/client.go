// Package r2client provides a client for Cloudflare R2 object storage.
// It wraps the AWS S3 SDK with the operations catalogue snapshots need:
// streaming upload and download, ETag checks, conditional writes for the
// publish lock and zstd compression.
package r2client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("r2client: object not found")

// ObjectStore is the object storage surface used by snapshots and locks.
// *Client implements it against R2.
type ObjectStore interface {
	// Upload stores body under key and returns the new ETag.
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	// Download returns the object body and ETag. Caller must close the body.
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	// HeadObject returns the ETag without downloading the body.
	HeadObject(ctx context.Context, key string) (string, error)
	// PutObjectIfNotExists creates key only if it is absent.
	PutObjectIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (bool, string, error)
	// PutObjectIfMatch replaces key only if its ETag still matches.
	PutObjectIfMatch(ctx context.Context, key string, body io.Reader, etag, contentType string) (bool, string, error)
	DeleteObject(ctx context.Context, key string) error
}

var _ ObjectStore = (*Client)(nil)

// Config holds R2 client configuration.
type Config struct {
	Endpoint    string // R2 endpoint URL (e.g., https://account-id.r2.cloudflarestorage.com)
	AccessKeyID string
	SecretKey   string
	BucketName  string
}

// Validate reports every missing field.
func (c Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.AccessKeyID == "" {
		errs = append(errs, errors.New("access key id is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.BucketName == "" {
		errs = append(errs, errors.New("bucket name is required"))
	}
	return errors.Join(errs...)
}

// Client provides R2 object storage operations.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates a new R2 client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("r2client: %w", err)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretKey,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("r2client: load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // Required for R2
	})

	return &Client{
		s3:     s3Client,
		bucket: cfg.BucketName,
	}, nil
}

// Upload uploads an object to R2.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	etag, err := c.put(ctx, key, body, contentType, nil)
	if err != nil {
		return "", fmt.Errorf("r2client: upload %q: %w", key, err)
	}
	return etag, nil
}

// Download downloads an object from R2.
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	result, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("r2client: download %q: %w", key, err)
	}
	return result.Body, trimETag(result.ETag), nil
}

// HeadObject retrieves the ETag of an object.
func (c *Client) HeadObject(ctx context.Context, key string) (string, error) {
	result, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("r2client: head %q: %w", key, err)
	}
	return trimETag(result.ETag), nil
}

// PutObjectIfNotExists uses If-None-Match: * so only one writer can create key.
// Returns (false, "", nil) if the object already exists.
func (c *Client) PutObjectIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (bool, string, error) {
	etag, err := c.put(ctx, key, body, contentType, func(in *s3.PutObjectInput) {
		in.IfNoneMatch = aws.String("*")
	})
	return conditional(key, etag, err)
}

// PutObjectIfMatch uses If-Match so the write fails if key changed since etag was read.
// Returns (false, "", nil) on ETag mismatch.
func (c *Client) PutObjectIfMatch(ctx context.Context, key string, body io.Reader, etag, contentType string) (bool, string, error) {
	newETag, err := c.put(ctx, key, body, contentType, func(in *s3.PutObjectInput) {
		in.IfMatch = aws.String(`"` + etag + `"`)
	})
	return conditional(key, newETag, err)
}

// DeleteObject deletes an object from R2.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("r2client: delete %q: %w", key, err)
	}
	return nil
}

func (c *Client) put(ctx context.Context, key string, body io.Reader, contentType string, opt func(*s3.PutObjectInput)) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if opt != nil {
		opt(input)
	}

	result, err := c.s3.PutObject(ctx, input)
	if err != nil {
		return "", err
	}
	return trimETag(result.ETag), nil
}

func conditional(key, etag string, err error) (bool, string, error) {
	if err == nil {
		return true, etag, nil
	}
	if isPreconditionFailed(err) {
		return false, "", nil
	}
	return false, "", fmt.Errorf("r2client: conditional put %q: %w", key, err)
}

func trimETag(etag *string) string {
	if etag == nil {
		return ""
	}
	return strings.Trim(*etag, `"`)
}

// isPreconditionFailed matches a 412 from a conditional write.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusPreconditionFailed
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
