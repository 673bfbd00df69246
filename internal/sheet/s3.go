package sheet

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the part of the S3 client used to fetch files.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source fetches spreadsheets dropped in a bucket by field teams.
type S3Source struct {
	client  ObjectGetter
	maxSize int64
}

// NewS3Source loads the default AWS credential chain for region.
func NewS3Source(ctx context.Context, region string, maxSize int64) (*S3Source, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3SourceWithClient(s3.NewFromConfig(awsCfg), maxSize), nil
}

// NewS3SourceWithClient uses an existing client.
func NewS3SourceWithClient(client ObjectGetter, maxSize int64) *S3Source {
	return &S3Source{client: client, maxSize: maxSize}
}

// IsS3URI reports whether s looks like s3://bucket/key.
func IsS3URI(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri must be s3://bucket/key: %q", uri)
	}
	return bucket, key, nil
}

// Fetch downloads the object at uri and returns its bytes and base name.
func (s *S3Source) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, "", err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if s.maxSize > 0 && out.ContentLength != nil && *out.ContentLength > s.maxSize {
		return nil, "", fmt.Errorf("file too large: %d bytes (limit %d)", *out.ContentLength, s.maxSize)
	}

	body := io.Reader(out.Body)
	if s.maxSize > 0 {
		body = io.LimitReader(out.Body, s.maxSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, "", fmt.Errorf("file too large: limit %d bytes", s.maxSize)
	}
	return data, path.Base(key), nil
}
