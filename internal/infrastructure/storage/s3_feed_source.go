// Package storage reads carrier feed files from S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/erp/marketsync/internal/domain/integration"
	infraconfig "github.com/erp/marketsync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ProcessedPrefix is appended to the feed prefix for archived files
const ProcessedPrefix = "processed/"

var (
	// ErrBucketRequired is returned when no bucket is configured
	ErrBucketRequired = errors.New("storage: bucket is required")
	// ErrEmptyName is returned for an empty feed file name
	ErrEmptyName = errors.New("storage: feed file name is required")
)

// ObjectAPI is the subset of the S3 client the feed source calls
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3FeedSource lists feed files directly under a bucket prefix and archives
// them below prefix/processed/
type S3FeedSource struct {
	client  ObjectAPI
	bucket  string
	prefix  string
	pattern string
	logger  *zap.Logger
}

// S3FeedSourceOption configures S3FeedSource
type S3FeedSourceOption func(*S3FeedSource)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3FeedSourceOption {
	return func(s *S3FeedSource) { s.logger = logger }
}

// WithPattern sets the glob feed file names must match. Default "*.csv".
func WithPattern(pattern string) S3FeedSourceOption {
	return func(s *S3FeedSource) {
		if pattern != "" {
			s.pattern = pattern
		}
	}
}

var _ integration.FeedSource = (*S3FeedSource)(nil)

// NewS3FeedSource builds an S3 client from configuration. Static credentials
// are used when configured, otherwise the default AWS credential chain.
func NewS3FeedSource(ctx context.Context, cfg *infraconfig.StorageConfig, opts ...S3FeedSourceOption) (*S3FeedSource, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(regionOrDefault(cfg.Region))}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	var endpoint string
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("storage: invalid endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewS3FeedSourceWithClient(client, cfg.Bucket, cfg.Prefix, opts...), nil
}

// NewS3FeedSourceWithClient wraps an existing client
func NewS3FeedSourceWithClient(client ObjectAPI, bucket, prefix string, opts ...S3FeedSourceOption) *S3FeedSource {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	s := &S3FeedSource{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		pattern: "*.csv",
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func regionOrDefault(region string) string {
	if region == "" {
		return "us-east-1"
	}
	return region
}

// List returns feed files directly under the prefix, oldest first
func (s *S3FeedSource) List(ctx context.Context) ([]integration.FeedFile, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})

	var files []integration.FeedFile
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list feed files: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if ok, _ := path.Match(s.pattern, name); !ok {
				continue
			}
			f := integration.FeedFile{Name: name, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				f.ModTime = *obj.LastModified
			}
			files = append(files, f)
		}
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, nil
}

// Open streams a feed file. The caller closes the body.
func (s *S3FeedSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open feed file %s: %w", name, err)
	}
	return out.Body, nil
}

// Archive copies a feed file below processed/ and deletes the original
func (s *S3FeedSource) Archive(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	src := s.key(name)
	dst := s.prefix + ProcessedPrefix + path.Base(name)

	if _, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + (&url.URL{Path: src}).EscapedPath()),
		Key:        aws.String(dst),
	}); err != nil {
		return fmt.Errorf("storage: copy feed file %s: %w", name, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(src),
	}); err != nil {
		return fmt.Errorf("storage: delete feed file %s: %w", name, err)
	}

	s.logger.Info("Feed file archived",
		zap.String("bucket", s.bucket),
		zap.String("from", src),
		zap.String("to", dst),
	)
	return nil
}

func (s *S3FeedSource) key(name string) string {
	return s.prefix + path.Base(name)
}
