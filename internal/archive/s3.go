package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pGUPT4/news-app/internal/apperror"
)

// S3API is the slice of *s3.Client this package uses. Keeping it narrow
// lets tests substitute an in-memory fake without a network.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds what NewS3Client needs to build an SDK client.
type S3Config struct {
	Region          string
	Endpoint        string // set for S3-compatible providers (MinIO, R2, ...)
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an SDK client with static credentials.
//
// The credentials come from configuration rather than the default AWS
// chain so a misconfigured deployment fails at startup, not on the first
// upload.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// S3 implements Store on top of an S3 bucket.
type S3 struct {
	client  S3API
	bucket  string
	timeout time.Duration
	logger  *slog.Logger
}

// compile-time check that *S3 implements Store
var _ Store = (*S3)(nil)

// NewS3 wraps client for bucket. Each SDK call is bounded by timeout.
func NewS3(client S3API, bucket string, timeout time.Duration, logger *slog.Logger) *S3 {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &S3{
		client:  client,
		bucket:  bucket,
		timeout: timeout,
		logger:  logger,
	}
}

// Put uploads data as a JSON object.
func (s *S3) Put(ctx context.Context, key string, data []byte) UploadResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		s.logger.Error("archive: put failed",
			slog.String("bucket", s.bucket),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return UploadResult{OK: false, Message: fmt.Sprintf("upload failed: %v", err)}
	}

	s.logger.Debug("archive: put object",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int("bytes", len(data)),
	)
	return UploadResult{OK: true, Key: key}
}

// LatestKey lists every page under prefix and returns the newest key.
//
// PAGINATION:
// ListObjectsV2 returns at most 1000 keys per call. The paginator follows
// ContinuationToken until IsTruncated is false, so "latest" is computed
// over the whole prefix and not just its first page.
func (s *S3) LatestKey(ctx context.Context, prefix string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", apperror.Transport("archive", fmt.Errorf("listing %q: %w", prefix, err))
		}
		for _, o := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(o.Key),
				LastModified: aws.ToTime(o.LastModified),
				Size:         aws.ToInt64(o.Size),
			})
		}
	}

	latest, ok := Latest(objects)
	if !ok {
		return "", apperror.NotFoundMessage("No processed files found")
	}
	return latest.Key, nil
}

// Get downloads the object at key.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("archive object", key)
		}
		return nil, apperror.Transport("archive", fmt.Errorf("getting %q: %w", key, err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperror.Transport("archive", fmt.Errorf("reading %q: %w", key, err))
	}
	return data, nil
}

// isNotFound recognises a missing key both by the typed SDK error and by
// the generic API error code some S3-compatible providers return instead.
func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
