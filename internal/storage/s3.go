package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config holds connection details for an S3-compatible object store
// (AWS S3 or MinIO).
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Store keeps images in an S3-compatible bucket. References are
// object keys; URLFor builds path-style URLs against the configured
// endpoint.
type S3Store struct {
	client   *s3.Client
	endpoint string
	bucket   string
}

// NewS3Store builds the S3 client with static credentials and a
// custom base endpoint so it works against MinIO as well as AWS.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:   client,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		bucket:   cfg.Bucket,
	}, nil
}

// Save validates the upload and puts it under a date-partitioned
// generated key, returning the key as the reference.
func (s *S3Store) Save(ctx context.Context, up Upload) (string, error) {
	ext, err := checkUpload(up)
	if err != nil {
		return "", err
	}

	now := time.Now()
	key := fmt.Sprintf("events/%d/%02d/%s%s", now.Year(), now.Month(), uuid.New(), ext)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          up.Reader,
		ContentType:   aws.String(up.ContentType),
		ContentLength: aws.Int64(up.Size),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image to bucket %s: %w", s.bucket, err)
	}

	return key, nil
}

// Release deletes the object behind a reference.
func (s *S3Store) Release(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	key := s.keyFor(ref)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", key, err)
	}
	return nil
}

// URLFor builds a path-style URL for an object key; absolute URLs
// pass through unchanged.
func (s *S3Store) URLFor(ref string) string {
	if ref == "" || isAbsoluteURL(ref) {
		return ref
	}
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, ref)
}

// keyFor recovers the object key from a reference that may have been
// stored as a full URL by an earlier deployment.
func (s *S3Store) keyFor(ref string) string {
	prefix := fmt.Sprintf("%s/%s/", s.endpoint, s.bucket)
	return strings.TrimPrefix(ref, prefix)
}
