// Package s3 implements objectstore.Backend on AWS S3 (or any
// S3-compatible service).
package s3

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
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/poiesic/reportpipe/core"
	"github.com/poiesic/reportpipe/objectstore"
)

// Config holds the settings required to reach an S3 bucket.
type Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("%w: S3 credentials not set", core.ErrConfiguration)
	}
	if c.Region == "" {
		return fmt.Errorf("%w: S3 region not set", core.ErrConfiguration)
	}
	if c.Bucket == "" {
		return fmt.Errorf("%w: S3 bucket name not set", core.ErrConfiguration)
	}
	return nil
}

// Backend implements objectstore.Backend on S3.
type Backend struct {
	client *s3.Client
	region string
	bucket string
	logger *slog.Logger
}

// NewBackend connects to S3 with static credentials.
func NewBackend(ctx context.Context, cfg *Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	logger := slog.Default().With("component", "s3-backend")
	logger.Info("connected to S3", "region", cfg.Region, "bucket", cfg.Bucket)

	return &Backend{
		client: s3.NewFromConfig(awsCfg),
		region: cfg.Region,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// Put uploads an object with user metadata, overwriting any existing
// object at path.
func (b *Backend) Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error {
	uploader := manager.NewUploader(b.client)

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

// Get reads an object's content.
func (b *Backend) Get(ctx context.Context, path string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := b.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, path)
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// List returns all objects under prefix. S3 listings do not carry user
// metadata, so each key is followed up with a HeadObject call.
func (b *Backend) List(ctx context.Context, prefix string) ([]core.ReportArtifact, error) {
	var artifacts []core.ReportArtifact

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			artifact := core.ReportArtifact{
				Path: key,
				URL:  b.URL(key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				artifact.Updated = *obj.LastModified
			}

			head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(b.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				b.logger.Warn("head object failed, listing without metadata", "key", key, "err", err)
			} else {
				artifact.Metadata = head.Metadata
				if head.LastModified != nil {
					artifact.Created = *head.LastModified
				}
			}

			artifacts = append(artifacts, artifact)
		}
	}
	return artifacts, nil
}

// Delete removes an object. S3 treats deletes of absent keys as
// success, which matches the idempotent-delete contract directly.
func (b *Backend) Delete(ctx context.Context, path string) error {
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := b.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// URL returns the virtual-hosted-style URL for an object.
func (b *Backend) URL(path string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucket, b.region, path)
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (b *Backend) Close() error { return nil }

var _ objectstore.Backend = (*Backend)(nil)
