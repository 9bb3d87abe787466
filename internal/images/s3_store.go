package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/platepay/platepay-api/internal/config"
	apperrors "github.com/platepay/platepay-api/pkg/errors"
	"github.com/platepay/platepay-api/pkg/logger"
	"github.com/platepay/platepay-api/pkg/retry"
)

// MaxImageSize caps menu image uploads at 10 MB
const MaxImageSize = 10 << 20

var contentTypeExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// S3Store uploads menu item images to S3-compatible storage. Keys are
// content hashes, so re-uploading the same image is a no-op.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger logger.Logger
}

// NewS3Store creates a new S3-backed image store
func NewS3Store(ctx context.Context, cfg config.S3Config, logger logger.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// Upload stores an image and returns its object key. The upload is retried
// with backoff on transient failures.
func (s *S3Store) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", apperrors.NewInvalidInputError("image payload is empty")
	}

	if len(data) > MaxImageSize {
		return "", apperrors.NewInvalidInputError("image exceeds the 10 MB limit")
	}

	ext, ok := contentTypeExt[contentType]

	if !ok {
		return "", apperrors.NewInvalidInputError(fmt.Sprintf("unsupported image type %q", contentType))
	}

	sum := sha256.Sum256(data)
	key := s.prefix + hex.EncodeToString(sum[:]) + ext

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	if err == nil {
		return key, nil
	}

	err = retry.Retry(ctx, func() error {
		_, putErr := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		return putErr
	}, &retry.RetryConfig{
		MaxAttempts:     3,
		BackoffStrategy: retry.NewDefaultExponentialBackoff(),
		Logger:          s.logger,
	})

	if err != nil {
		return "", fmt.Errorf("image upload failed: %w", err)
	}

	s.logger.Info("Menu image uploaded", "key", key, "bytes", len(data))
	return key, nil
}

// Delete removes an image by key
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		return fmt.Errorf("image delete failed: %w", err)
	}

	return nil
}
