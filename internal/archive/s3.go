package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver stores completed brackets as JSON in an S3 compatible bucket
// such as R2 or MinIO.
type S3Archiver struct {
	client putObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

func NewS3Archiver(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("invalid archive configuration: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	sdkCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config for archive: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archiver(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Archiver(client putObjectAPI, bucket, prefix string, logger *slog.Logger) *S3Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (a *S3Archiver) Key(b *bracket.Bracket) string {
	return a.prefix + b.Tournament.ID.String() + ".json"
}

func (a *S3Archiver) Archive(ctx context.Context, b *bracket.Bracket) error {
	if b == nil || b.Tournament == nil {
		return fmt.Errorf("%w: nothing to archive", bracket.ErrValidation)
	}

	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode bracket %s: %w", b.Tournament.ID, err)
	}

	key := a.Key(b)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload bracket archive (key: %s): %w", key, err)
	}

	a.logger.Info("bracket archived", "tournament_id", b.Tournament.ID, "bucket", a.bucket, "key", key)
	return nil
}
