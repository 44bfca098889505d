package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by the synced tier.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures the synced tier backend. Any S3-compatible object
// store works (MinIO included) via BaseEndpoint.
type S3Options struct {
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	// Prefix namespaces this install's keys inside the bucket.
	Prefix string
}

// S3Tier is the propagating tier: one JSON object per key under the install
// prefix. Unavailability (no credentials, network down, access denied) is a
// normal condition that makes the Store fall back to the local tier.
type S3Tier struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Tier(client S3API, bucket, prefix string) *S3Tier {
	return &S3Tier{client: client, bucket: bucket, prefix: prefix}
}

// NewS3TierFromOptions builds the tier with its own S3 client.
func NewS3TierFromOptions(ctx context.Context, opts S3Options) (*S3Tier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return NewS3Tier(client, opts.Bucket, opts.Prefix), nil
}

func (t *S3Tier) objectKey(key string) string {
	return path.Join(t.prefix, key+".json")
}

func (t *S3Tier) Get(ctx context.Context, keys ...string) (Record, error) {
	rec := Record{}
	for _, key := range keys {
		out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(t.objectKey(key)),
		})
		if err != nil {
			var noSuchKey *types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				continue
			}
			return nil, fmt.Errorf("failed to get %s from sync tier: %w", key, err)
		}

		value, err := io.ReadAll(out.Body)
		_ = out.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from sync tier: %w", key, err)
		}
		rec[key] = value
	}
	return rec, nil
}

func (t *S3Tier) Set(ctx context.Context, rec Record) error {
	for key, value := range rec {
		_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(t.bucket),
			Key:         aws.String(t.objectKey(key)),
			Body:        bytes.NewReader(value),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("failed to put %s to sync tier: %w", key, err)
		}
	}
	return nil
}
