// Package s3 implements medvault.BlobStore on an S3 bucket. The bucket only
// ever receives sealed blob envelopes; nothing readable lands there.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hengadev/medvault"
)

// Client is the subset of the S3 API the blob store uses, broken out so
// tests can substitute a fake.
type Client interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// BlobStore stores sealed blobs as S3 objects under a shared key prefix.
type BlobStore struct {
	client Client
	bucket string
	prefix string
}

// Config holds configuration for the S3 blob store.
type Config struct {
	// Bucket is the target bucket name. Required.
	Bucket string
	// Prefix is prepended to every object key, e.g. "medvault/". Optional.
	Prefix string
	// Region overrides the AWS region. If empty, the default AWS config
	// chain (env, shared config) decides.
	Region string
}

// New creates a BlobStore using the default AWS configuration chain.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", medvault.ErrInvalidConfiguration)
	}
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(awss3.NewFromConfig(awsCfg), cfg), nil
}

// NewWithClient creates a BlobStore over an existing S3 client.
func NewWithClient(client Client, cfg Config) *BlobStore {
	return &BlobStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("%w: s3 put %s: %v", medvault.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var notFound *s3types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: no blob at %s", medvault.ErrStoreUnavailable, key)
		}
		return nil, fmt.Errorf("%w: s3 get %s: %v", medvault.ErrStoreUnavailable, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: s3 read %s: %v", medvault.ErrStoreUnavailable, key, err)
	}
	return data, nil
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		return fmt.Errorf("%w: s3 delete %s: %v", medvault.ErrStoreUnavailable, key, err)
	}
	return nil
}
