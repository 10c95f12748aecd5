// Package objectstore is the external backend: an S3-compatible object
// service reached through minio-go.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"assetvault/internal/domain/storage"
)

const DefaultUploadTTL = time.Hour

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	UploadTTL time.Duration
}

type Client struct {
	Client    *minio.Client
	bucket    string
	region    string
	uploadTTL time.Duration
}

var _ storage.ExternalObjectService = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("object store endpoint is not configured")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("object store bucket is not configured")
	}
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = DefaultUploadTTL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store client: %w", err)
	}
	return &Client{Client: client, bucket: cfg.Bucket, region: cfg.Region, uploadTTL: cfg.UploadTTL}, nil
}

// EnsureBucket creates the bucket unless it already exists.
func (c *Client) EnsureBucket(ctx context.Context) error {
	err := c.Client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region})
	if err != nil {
		exists, errBucketExists := c.Client.BucketExists(ctx, c.bucket)
		if errBucketExists == nil && exists {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// IssueUploadURL presigns a PUT for key.
func (c *Client) IssueUploadURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("objectKey cannot be empty")
	}
	u, err := c.Client.PresignedPutObject(ctx, c.bucket, key, c.uploadTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload: %w", err)
	}
	return u.String(), nil
}

func (c *Client) Store(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if key == "" {
		return "", errors.New("objectKey cannot be empty")
	}
	_, err := c.Client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return key, nil
}

func (c *Client) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = storage.DefaultSignedURLTTL
	}
	u, err := c.Client.PresignedGetObject(ctx, c.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return u.String(), nil
}

// Remove deletes an object. It backs the out-of-band delete of keys the
// retention sweep hands back, and is not part of the storage contract.
func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.Client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	return nil
}
