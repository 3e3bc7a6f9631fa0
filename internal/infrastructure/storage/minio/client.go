// Package minio stores screening artifacts in S3-compatible object storage.
package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/keyshape/internal/config"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
)

// ObjectAPI is the subset of *minio.Client the store uses.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Client writes JSON objects into a single bucket.
type Client struct {
	api    ObjectAPI
	cfg    config.StorageConfig
	logger logging.Logger
}

// NewClient connects to cfg.Endpoint and creates the bucket when missing.
func NewClient(ctx context.Context, cfg config.StorageConfig, logger logging.Logger) (*Client, error) {
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create object storage client")
	}
	c := NewClientWithAPI(api, cfg, logger)
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("object storage connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

// NewClientWithAPI wraps an existing ObjectAPI.
func NewClientWithAPI(api ObjectAPI, cfg config.StorageConfig, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{api: api, cfg: cfg, logger: logger.Named("object_storage")}
}

func (c *Client) Bucket() string { return c.cfg.Bucket }

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to check bucket").WithDetail("bucket=" + c.cfg.Bucket)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.cfg.Bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to create bucket").WithDetail("bucket=" + c.cfg.Bucket)
	}
	c.logger.Info("created bucket", logging.String("bucket", c.cfg.Bucket))
	return nil
}

// PutJSON stores v under key and returns the stored size.
func (c *Client) PutJSON(ctx context.Context, key string, v interface{}) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode object").WithDetail("key=" + key)
	}
	info, err := c.api.PutObject(ctx, c.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to upload object").WithDetail("key=" + key)
	}
	c.logger.Debug("object stored", logging.String("key", key), logging.Int64("size", info.Size))
	return info.Size, nil
}

// PresignGet returns a download URL valid for cfg.PresignExpiry.
func (c *Client) PresignGet(ctx context.Context, key string) (string, time.Time, error) {
	u, err := c.api.PresignedGetObject(ctx, c.cfg.Bucket, key, c.cfg.PresignExpiry, nil)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to presign object").WithDetail("key=" + key)
	}
	return u.String(), time.Now().Add(c.cfg.PresignExpiry), nil
}

func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.api.RemoveObject(ctx, c.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to remove object").WithDetail("key=" + key)
	}
	return nil
}

// HealthCheck reports whether the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	ok, err := c.api.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "object storage unreachable")
	}
	if !ok {
		return errors.New(errors.ErrCodeServiceUnavailable, "bucket missing").WithDetail("bucket=" + c.cfg.Bucket)
	}
	return nil
}
