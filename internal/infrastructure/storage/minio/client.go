// Package minio stores matrix archives in an S3-compatible bucket.
package minio

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client used by this package.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinIOConfig holds the connection settings for the archive bucket.
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key"`
	SecretAccessKey string        `mapstructure:"secret_key"`
	Bucket          string        `mapstructure:"bucket"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	// Prefix is prepended to every archive key.
	Prefix         string        `mapstructure:"prefix"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

const (
	defaultRegion         = "us-east-1"
	defaultBucket         = "occurrence-matrix"
	defaultConnectTimeout = 10 * time.Second
)

func applyDefaults(cfg *MinIOConfig) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.Bucket == "" {
		cfg.Bucket = defaultBucket
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
}

// Client wraps the MinIO SDK client with the configured bucket.
type Client struct {
	api    MinIOAPI
	config MinIOConfig
	logger logging.Logger
}

// NewClient connects to cfg.Endpoint, verifies the credentials and creates
// the archive bucket if it does not exist.
func NewClient(cfg MinIOConfig, logger logging.Logger) (*Client, error) {
	applyDefaults(&cfg)
	if cfg.Endpoint == "" {
		return nil, errors.InvalidParam("minio endpoint is required")
	}

	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if _, err := api.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio")
	}

	c := NewClientWithAPI(api, cfg, logger)
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("MinIO client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

// NewClientWithAPI builds a Client around an existing API implementation.
func NewClientWithAPI(api MinIOAPI, cfg MinIOConfig, logger logging.Logger) *Client {
	applyDefaults(&cfg)
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{api: api, config: cfg, logger: logger.Named("minio")}
}

// Config returns the effective configuration.
func (c *Client) Config() MinIOConfig { return c.config }

// Bucket returns the configured archive bucket.
func (c *Client) Bucket() string { return c.config.Bucket }

// EnsureBucket creates the archive bucket when it is missing.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket existence").WithDetail(c.config.Bucket)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.config.Bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create bucket").WithDetail(c.config.Bucket)
	}
	c.logger.Info("Created bucket", logging.String("bucket", c.config.Bucket))
	return nil
}

// Name identifies the client to readiness probes.
func (c *Client) Name() string { return "minio" }

// Check reports whether the endpoint is reachable and the bucket exists.
func (c *Client) Check(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "minio unreachable")
	}
	if !exists {
		return errors.New(errors.ErrCodeServiceUnavailable, "archive bucket missing").WithDetail(c.config.Bucket)
	}
	return nil
}
