// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tomtom215/xbackup/internal/config"
)

const (
	// DefaultMinIOImage is the MinIO server image
	DefaultMinIOImage = "minio/minio:latest"

	// DefaultMinIOPort is the S3 API port
	DefaultMinIOPort = "9000"

	// Root credentials configured in the container
	DefaultAccessKey = "xbackup"
	DefaultSecretKey = "xbackup-secret"

	minioRegion = "us-east-1"
)

// MinIOContainer represents a running MinIO container for testing.
type MinIOContainer struct {
	testcontainers.Container
	Endpoint  string
	AccessKey string
	SecretKey string
}

// MinIOOption configures the MinIO container.
type MinIOOption func(*minioConfig)

type minioConfig struct {
	image        string
	startTimeout time.Duration
}

// WithMinIOImage sets a custom MinIO Docker image.
func WithMinIOImage(image string) MinIOOption {
	return func(c *minioConfig) {
		c.image = image
	}
}

// WithStartTimeout sets how long to wait for the server to become healthy.
func WithStartTimeout(d time.Duration) MinIOOption {
	return func(c *minioConfig) {
		c.startTimeout = d
	}
}

// NewMinIOContainer creates and starts a new MinIO container for testing.
func NewMinIOContainer(ctx context.Context, opts ...MinIOOption) (*MinIOContainer, error) {
	cfg := &minioConfig{
		image:        DefaultMinIOImage,
		startTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultMinIOPort + "/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     DefaultAccessKey,
			"MINIO_ROOT_PASSWORD": DefaultSecretKey,
		},
		Cmd: []string{"server", "/data"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(DefaultMinIOPort+"/tcp"),
			wait.ForHTTP("/minio/health/live").WithPort(DefaultMinIOPort+"/tcp"),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, DefaultMinIOPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &MinIOContainer{
		Container: container,
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		AccessKey: DefaultAccessKey,
		SecretKey: DefaultSecretKey,
	}, nil
}

// StorageConfig returns an s3 storage configuration pointing at bucket.
func (m *MinIOContainer) StorageConfig(bucket string) config.StorageConfig {
	return config.StorageConfig{
		Type: "s3",
		S3: config.S3StorageConfig{
			Bucket:          bucket,
			Region:          minioRegion,
			Endpoint:        m.Endpoint,
			AccessKeyID:     m.AccessKey,
			SecretAccessKey: m.SecretKey,
			UsePathStyle:    true,
		},
	}
}

// CreateBucket creates bucket on the server.
func (m *MinIOContainer) CreateBucket(ctx context.Context, bucket string) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(minioRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(m.AccessKey, m.SecretKey, "")),
	)
	if err != nil {
		return err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(m.Endpoint)
	})
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}
