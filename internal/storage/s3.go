// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/tomtom215/xbackup/internal/bandwidth"
	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/logging"
	"github.com/tomtom215/xbackup/internal/retention"
)

// S3 stores objects in an S3-compatible bucket. Uploads go through the
// multipart uploader so archives larger than a single PUT allows still work.
type S3 struct {
	bucket   string
	client   *s3.Client
	uploader *manager.Uploader
	limit    *bandwidth.Limiter
	log      zerolog.Logger
}

// NewS3 builds the client. Static credentials are used when both keys are
// set; otherwise the SDK default chain applies.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewS3(ctx context.Context, cfg config.S3StorageConfig, log zerolog.Logger) (*S3, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	accessKey := strings.TrimSpace(cfg.AccessKeyID)
	secretKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSize >= manager.MinUploadPartSize {
			u.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})

	return &S3{
		bucket:   bucket,
		client:   client,
		uploader: uploader,
		log:      logging.WithComponent(log, "storage-s3").With().Str("bucket", bucket).Logger(),
	}, nil
}

// Name implements Backend.
func (s *S3) Name() string { return "s3" }

// SetLimiter throttles uploads across all parallel parts; nil removes the limit.
func (s *S3) SetLimiter(lim *bandwidth.Limiter) { s.limit = lim }

// Upload implements Backend.
//
//nolint:gosec // G304: localPath is an artifact in the work dir
func (s *S3) Upload(ctx context.Context, localPath, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        s.limit.Reader(ctx, f),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.log.Debug().Str("key", key).Str("location", out.Location).Msg("Object uploaded")
	return nil
}

// Download implements Backend.
func (s *S3) Download(ctx context.Context, key, localPath string) (err error) {
	key, err = cleanKey(key)
	if err != nil {
		return err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close() //nolint:errcheck // response body

	tmp, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".*.partial")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()           //nolint:errcheck // Best effort cleanup on error
			os.Remove(tmp.Name()) //nolint:errcheck // Best effort cleanup on error
		}
	}()

	if _, err = tmp.ReadFrom(&ctxReader{ctx: ctx, r: out.Body}); err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), localPath)
}

// List implements Backend.
func (s *S3) List(ctx context.Context, prefix string) ([]retention.Record, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var records []retention.Record
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			records = append(records, retention.Record{
				Path:    key,
				ModTime: aws.ToTime(obj.LastModified),
				Size:    aws.ToInt64(obj.Size),
				IsDir:   strings.HasSuffix(key, "/"),
			})
		}
	}
	return records, nil
}

// Delete implements Backend.
func (s *S3) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
