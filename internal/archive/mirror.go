// Package archive mirrors published blobs into an S3-compatible cold
// archive bucket. Mirroring is strictly best-effort: a publish that
// succeeded on the blob store and the ledger is never failed because the
// archive copy did not land.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dverbin/mediavault/internal/logging"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
)

// Options describe the target bucket and its credentials.
type Options struct {
	Region       string
	BaseEndpoint string
	Bucket       string
	AccessKey    string
	SecretKey    string
}

type Mirror struct {
	opts Options
	log  logging.Logger
}

func NewMirror(opts Options, log logging.Logger) *Mirror {
	return &Mirror{opts: opts, log: log}
}

func (m *Mirror) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(m.opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			m.opts.AccessKey,
			m.opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if m.opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(m.opts.BaseEndpoint)
		}
	})

	return client, nil
}

// StorageKey returns the archive key for a blob, partitioned by upload
// date so buckets stay listable.
func StorageKey(blobID string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("blobs/%d/%02d/%02d/%s", d.Year(), d.Month(), d.Day(), blobID)
}

// Store uploads the sealed blob bytes under its content id. Errors are
// returned so the caller can log them, but callers must not treat them
// as publish failures.
func (m *Mirror) Store(ctx context.Context, blobID string, data []byte) error {
	client, err := m.getClient(ctx)
	if err != nil {
		return fmt.Errorf("configuring archive client: %w", err)
	}

	key := StorageKey(blobID)
	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.opts.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("archiving blob %s: %w", blobID, err)
	}

	m.log.Info(ctx, "blob mirrored to archive", "blobId", blobID, "key", key, "size", len(data))
	return nil
}
