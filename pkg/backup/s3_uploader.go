package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader uploads a profile's memory.db to a configured S3 bucket,
// keyed by profile name and a timestamp so prior snapshots are retained.
type S3Uploader struct {
	client  *s3.Client
	bucket  string
	prefix  string
	profile string
}

// S3UploaderConfig configures an S3Uploader.
type S3UploaderConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string
	Profile  string
}

// NewS3Uploader builds an uploader from cfg.
func NewS3Uploader(ctx context.Context, cfg S3UploaderConfig) (*S3Uploader, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("backup: loading AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}

	return &S3Uploader{
		client:  s3.NewFromConfig(awsCfg, clientOpts),
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		profile: cfg.Profile,
	}, nil
}

// Upload reads dbPath and puts it to S3 under
// <prefix><profile>/<unix-timestamp>.db.
func (u *S3Uploader) Upload(ctx context.Context, dbPath string) (RemoteOutcome, error) {
	data, err := os.ReadFile(dbPath)
	if err != nil {
		return RemoteOutcome{Attempted: true, OK: false, Error: err.Error()}, nil
	}

	key := fmt.Sprintf("%s%s/%d.db", u.prefix, u.profile, time.Now().Unix())

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return RemoteOutcome{Attempted: true, OK: false, Error: err.Error()}, nil
	}

	return RemoteOutcome{Attempted: true, OK: true, Key: key}, nil
}
