package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	uploadTimeout  = 5 * time.Second
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// S3Uploader writes archive objects to an S3 bucket with bounded retry.
// SDK-level retries are disabled; this uploader owns the backoff so the
// cap applies across the whole attempt budget.
type S3Uploader struct {
	client     *s3.Client
	bucket     string
	maxRetries int
}

func NewS3Uploader(ctx context.Context, region, bucket string, maxRetries int) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})

	if maxRetries < 1 {
		maxRetries = 1
	}
	return &S3Uploader{client: client, bucket: bucket, maxRetries: maxRetries}, nil
}

// Upload puts body at key, retrying with exponential backoff. Each
// attempt gets a fresh reader and its own timeout; cancellation of ctx
// aborts immediately.
func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= u.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := u.putObject(ctx, key, body); err != nil {
			lastErr = err
		} else {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return fmt.Errorf("archive: upload %s after %d attempts: %w", key, u.maxRetries, lastErr)
}

func (u *S3Uploader) putObject(ctx context.Context, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	return err
}
