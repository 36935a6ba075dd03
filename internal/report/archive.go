package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver stores a finished report and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, r *Report) (string, error)
}

// FileArchiver writes <Dir>/<run id>.json.
type FileArchiver struct {
	Dir string
}

// Archive implements Archiver.
func (a *FileArchiver) Archive(_ context.Context, r *Report) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	target := filepath.Join(a.Dir, r.RunID+".json")
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	if err := Write(f, r, FormatJSON); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}
	return target, nil
}

// S3Options configures the S3 archive.
type S3Options struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// putObjectAPI is the part of the S3 client the archiver uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads reports as JSON objects.
type S3Archiver struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3Archiver builds an S3 client from o. Static credentials are used when
// given, otherwise the default AWS credential chain. An endpoint switches to
// path-style addressing for S3-compatible stores.
func NewS3Archiver(ctx context.Context, o S3Options) (*S3Archiver, error) {
	if o.Bucket == "" {
		return nil, fmt.Errorf("s3 archive needs a bucket")
	}
	region := o.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if o.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(opts *s3.Options) {
		if o.Endpoint != "" {
			opts.BaseEndpoint = aws.String(o.Endpoint)
			opts.UsePathStyle = true
		}
	})
	return &S3Archiver{client: client, bucket: o.Bucket, prefix: o.Prefix}, nil
}

// Archive implements Archiver.
func (a *S3Archiver) Archive(ctx context.Context, r *Report) (string, error) {
	var buf bytes.Buffer
	if err := Write(&buf, r, FormatJSON); err != nil {
		return "", err
	}
	key := path.Join(a.prefix, r.RunID+".json")
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report to s3://%s/%s: %w", a.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
