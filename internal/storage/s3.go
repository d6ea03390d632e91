package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cinelog/internal/pkg/crypto"
)

// S3API is the subset of *s3.Client used by S3Backend.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures NewS3Client.
type S3Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3Client builds an S3 client for an AWS or S3-compatible endpoint.
// Static credentials are used when an access key is given, otherwise the
// default AWS credential chain applies.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

// S3Backend stores images as objects in one bucket, optionally below a prefix.
type S3Backend struct {
	client S3API
	bucket string
	prefix string
	paths  PathConfig
	logger zerolog.Logger
}

// NewS3Backend creates a backend writing to bucket.
func NewS3Backend(client S3API, bucket, prefix string, logger zerolog.Logger) *S3Backend {
	return &S3Backend{
		client: client,
		bucket: bucket,
		prefix: prefix,
		paths:  DefaultPathConfig(),
		logger: logger.With().Str("component", "storage").Str("backend", "s3").Str("bucket", bucket).Logger(),
	}
}

// Store implements Backend. The image is buffered to hash it before upload.
func (b *S3Backend) Store(ctx context.Context, reader io.Reader, ext string) (string, error) {
	hr := crypto.NewHashReader(io.LimitReader(reader, MaxImageSize+1))
	data, err := io.ReadAll(hr)
	if err != nil {
		return "", fmt.Errorf("failed to read ticket image: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if hr.Size() > MaxImageSize {
		return "", ErrTooLarge
	}

	key := ComputeKey(b.paths, hr.SHA256(), ext)

	exists, err := b.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		b.logger.Debug().Str("key", key).Msg("ticket image already stored")
		return key, nil
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload ticket image: %w", err)
	}

	b.logger.Debug().Str("key", key).Int("size", len(data)).Msg("ticket image stored")
	return key, nil
}

// Retrieve implements Backend.
func (b *S3Backend) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	if !ValidateKey(b.paths, key) {
		return nil, ErrInvalidKey
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to download ticket image: %w", err)
	}
	return out.Body, nil
}

// Delete implements Backend.
func (b *S3Backend) Delete(ctx context.Context, key string) error {
	exists, err := b.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete ticket image: %w", err)
	}
	return nil
}

// Exists implements Backend.
func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	if !ValidateKey(b.paths, key) {
		return false, ErrInvalidKey
	}
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat ticket image: %w", err)
}

func (b *S3Backend) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

var _ Backend = (*S3Backend)(nil)
