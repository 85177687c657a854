package objectstorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
	conf "github.com/trunov/csvimages/internal/config"
	"github.com/trunov/csvimages/internal/entities"
)

// S3 is one bucket on an S3 compatible store (AWS S3 or Cloudflare R2).
type S3 struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string

	MaxRetries     int
	RetryBaseDelay time.Duration

	S3Client *s3.Client
	Uploader *manager.Uploader
}

// NewClient builds an S3 API client. Static credentials are used when
// configured, otherwise the default AWS credential chain.
func NewClient(ctx context.Context, cfg *conf.S3Config) (*s3.Client, error) {
	region := cfg.Region
	if cfg.AccountID != "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretKey, "",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := endpointFor(cfg)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle || cfg.AccountID != ""
	}), nil
}

func endpointFor(cfg *conf.S3Config) string {
	if cfg.Endpoint != "" {
		return cfg.Endpoint
	}
	if cfg.AccountID != "" {
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	return ""
}

func NewStorage(client *s3.Client, bucket string, cfg *conf.S3Config) *S3 {
	region := cfg.Region
	if cfg.AccountID != "" {
		region = "auto"
	}
	return &S3{
		Bucket:         bucket,
		Region:         region,
		Endpoint:       endpointFor(cfg),
		PublicBaseURL:  cfg.PublicBaseURL,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: 300 * time.Millisecond,
		S3Client:       client,
		Uploader:       manager.NewUploader(client),
	}
}

// Put uploads payload under key, retrying with jittered exponential backoff.
func (s *S3) Put(ctx context.Context, key, contentType string, payload []byte, metadata map[string]string) error {
	var err error
	for attempt := 1; ; attempt++ {
		_, err = s.Uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String(contentType),
			Metadata:    metadata,
		})
		if err == nil {
			return nil
		}
		if attempt > s.MaxRetries {
			break
		}

		backoff := s.backoffDelay(attempt)
		log.Warn().Err(err).Str("key", key).Int("attempt", attempt).Dur("backoff", backoff).Msg("s3 upload failed, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("failed to upload %q: %w", key, ctx.Err())
		}
	}
	return fmt.Errorf("failed to upload %q: %w", key, err)
}

// Upload stores payload and returns its public URL.
func (s *S3) Upload(ctx context.Context, key, contentType string, payload []byte) (string, error) {
	if err := s.Put(ctx, key, contentType, payload, nil); err != nil {
		return "", err
	}
	return s.URL(key), nil
}

func (s *S3) backoffDelay(attempt int) time.Duration {
	delay := s.RetryBaseDelay << (attempt - 1)
	jitter := int64(delay) / 10
	if jitter <= 0 {
		return delay
	}
	return delay - time.Duration(jitter/2) + time.Duration(rand.Int64N(jitter))
}

// Open streams the object stored under key. A missing object yields
// entities.ErrDocumentNotFound.
func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%q: %w", key, entities.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to download %q: %w", key, err)
	}
	return out.Body, nil
}

func (s *S3) Download(ctx context.Context, key string) ([]byte, error) {
	body, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, fmt.Errorf("failed to read body for %q: %w", key, err)
	}
	return buf.Bytes(), nil
}

// URL is the publicly addressable location of key.
func (s *S3) URL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	switch {
	case s.PublicBaseURL != "":
		return strings.TrimRight(s.PublicBaseURL, "/") + "/" + escaped
	case s.Endpoint != "":
		return strings.TrimRight(s.Endpoint, "/") + "/" + s.Bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.Bucket, s.Region, escaped)
	}
}

func (s *S3) Ping(ctx context.Context) error {
	_, err := s.S3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.Bucket)})
	return err
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
