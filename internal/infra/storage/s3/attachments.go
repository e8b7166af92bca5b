package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrNotConfigured = errors.New("s3: attachment storage is not configured")

// AttachmentStore keeps message attachments and returns the URL clients embed
// in a message.
type AttachmentStore interface {
	Put(ctx context.Context, ownerID string, data []byte, contentType, extension string) (publicURL string, err error)
}

type Options struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

// Client stores attachments in an S3-compatible bucket.
type Client struct {
	bucket         string
	publicBaseURL  string
	client         *minio.Client
	logger         *slog.Logger
	now            func() time.Time
	bucketInitOnce sync.Once
	bucketInitErr  error
}

func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	minioClient, err := minio.New(hostOf(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey), ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	base := strings.TrimSpace(opts.PublicEndpoint)
	if base == "" {
		base = endpoint
	}
	return &Client{
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		client:        minioClient,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (c *Client) Put(ctx context.Context, ownerID string, data []byte, contentType, extension string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("s3: attachment is empty")
	}
	if err := c.ensureBucket(ctx); err != nil {
		return "", err
	}
	key, err := ObjectKey(ownerID, extension, c.now())
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"owner": ownerID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3: put object: %w", err)
	}
	publicURL := c.objectURL(key)
	if c.logger != nil {
		c.logger.Info("attachment stored", "bucket", c.bucket, "key", key, "user_id", ownerID, "size", len(data))
	}
	return publicURL, nil
}

// Ping reports whether the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.BucketExists(ctx, c.bucket); err != nil {
		return fmt.Errorf("s3: ping: %w", err)
	}
	return nil
}

// ObjectKey lays attachments out per owner and day with a random, time
// ordered file name.
func ObjectKey(ownerID, extension string, at time.Time) (string, error) {
	ownerID = strings.Trim(strings.TrimSpace(ownerID), "/")
	if ownerID == "" || strings.Contains(ownerID, "/") {
		return "", errors.New("s3: invalid attachment owner")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("s3: object id: %w", err)
	}
	extension = strings.TrimSpace(extension)
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return path.Join("attachments", ownerID, at.UTC().Format("2006/01/02"), id.String()+extension), nil
}

// NoopStore rejects uploads when no bucket is configured.
type NoopStore struct{}

func (NoopStore) Put(context.Context, string, []byte, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (c *Client) ensureBucket(ctx context.Context) error {
	c.bucketInitOnce.Do(func() {
		exists, err := c.client.BucketExists(ctx, c.bucket)
		if err != nil {
			c.bucketInitErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			c.bucketInitErr = fmt.Errorf("s3: create bucket: %w", err)
			return
		}
		policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/attachments/*"]}]}`, c.bucket)
		if err := c.client.SetBucketPolicy(ctx, c.bucket, policy); err != nil {
			c.bucketInitErr = fmt.Errorf("s3: set bucket policy: %w", err)
		}
	})
	return c.bucketInitErr
}

func (c *Client) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.bucket, strings.TrimLeft(key, "/"))
}

func hostOf(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var (
	_ AttachmentStore = (*Client)(nil)
	_ AttachmentStore = NoopStore{}
)
