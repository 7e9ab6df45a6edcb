// Package storage exports finished archives to an S3-compatible bucket owned
// by the user.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrNotConfigured = errors.New("archive export is not configured")

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	UseSSL   bool
}

type Client struct {
	minio  *minio.Client
	bucket string
	now    func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Client{
		minio:  mc,
		bucket: cfg.Bucket,
		now:    time.Now,
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := c.minio.BucketExists(ctx, c.bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}

	return nil
}

func (c *Client) WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := c.minio.PutObject(
		ctx,
		c.bucket,
		objectKey,
		reader,
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType:        contentType,
			ContentDisposition: "attachment; filename=" + objectFileName(objectKey),
		},
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}

func (c *Client) PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := c.minio.PresignedGetObject(ctx, c.bucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return u.String(), nil
}

type Export struct {
	Bucket    string    `json:"bucket"`
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportArchive uploads one archive under the session's prefix and returns a
// presigned download link valid for expiry.
func (c *Client) ExportArchive(ctx context.Context, sessionID, fileName string, data []byte, contentType string, expiry time.Duration) (Export, error) {
	now := c.now().UTC()
	key := ArchiveKey(sessionID, fileName, now)

	if err := c.WriteObject(ctx, key, data, contentType); err != nil {
		return Export{}, err
	}
	url, err := c.PresignedGetURL(ctx, key, expiry)
	if err != nil {
		return Export{}, err
	}

	return Export{
		Bucket:    c.bucket,
		ObjectKey: key,
		URL:       url,
		ExpiresAt: now.Add(expiry),
	}, nil
}

// ArchiveKey is exports/<session>/<unix-nanos>-<file>.
func ArchiveKey(sessionID, fileName string, at time.Time) string {
	return fmt.Sprintf("exports/%s/%d-%s", sessionID, at.UnixNano(), objectFileName(fileName))
}

func objectFileName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		key = key[i+1:]
	}
	if key == "" {
		return "archive.zip"
	}
	return key
}
