// Package storage publishes finished tiles to S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client is the subset of minio.Client used by the Uploader.
// A fake implementation for tests is in uploader_test.go.
type Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Config describes where tiles are uploaded.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // key prefix inside the bucket
	Insecure  bool   // plain HTTP instead of TLS
}

// Uploader copies tiles into a bucket, keyed by Prefix and the tile's file name.
type Uploader struct {
	client Client
	bucket string
	prefix string
}

// NewUploader connects to the endpoint in config.
func NewUploader(config Config) (*Uploader, error) {
	if config.Endpoint == "" {
		return nil, errors.New("storage endpoint is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: !config.Insecure,
	})
	if err != nil {
		return nil, err
	}
	client.SetAppInfo("imgdice", "0.1")

	return NewUploaderWithClient(client, config.Bucket, config.Prefix), nil
}

// NewUploaderWithClient wraps an existing client.
func NewUploaderWithClient(client Client, bucket, prefix string) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// EnsureBucket creates the bucket unless it exists already.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.bucket, err)
	}
	return nil
}

// Key returns the object key for a local tile path.
func (u *Uploader) Key(localPath string) string {
	return path.Join(u.prefix, filepath.Base(localPath))
}

// Publish uploads the given files of one tile in order. Only files named by
// the caller are uploaded; nothing next to them is discovered on disk.
func (u *Uploader) Publish(ctx context.Context, localPaths ...string) error {
	for _, p := range localPaths {
		if err := u.put(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (u *Uploader) put(ctx context.Context, localPath string) error {
	opts := minio.PutObjectOptions{ContentType: ContentType(localPath)}
	if _, err := u.client.FPutObject(ctx, u.bucket, u.Key(localPath), localPath, opts); err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	return nil
}

// ContentType guesses the MIME type of a raster by its extension.
func ContentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".tif", ".tiff":
		return "image/tiff"
	case ".jp2":
		return "image/jp2"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gpkg":
		return "application/geopackage+sqlite3"
	case ".tfw", ".wld", ".asc":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
