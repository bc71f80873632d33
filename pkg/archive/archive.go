// Package archive uploads backup snapshots and report workbooks to
// S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	KindBackup = "backup"
	KindReport = "report"

	ContentTypeJSON = "application/json"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type ConnectionInfo struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3Client is the subset of *minio.Client the archive uses.
type S3Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Archive struct {
	Client S3Client
	Bucket string
	Prefix string
}

// NewConnection connects to the configured endpoint. It does not touch the
// bucket; call EnsureBucket for that.
func NewConnection(info ConnectionInfo) (*Archive, error) {
	client, err := minio.New(info.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(info.AccessKey, info.SecretKey, ""),
		Secure: info.UseSSL,
		Region: info.Region,
	})
	if err != nil {
		return nil, err
	}
	return &Archive{Client: client, Bucket: info.Bucket, Prefix: info.Prefix}, nil
}

func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.Client.BucketExists(ctx, a.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return a.Client.MakeBucket(ctx, a.Bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// ObjectKey names an upload: <prefix>/<kind>-<UTC timestamp>.<ext>.
func (a *Archive) ObjectKey(kind, ext string, at time.Time) string {
	name := fmt.Sprintf("%s-%s.%s", kind, at.UTC().Format("2006-01-02T15-04-05"), ext)
	if a.Prefix == "" {
		return name
	}
	return path.Join(a.Prefix, name)
}

// Put uploads data under key and returns the stored object's key.
func (a *Archive) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := a.EnsureBucket(ctx); err != nil {
		log.Printf("[ARCHIVE][ERR] bucket=%q: %v", a.Bucket, err)
		return "", fmt.Errorf("s3 bucket: %w", err)
	}
	info, err := a.Client.PutObject(ctx, a.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		log.Printf("[ARCHIVE][ERR] put key=%q: %v", key, err)
		return "", fmt.Errorf("s3 put: %w", err)
	}
	log.Printf("[ARCHIVE][OK] bucket=%q key=%q size=%d etag=%q", a.Bucket, info.Key, info.Size, info.ETag)
	return key, nil
}
