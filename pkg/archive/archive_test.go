package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeS3) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeS3) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucket+"/"+key] = data
	f.types[bucket+"/"+key] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 2, 5, 13, 4, 5, 0, time.FixedZone("BRT", -3*3600))

	a := &Archive{Prefix: "loanbook/exports"}
	assert.Equal(t, "loanbook/exports/backup-2024-02-05T16-04-05.json", a.ObjectKey(KindBackup, "json", at))

	a.Prefix = ""
	assert.Equal(t, "report-2024-02-05T16-04-05.xlsx", a.ObjectKey(KindReport, "xlsx", at))
}

func TestPutCreatesBucket(t *testing.T) {
	s3 := newFakeS3()
	a := &Archive{Client: s3, Bucket: "exports"}

	key, err := a.Put(context.Background(), "backup.json", []byte(`{"version":"1.0"}`), ContentTypeJSON)
	require.NoError(t, err)

	assert.Equal(t, "backup.json", key)
	assert.True(t, s3.buckets["exports"])
	assert.Equal(t, `{"version":"1.0"}`, string(s3.objects["exports/backup.json"]))
	assert.Equal(t, ContentTypeJSON, s3.types["exports/backup.json"])
}

func TestPutError(t *testing.T) {
	s3 := newFakeS3()
	s3.putErr = errors.New("access denied")
	a := &Archive{Client: s3, Bucket: "exports"}

	_, err := a.Put(context.Background(), "k", []byte("x"), ContentTypeJSON)
	assert.ErrorContains(t, err, "access denied")
}
