package storage

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type putCall struct {
	bucket, object, file string
	opts                 minio.PutObjectOptions
}

type fakeObjects struct {
	puts       []putCall
	putErr     error
	exists     bool
	existsErr  error
	made       []string
	presignArg struct {
		object  string
		expires time.Duration
		params  url.Values
	}
}

func (f *fakeObjects) FPutObject(_ context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.puts = append(f.puts, putCall{bucket: bucket, object: object, file: filePath, opts: opts})
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: 42}, nil
}

func (f *fakeObjects) PresignedGetObject(_ context.Context, bucket, object string, expires time.Duration, params url.Values) (*url.URL, error) {
	f.presignArg.object = object
	f.presignArg.expires = expires
	f.presignArg.params = params
	return url.Parse("https://s3.example.com/" + bucket + "/" + object + "?X-Amz-Signature=abc")
}

func (f *fakeObjects) BucketExists(context.Context, string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func TestMinioStore_Store(t *testing.T) {
	fake := &fakeObjects{}
	s := NewMinioStore(MinioOptions{Client: fake, Bucket: "reports"})

	key, err := s.Store(context.Background(), "/tmp/r/job_Acme_Analysis.html", "default/c1/reports/job_Acme_Analysis.html")
	require.NoError(t, err)
	assert.Equal(t, "default/c1/reports/job_Acme_Analysis.html", key)

	require.Len(t, fake.puts, 1)
	assert.Equal(t, "reports", fake.puts[0].bucket)
	assert.Equal(t, "/tmp/r/job_Acme_Analysis.html", fake.puts[0].file)
	assert.Contains(t, fake.puts[0].opts.ContentType, "text/html")
}

func TestMinioStore_StoreCleansKey(t *testing.T) {
	fake := &fakeObjects{}
	s := NewMinioStore(MinioOptions{Client: fake, Bucket: "reports"})

	key, err := s.Store(context.Background(), "/tmp/x.pdf", "/tenant//../tenant/a\\b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "tenant/a/b.pdf", key)

	_, err = s.Store(context.Background(), "/tmp/x.pdf", "  ")
	require.Error(t, err)
}

func TestMinioStore_StoreError(t *testing.T) {
	fake := &fakeObjects{putErr: errors.New("access denied")}
	s := NewMinioStore(MinioOptions{Client: fake, Bucket: "reports"})

	_, err := s.Store(context.Background(), "/tmp/x.html", "k.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestMinioStore_NotConfigured(t *testing.T) {
	s := NewMinioStore(MinioOptions{Bucket: "reports"})
	_, err := s.Store(context.Background(), "/tmp/x.html", "k.html")
	require.ErrorIs(t, err, ErrNotConfigured)

	var nilStore *MinioStore
	_, err = nilStore.Presign(context.Background(), "k.html")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestMinioStore_Presign(t *testing.T) {
	fake := &fakeObjects{}
	s := NewMinioStore(MinioOptions{Client: fake, Bucket: "reports", PresignExpiry: time.Hour})

	u, err := s.Presign(context.Background(), "t/c/reports/job_Acme_Analysis.html")
	require.NoError(t, err)
	assert.Contains(t, u, "X-Amz-Signature")
	assert.Equal(t, time.Hour, fake.presignArg.expires)
	assert.Equal(t, `attachment; filename="job_Acme_Analysis.html"`, fake.presignArg.params.Get("response-content-disposition"))
}

func TestMinioStore_EnsureBucket(t *testing.T) {
	fake := &fakeObjects{exists: true}
	s := NewMinioStore(MinioOptions{Client: fake, Bucket: "reports"})
	require.NoError(t, s.EnsureBucket(context.Background(), ""))
	assert.Empty(t, fake.made)

	fake.exists = false
	require.NoError(t, s.EnsureBucket(context.Background(), "us-east-1"))
	assert.Equal(t, []string{"reports"}, fake.made)

	fake.existsErr = errors.New("unreachable")
	require.Error(t, s.EnsureBucket(context.Background(), ""))
}
