package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/biosight/internal/domain/analysis"
)

// MinioStore keeps specimens in an S3-compatible bucket.
type MinioStore struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewMinio buat koneksi MinIO
func NewMinio(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*MinioStore, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &MinioStore{client: cli, bucketName: bucket, region: region}, nil
}

func (s *MinioStore) Put(ctx context.Context, name, contentType string, data []byte) error {
	if !validName(name) {
		return fmt.Errorf("storage: invalid object name %q", name)
	}
	_, err := s.client.PutObject(ctx, s.bucketName, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (s *MinioStore) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if !validName(name) {
		return nil, "", analysis.ErrImageNotFound
	}
	info, err := s.client.StatObject(ctx, s.bucketName, name, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, "", analysis.ErrImageNotFound
		}
		return nil, "", err
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", err
	}
	return obj, info.ContentType, nil
}

// Check dipakai readiness probe
func (s *MinioStore) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", s.bucketName)
	}
	return nil
}

var _ analysis.ImageStore = (*MinioStore)(nil)
