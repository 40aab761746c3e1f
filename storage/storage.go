// Package storage keeps uploaded images in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

var (
	PostImageTypes      = []string{"jpg", "jpeg", "png"}
	ProfilePictureTypes = []string{"jpg", "jpeg", "png", "gif"}
)

const ProfileFolder = "profile_pics"

// Allowed reports whether filename ends in one of the extensions, ignoring case.
func Allowed(filename string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// ObjectName returns a fresh random name under folder keeping the extension.
func ObjectName(folder, filename string) string {
	name := uuid.New().String() + strings.ToLower(filepath.Ext(filename))
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

type Minio struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// NewMinio connects to the endpoint and makes sure the bucket exists.
func NewMinio(ctx context.Context, opts MinioOptions) (*Minio, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}
	return &Minio{client: client, bucket: opts.Bucket, publicURL: strings.TrimRight(opts.PublicURL, "/")}, nil
}

// Save uploads file under folder and returns the object name.
func (m *Minio) Save(ctx context.Context, folder string, file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	objectName := ObjectName(folder, file.Filename)
	_, err = m.client.PutObject(ctx, m.bucket, objectName, src, file.Size, minio.PutObjectOptions{
		ContentType: file.Header.Get("Content-Type"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectName, err)
	}
	return objectName, nil
}

func (m *Minio) Remove(ctx context.Context, objectName string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", objectName, err)
	}
	return nil
}

// URL is the public address of an object.
func (m *Minio) URL(objectName string) string {
	return m.publicURL + "/" + m.bucket + "/" + objectName
}
