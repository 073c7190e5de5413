// Package modelstore persists trained models: metadata rows in Postgres and
// the serialised artifact in object storage.
package modelstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/smukkama/aqi-server/internal/store"
)

// ArtifactStore holds serialised model artifacts by key
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// MinioConfig configures the MinIO artifact bucket
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
}

// MinioArtifacts stores artifacts in a MinIO (S3 compatible) bucket
type MinioArtifacts struct {
	client *minio.Client
	bucket string
}

// NewMinioArtifacts connects to MinIO and makes sure the bucket exists
func NewMinioArtifacts(ctx context.Context, cfg MinioConfig) (*MinioArtifacts, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("error checking bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("error creating bucket %s: %w", cfg.Bucket, err)
		}
		slog.Info("created model bucket", "bucket", cfg.Bucket)
	}

	return &MinioArtifacts{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioArtifacts) Put(ctx context.Context, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload %s to bucket %s: %w", key, m.bucket, err)
	}
	return nil
}

func (m *MinioArtifacts) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from bucket %s: %w", key, m.bucket, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// MemoryArtifacts is an in-process ArtifactStore
type MemoryArtifacts struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryArtifacts creates an empty MemoryArtifacts
func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{data: make(map[string][]byte)}
}

func (m *MemoryArtifacts) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryArtifacts) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
