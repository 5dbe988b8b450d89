package chatd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/lk2023060901/copilot-chat/internal/conf"
	"github.com/lk2023060901/copilot-chat/internal/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ObjectStore persists uploaded attachment content.
type ObjectStore interface {
	Put(ctx context.Context, id, contentType string, r io.Reader, size int64) error
	Get(ctx context.Context, id string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, id string) error
}

// NewObjectStore builds the configured backend. Unknown backends fall
// back to memory.
func NewObjectStore(cfg *conf.StorageConfig, log *logger.Logger) (ObjectStore, error) {
	if cfg.Backend == "minio" {
		return NewMinioStore(&cfg.MinIO, log)
	}
	return NewMemoryStore(), nil
}

type memoryObject struct {
	content     []byte
	contentType string
}

// MemoryStore keeps attachment bytes in process memory. Suitable for
// development and tests only.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Put(_ context.Context, id, contentType string, r io.Reader, _ int64) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read object content: %w", err)
	}

	s.mu.Lock()
	s.objects[id] = memoryObject{content: content, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	obj, ok := s.objects[id]
	s.mu.RUnlock()

	if !ok {
		return nil, "", fmt.Errorf("object %s not found", id)
	}
	return io.NopCloser(bytes.NewReader(obj.content)), obj.contentType, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.objects, id)
	s.mu.Unlock()
	return nil
}

// MinioStore persists attachments in a MinIO (or S3-compatible) bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	log    *logger.Logger
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(cfg *conf.MinIOConfig, log *logger.Logger) (*MinioStore, error) {
	if log == nil {
		log = logger.L()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info("created attachment bucket", zap.String("bucket", cfg.Bucket))
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, log: log}, nil
}

func (s *MinioStore) Put(ctx context.Context, id, contentType string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, id, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", id, err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, id string) (io.ReadCloser, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object %s: %w", id, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, "", fmt.Errorf("stat object %s: %w", id, err)
	}
	return obj, stat.ContentType, nil
}

func (s *MinioStore) Delete(ctx context.Context, id string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, id, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", id, err)
	}
	return nil
}
