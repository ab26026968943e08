package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Download when no object exists at the path
var ErrNotFound = errors.New("stored file not found")

// Storage keeps the source documents uploaded for article extraction
type Storage interface {
	// Upload stores a file and returns the storage path
	Upload(ctx context.Context, fileID uuid.UUID, filename string, data io.Reader) (string, error)

	// Download retrieves a file by storage path
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes a file by storage path
	Delete(ctx context.Context, storagePath string) error
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type      StorageType
	LocalPath string

	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the S3 endpoint and is required for MinIO
	Endpoint string
	UseSSL   bool
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(ctx context.Context, cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeS3:
		if cfg.Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET environment variable is required for S3 storage")
		}
		return NewS3Storage(ctx, cfg)
	case StorageTypeMinio:
		if cfg.Endpoint == "" || cfg.Bucket == "" {
			return nil, errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required for MinIO storage")
		}
		return NewMinioStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// ConfigFromEnv reads the storage configuration from environment variables
func ConfigFromEnv() StorageConfig {
	cfg := StorageConfig{
		Type:      StorageType(getEnv("STORAGE_TYPE", string(StorageTypeLocal))),
		LocalPath: getEnv("STORAGE_LOCAL_PATH", "./storage/files"),
	}

	switch cfg.Type {
	case StorageTypeS3:
		cfg.Bucket = os.Getenv("AWS_S3_BUCKET")
		cfg.Region = getEnv("AWS_REGION", "us-east-1")
		cfg.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		cfg.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
		cfg.Endpoint = os.Getenv("AWS_S3_ENDPOINT")
	case StorageTypeMinio:
		cfg.Endpoint = os.Getenv("MINIO_ENDPOINT")
		cfg.Bucket = getEnv("MINIO_BUCKET", "legal-sources")
		cfg.Region = getEnv("MINIO_REGION", "us-east-1")
		cfg.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
		cfg.SecretKey = os.Getenv("MINIO_SECRET_KEY")
		cfg.UseSSL = os.Getenv("MINIO_USE_SSL") == "true"
	}
	return cfg
}

// NewStorageFromEnv creates a storage instance from environment variables
func NewStorageFromEnv(ctx context.Context) (Storage, error) {
	return NewStorage(ctx, ConfigFromEnv())
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var pathReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", "..", "_")

// generateStoragePath builds "sources/<yyyy-mm>/<id>_<name><ext>"
func generateStoragePath(fileID uuid.UUID, filename string, now time.Time) string {
	filename = filepath.Base(filename)
	ext := filepath.Ext(filename)
	baseName := pathReplacer.Replace(strings.TrimSuffix(filename, ext))
	return fmt.Sprintf("sources/%s/%s_%s%s", now.UTC().Format("2006-01"), fileID, baseName, strings.ToLower(ext))
}

// ContentType determines the content type of a source document from its name
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
