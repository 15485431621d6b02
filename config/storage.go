package config

import (
	"strings"
	"sync"
	"time"
)

var (
	storageOnce   sync.Once
	storageConfig *StorageConfig

	minioOnce   sync.Once
	minioConfig *MinioConfig

	s3Once   sync.Once
	s3Config *S3Config
)

// StorageConfig selects the object store backing async conversions.
// An empty Type disables the async API.
type StorageConfig struct {
	Type string
	// Retention is how long uploads and results are kept before CleanupTasks removes them.
	Retention time.Duration
}

func (c *StorageConfig) Enabled() bool {
	return c.Type != ""
}

type MinioConfig struct {
	AccessKey  string
	SecretKey  string
	Endpoint   string
	UseSSL     bool
	Region     string
	BucketName string
}

type S3Config struct {
	BucketName string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
}

func GetStorageConfig() *StorageConfig {
	storageOnce.Do(func() {
		fc := getFileConfig()
		storageConfig = &StorageConfig{
			Type:      strings.ToLower(getEnv("STORAGE_TYPE", fc.Storage.Type)),
			Retention: getEnvDuration("STORAGE_RETENTION", 24*time.Hour),
		}
	})
	return storageConfig
}

func GetMinioConfig() *MinioConfig {
	minioOnce.Do(func() {
		loadDotEnv()
		minioConfig = &MinioConfig{
			AccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:  getEnv("MINIO_SECRET_KEY", ""),
			Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
			UseSSL:     getEnvBool("MINIO_USE_SSL", false),
			Region:     getEnv("MINIO_REGION", ""),
			BucketName: getEnv("MINIO_BUCKET_NAME", "documents"),
		}
	})
	return minioConfig
}

func GetS3Config() *S3Config {
	s3Once.Do(func() {
		loadDotEnv()
		s3Config = &S3Config{
			BucketName: getEnv("AWS_S3_BUCKET_NAME", ""),
			Region:     getEnv("AWS_REGION", ""),
			Endpoint:   getEnv("AWS_ENDPOINT", ""),
			AccessKey:  getEnv("AWS_ACCESS_KEY", ""),
			SecretKey:  getEnv("AWS_SECRET_KEY", ""),
		}
	})
	return s3Config
}
