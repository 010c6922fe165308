// Package config loads runtime configuration from LABAID_* environment
// variables. Commands load a .env file first (godotenv); libraries read the
// process environment only.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every tunable the commands and factories consume. Zero
// values never appear: Load fills defaults for anything unset.
type Config struct {
	Environment string
	LogLevel    string
	LogFormat   string

	// Persistence
	StorageDriver string
	SQLitePath    string
	PostgresDSN   string

	// Capacity cache (Redis)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CapacityTTL   time.Duration

	// Archive blob storage
	BlobDriver  string
	BlobFSRoot  string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool

	// Archive worker
	ArchiveWorkers   int
	ArchiveQueueSize int
}

// Load reads the environment and returns a fully populated configuration.
func Load() *Config {
	return &Config{
		Environment: getEnv("LABAID_ENV", "development"),
		LogLevel:    getEnv("LABAID_LOG_LEVEL", "info"),
		LogFormat:   getEnv("LABAID_LOG_FORMAT", "json"),

		StorageDriver: getEnv("LABAID_STORAGE_DRIVER", "sqlite"),
		SQLitePath:    getEnv("LABAID_SQLITE_PATH", "labaid.db"),
		PostgresDSN:   getEnv("LABAID_POSTGRES_DSN", ""),

		RedisAddr:     getEnv("LABAID_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("LABAID_REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("LABAID_REDIS_DB", 0),
		CapacityTTL:   getDurationEnv("LABAID_CAPACITY_TTL_SEC", 300) * time.Second,

		BlobDriver:  getEnv("LABAID_BLOB_DRIVER", "fs"),
		BlobFSRoot:  getEnv("LABAID_BLOB_FS_ROOT", "archives"),
		S3Bucket:    getEnv("LABAID_S3_BUCKET", ""),
		S3Region:    getEnv("LABAID_S3_REGION", "us-east-1"),
		S3Endpoint:  getEnv("LABAID_S3_ENDPOINT", ""),
		S3AccessKey: getEnv("LABAID_S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("LABAID_S3_SECRET_KEY", ""),
		S3PathStyle: getBoolEnv("LABAID_S3_PATH_STYLE", false),

		ArchiveWorkers:   getIntEnv("LABAID_ARCHIVE_WORKERS", 2),
		ArchiveQueueSize: getIntEnv("LABAID_ARCHIVE_QUEUE", 16),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func getBoolEnv(key string, defaultValue bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	return time.Duration(getIntEnv(key, defaultValue))
}
