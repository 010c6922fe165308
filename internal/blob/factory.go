package blob

import (
	"context"
	"fmt"

	"github.com/ditar94/LabAid-sub000/internal/config"
)

// Open selects a Store from the process environment.
//
//	LABAID_BLOB_DRIVER: fs|s3|memory (default fs)
//	LABAID_BLOB_FS_ROOT: directory root when driver=fs (default archives)
//	LABAID_S3_*: bucket, region, endpoint, credentials when driver=s3
func Open(ctx context.Context) (Store, error) {
	return OpenConfig(ctx, config.Load())
}

// OpenConfig selects a Store from an already loaded configuration.
func OpenConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	switch Driver(cfg.BlobDriver) {
	case DriverFilesystem:
		return NewFilesystem(cfg.BlobFSRoot)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			PathStyle:       cfg.S3PathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.BlobDriver)
	}
}
