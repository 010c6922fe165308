package blob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ditar94/LabAid-sub000/internal/config"
)

func TestOpenConfigSelectsDriver(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenConfig(ctx, &config.Config{BlobDriver: "memory"})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if mem.Driver() != DriverMemory {
		t.Fatalf("driver: got %s", mem.Driver())
	}

	fsStore, err := OpenConfig(ctx, &config.Config{
		BlobDriver: "fs",
		BlobFSRoot: filepath.Join(t.TempDir(), "archives"),
	})
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	if fsStore.Driver() != DriverFilesystem {
		t.Fatalf("driver: got %s", fsStore.Driver())
	}

	if _, err := OpenConfig(ctx, &config.Config{BlobDriver: "tape"}); err == nil {
		t.Fatal("unknown driver must fail")
	}
}

func TestOpenReadsEnvironment(t *testing.T) {
	t.Setenv("LABAID_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver: got %s", store.Driver())
	}
}

func TestOpenConfigS3RequiresBucket(t *testing.T) {
	if _, err := OpenConfig(context.Background(), &config.Config{BlobDriver: "s3"}); err == nil {
		t.Fatal("s3 without bucket must fail")
	}
}
