// Command labaid-export archives movement history into blob storage. It opens
// the configured persistent store, runs one archive job through the worker,
// waits for completion and prints the stored artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ditar94/LabAid-sub000/internal/audit"
	"github.com/ditar94/LabAid-sub000/internal/blob"
	"github.com/ditar94/LabAid-sub000/internal/config"
	"github.com/ditar94/LabAid-sub000/internal/core"
	"github.com/ditar94/LabAid-sub000/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded, using process environment: %v", err)
	}

	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "labaid-export")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var (
		unitID      = flag.String("unit", "", "limit the archive to one storage unit ID")
		vialID      = flag.String("vial", "", "limit the archive to one vial ID")
		lotID       = flag.String("lot", "", "limit the archive to one lot ID")
		fromRaw     = flag.String("from", "", "earliest movement to include (RFC 3339)")
		toRaw       = flag.String("to", "", "latest movement to include (RFC 3339)")
		formatsRaw  = flag.String("formats", "json,csv", "comma separated formats: json, csv, xlsx")
		requestedBy = flag.String("requested-by", "", "who is requesting the archive (required)")
		reason      = flag.String("reason", "", "free-form archive reason")
		timeout     = flag.Duration("timeout", 2*time.Minute, "overall run deadline")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	formats, err := parseFormats(*formatsRaw)
	if err != nil {
		logger.Fatal("bad -formats", zap.Error(err))
	}
	scope := audit.ArchiveScope{UnitID: *unitID, VialID: *vialID, LotID: *lotID}
	if scope.From, err = parseBound(*fromRaw); err != nil {
		logger.Fatal("bad -from", zap.Error(err))
	}
	if scope.To, err = parseBound(*toRaw); err != nil {
		logger.Fatal("bad -to", zap.Error(err))
	}

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	service := core.NewService(store, core.WithLogger(logger))

	artifacts, err := blob.OpenConfig(ctx, cfg)
	if err != nil {
		logger.Fatal("open blob store", zap.Error(err))
	}

	worker := audit.NewWorker(service, artifacts,
		audit.WithWorkerLogger(logger),
		audit.WithWorkers(cfg.ArchiveWorkers),
		audit.WithQueueSize(cfg.ArchiveQueueSize))
	worker.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := worker.Stop(stopCtx); err != nil {
			logger.Warn("worker stop", zap.Error(err))
		}
	}()

	job, err := worker.EnqueueArchive(ctx, audit.ArchiveRequest{
		Scope:       scope,
		Formats:     formats,
		RequestedBy: *requestedBy,
		Reason:      *reason,
	})
	if err != nil {
		logger.Fatal("enqueue archive", zap.Error(err))
	}

	job, err = await(ctx, worker, job.ID)
	if err != nil {
		logger.Fatal("archive", zap.Error(err))
	}

	fmt.Printf("archive %s: %d movements in %d artifacts\n", job.ID, job.MovementCount, len(job.Artifacts))
	for _, artifact := range job.Artifacts {
		location := artifact.Key
		if artifact.URL != "" {
			location = artifact.URL
		}
		fmt.Printf("  %-5s %8d bytes  %s\n", artifact.Format, artifact.SizeBytes, location)
	}
}

// await polls the worker until the job reaches a terminal status.
func await(ctx context.Context, worker *audit.Worker, id string) (audit.ArchiveJob, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, ok := worker.GetArchive(id)
		if !ok {
			return audit.ArchiveJob{}, fmt.Errorf("job %s disappeared", id)
		}
		switch job.Status {
		case audit.ArchiveStatusSucceeded:
			return job, nil
		case audit.ArchiveStatusFailed:
			return job, fmt.Errorf("job %s failed: %s", id, job.Error)
		}
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("timed out waiting for job %s (status %s)", id, job.Status)
		case <-ticker.C:
		}
	}
}

func parseFormats(raw string) ([]audit.ArchiveFormat, error) {
	var formats []audit.ArchiveFormat
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		format, err := audit.ParseFormat(part)
		if err != nil {
			return nil, err
		}
		formats = append(formats, format)
	}
	return formats, nil
}

func parseBound(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	return &parsed, nil
}
