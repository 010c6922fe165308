package audit

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ditar94/LabAid-sub000/internal/blob"
	"github.com/ditar94/LabAid-sub000/internal/core"
	"github.com/ditar94/LabAid-sub000/pkg/domain"
)

const archiveAction = "movement_archive"

const (
	defaultWorkers   = 2
	defaultQueueSize = 16
)

// MovementSource yields movement history for an archive scope.
type MovementSource interface {
	MovementHistory(ctx context.Context, filter core.MovementFilter) ([]domain.Movement, error)
}

var (
	_ MovementSource   = (*core.Service)(nil)
	_ ArchiveScheduler = (*Worker)(nil)
)

// Worker renders movement archives asynchronously and stores the artifacts
// in a blob store under jobs/<id>/movements.<ext>.
type Worker struct {
	source MovementSource
	store  blob.Store
	log    ArchiveLog
	logger *zap.Logger

	workers   int
	queueSize int

	queue chan archiveTask
	mu    sync.RWMutex
	jobs  map[string]*ArchiveJob

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type archiveTask struct {
	id string
}

// WorkerOption configures optional worker collaborators.
type WorkerOption func(*Worker)

// WithArchiveLog attaches an audit trail for job status changes.
func WithArchiveLog(log ArchiveLog) WorkerOption {
	return func(w *Worker) { w.log = log }
}

// WithWorkerLogger attaches a structured logger. Defaults to a no-op logger.
func WithWorkerLogger(logger *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWorkers sets how many goroutines drain the queue.
func WithWorkers(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithQueueSize sets the pending request capacity.
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// NewWorker constructs an archive worker over a movement source and a blob
// store. Call Start before enqueueing work.
func NewWorker(source MovementSource, store blob.Store, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source:    source,
		store:     store,
		logger:    zap.NewNop(),
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		jobs:      make(map[string]*ArchiveJob),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan archiveTask, w.queueSize)
	return w
}

// Start begins draining the queue.
func (w *Worker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop()
	}
}

// Stop signals the workers to halt and waits for them to finish.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueArchive validates and schedules an archive job, returning the queued
// snapshot. The send is non-blocking: a full queue rejects the request.
func (w *Worker) EnqueueArchive(ctx context.Context, req ArchiveRequest) (ArchiveJob, error) {
	if strings.TrimSpace(req.RequestedBy) == "" {
		return ArchiveJob{}, fmt.Errorf("requested_by required")
	}
	if err := req.Scope.validate(); err != nil {
		return ArchiveJob{}, err
	}

	formats := req.Formats
	if len(formats) == 0 {
		formats = []ArchiveFormat{FormatJSON, FormatCSV}
	}
	uniq := make([]ArchiveFormat, 0, len(formats))
	seen := make(map[ArchiveFormat]struct{}, len(formats))
	for _, format := range formats {
		if !format.valid() {
			return ArchiveJob{}, fmt.Errorf("unsupported archive format %q", format)
		}
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	job := ArchiveJob{
		ID:          id,
		Scope:       req.Scope,
		Formats:     uniq,
		Status:      ArchiveStatusQueued,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &job
	queued := job.copy()
	w.mu.Unlock()

	w.record(ctx, w.event(id, ArchiveStatusQueued, nil))

	select {
	case w.queue <- archiveTask{id: id}:
	default:
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return ArchiveJob{}, fmt.Errorf("archive queue full")
	}

	w.logger.Info("archive queued",
		zap.String("job_id", id),
		zap.String("requested_by", req.RequestedBy),
		zap.Int("formats", len(uniq)))
	return queued, nil
}

// GetArchive returns a snapshot of the job.
func (w *Worker) GetArchive(id string) (ArchiveJob, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return ArchiveJob{}, false
	}
	return job.copy(), true
}

func (w *Worker) process(task archiveTask) {
	w.mu.RLock()
	job, ok := w.jobs[task.id]
	var scope ArchiveScope
	var formats []ArchiveFormat
	if ok {
		scope = job.Scope
		formats = append([]ArchiveFormat(nil), job.Formats...)
	}
	w.mu.RUnlock()
	if !ok {
		return
	}

	w.updateStatus(task.id, ArchiveStatusRunning, "")

	movements, err := w.collect(w.ctx, scope)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("collect movements: %v", err))
		return
	}

	doc := archiveDocument{
		JobID:       task.id,
		GeneratedAt: time.Now().UTC(),
		Scope:       scope,
		Count:       len(movements),
		Movements:   movements,
	}

	artifacts := make([]ArchiveArtifact, 0, len(formats))
	for _, format := range formats {
		payload, err := render(format, doc)
		if err != nil {
			w.fail(task.id, fmt.Sprintf("render %s: %v", format, err))
			return
		}
		key := artifactKey(task.id, format)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: format.ContentType(),
			Metadata: map[string]string{
				"job_id": task.id,
				"format": string(format),
				"rows":   strconv.Itoa(len(movements)),
			},
		})
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store artifact %s: %v", key, err))
			return
		}
		artifact := ArchiveArtifact{
			Key:         key,
			Format:      format,
			ContentType: info.ContentType,
			SizeBytes:   info.Size,
			ETag:        info.ETag,
			CreatedAt:   info.LastModified,
		}
		if artifact.ContentType == "" {
			artifact.ContentType = format.ContentType()
		}
		if artifact.CreatedAt.IsZero() {
			artifact.CreatedAt = doc.GeneratedAt
		}
		// Presigning is best effort: memory stores have no URLs to hand out.
		if url, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{Method: "GET"}); err == nil {
			artifact.URL = url
		}
		artifacts = append(artifacts, artifact)
	}

	w.complete(task.id, artifacts, len(movements))
	w.logger.Info("archive completed",
		zap.String("job_id", task.id),
		zap.Int("artifacts", len(artifacts)),
		zap.Int("rows", len(movements)))
}

// collect fetches movements for the scope and applies the time window. Both
// window bounds are inclusive.
func (w *Worker) collect(ctx context.Context, scope ArchiveScope) ([]domain.Movement, error) {
	movements, err := w.source.MovementHistory(ctx, core.MovementFilter{
		UnitID: scope.UnitID,
		VialID: scope.VialID,
		LotID:  scope.LotID,
	})
	if err != nil {
		return nil, err
	}
	if scope.From == nil && scope.To == nil {
		return movements, nil
	}
	windowed := make([]domain.Movement, 0, len(movements))
	for _, mv := range movements {
		if scope.From != nil && mv.OccurredAt.Before(*scope.From) {
			continue
		}
		if scope.To != nil && mv.OccurredAt.After(*scope.To) {
			continue
		}
		windowed = append(windowed, mv)
	}
	return windowed, nil
}

func (w *Worker) updateStatus(id string, status ArchiveStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if job, ok := w.jobs[id]; ok {
		job.Status = status
		job.Error = message
		job.UpdatedAt = now
	}
	w.mu.Unlock()
	w.record(w.ctx, w.event(id, status, nil))
}

func (w *Worker) complete(id string, artifacts []ArchiveArtifact, movements int) {
	now := time.Now().UTC()
	w.mu.Lock()
	if job, ok := w.jobs[id]; ok {
		job.Status = ArchiveStatusSucceeded
		job.Error = ""
		job.Artifacts = artifacts
		job.MovementCount = movements
		job.UpdatedAt = now
		job.CompletedAt = &now
	}
	w.mu.Unlock()
	w.record(w.ctx, w.event(id, ArchiveStatusSucceeded, map[string]any{
		"artifacts": len(artifacts),
		"rows":      movements,
	}))
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if job, ok := w.jobs[id]; ok {
		job.Status = ArchiveStatusFailed
		job.Error = reason
		job.UpdatedAt = now
		job.CompletedAt = &now
	}
	w.mu.Unlock()
	w.record(w.ctx, w.event(id, ArchiveStatusFailed, map[string]any{"error": reason}))
	w.logger.Warn("archive failed", zap.String("job_id", id), zap.String("reason", reason))
}

func (w *Worker) event(id string, status ArchiveStatus, metadata map[string]any) ArchiveEvent {
	event := ArchiveEvent{
		ID:         uuid.NewString(),
		JobID:      id,
		Action:     archiveAction,
		Status:     status,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}
	w.mu.RLock()
	if job, ok := w.jobs[id]; ok {
		event.Actor = job.RequestedBy
		event.Scope = job.Scope
		event.Reason = job.Reason
	}
	w.mu.RUnlock()
	return event
}

func (w *Worker) record(ctx context.Context, event ArchiveEvent) {
	if w.log == nil {
		return
	}
	w.log.Record(ctx, event)
}

func artifactKey(jobID string, format ArchiveFormat) string {
	return fmt.Sprintf("jobs/%s/movements.%s", jobID, format.ext())
}
