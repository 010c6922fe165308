// Package audit archives movement history into immutable blob artifacts.
// Requests are processed asynchronously by a Worker; every status change is
// mirrored into an ArchiveLog so the archive trail itself stays auditable.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ArchiveStatus describes the lifecycle stage of an archive request.
type ArchiveStatus string

const (
	ArchiveStatusQueued    ArchiveStatus = "queued"
	ArchiveStatusRunning   ArchiveStatus = "running"
	ArchiveStatusSucceeded ArchiveStatus = "succeeded"
	ArchiveStatusFailed    ArchiveStatus = "failed"
)

// ArchiveFormat names a rendering of the movement history.
type ArchiveFormat string

const (
	FormatJSON ArchiveFormat = "json"
	FormatCSV  ArchiveFormat = "csv"
	FormatXLSX ArchiveFormat = "xlsx"
)

// ParseFormat maps a user-supplied format name onto an ArchiveFormat.
func ParseFormat(name string) (ArchiveFormat, error) {
	format := ArchiveFormat(name)
	switch format {
	case FormatJSON, FormatCSV, FormatXLSX:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported archive format %q", name)
	}
}

// ContentType returns the MIME type artifacts of this format are stored with.
func (f ArchiveFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

func (f ArchiveFormat) ext() string {
	return string(f)
}

func (f ArchiveFormat) valid() bool {
	switch f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return true
	}
	return false
}

// ArchiveScope narrows which movements an archive covers. Empty fields match
// everything; From and To bound OccurredAt inclusively on both ends.
type ArchiveScope struct {
	UnitID string     `json:"unit_id,omitempty"`
	VialID string     `json:"vial_id,omitempty"`
	LotID  string     `json:"lot_id,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}

func (s ArchiveScope) validate() error {
	if s.From != nil && s.To != nil && s.From.After(*s.To) {
		return fmt.Errorf("scope window is inverted: from %s is after to %s",
			s.From.Format(time.RFC3339), s.To.Format(time.RFC3339))
	}
	return nil
}

// ArchiveArtifact describes one stored rendering of an archive job.
type ArchiveArtifact struct {
	Key         string        `json:"key"`
	Format      ArchiveFormat `json:"format"`
	ContentType string        `json:"content_type"`
	SizeBytes   int64         `json:"size_bytes"`
	ETag        string        `json:"etag,omitempty"`
	URL         string        `json:"url,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ArchiveJob tracks an archive request and its resulting artifacts.
type ArchiveJob struct {
	ID            string            `json:"id"`
	Scope         ArchiveScope      `json:"scope"`
	Formats       []ArchiveFormat   `json:"formats"`
	Status        ArchiveStatus     `json:"status"`
	Error         string            `json:"error,omitempty"`
	Artifacts     []ArchiveArtifact `json:"artifacts,omitempty"`
	MovementCount int               `json:"movement_count"`
	RequestedBy   string            `json:"requested_by"`
	Reason        string            `json:"reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

func (j ArchiveJob) copy() ArchiveJob {
	dup := j
	dup.Formats = append([]ArchiveFormat(nil), j.Formats...)
	if len(j.Artifacts) > 0 {
		dup.Artifacts = append([]ArchiveArtifact(nil), j.Artifacts...)
	}
	return dup
}

// ArchiveRequest is the enqueue input for the worker.
type ArchiveRequest struct {
	Scope       ArchiveScope
	Formats     []ArchiveFormat
	RequestedBy string
	Reason      string
}

// ArchiveScheduler queues archive requests and exposes job status.
type ArchiveScheduler interface {
	EnqueueArchive(ctx context.Context, req ArchiveRequest) (ArchiveJob, error)
	GetArchive(id string) (ArchiveJob, bool)
}

// ArchiveLog records archive audit events.
type ArchiveLog interface {
	Record(ctx context.Context, event ArchiveEvent)
}

// ArchiveEvent captures one audit trail entry for an archive job.
type ArchiveEvent struct {
	ID         string         `json:"id"`
	JobID      string         `json:"job_id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Status     ArchiveStatus  `json:"status"`
	Scope      ArchiveScope   `json:"scope"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// MemoryArchiveLog collects archive events in memory for assertions.
type MemoryArchiveLog struct {
	mu     sync.Mutex
	events []ArchiveEvent
}

// Record stores an event.
func (l *MemoryArchiveLog) Record(_ context.Context, event ArchiveEvent) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (l *MemoryArchiveLog) Events() []ArchiveEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ArchiveEvent, len(l.events))
	copy(out, l.events)
	return out
}
