package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ditar94/LabAid-sub000/internal/core"
)

// DefaultCapacityTTL bounds staleness when no TTL is configured.
const DefaultCapacityTTL = 5 * time.Minute

// Compile-time contract assertion against the service's consumer interface.
var _ core.CapacityCache = (*CapacityCache)(nil)

// CapacityCache stores capacity reports as JSON under
// labaid:capacity:<unit>:<requested>. Invalidation clears every requested
// count cached for a unit in one sweep.
type CapacityCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewCapacityCache wraps a KVStore. A non-positive TTL falls back to
// DefaultCapacityTTL; a nil logger is replaced with a no-op one.
func NewCapacityCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *CapacityCache {
	if ttl <= 0 {
		ttl = DefaultCapacityTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityCache{kv: kv, ttl: ttl, logger: logger}
}

func capacityKey(unitID string, requested int) string {
	return fmt.Sprintf("labaid:capacity:%s:%d", unitID, requested)
}

func unitPrefix(unitID string) string {
	return fmt.Sprintf("labaid:capacity:%s:", unitID)
}

// Get returns the cached report for (unit, requested). A miss is (zero,
// false, nil); corrupt payloads and transport failures surface as errors so
// the caller can log and recompute.
func (c *CapacityCache) Get(ctx context.Context, unitID string, requested int) (core.CapacityReport, bool, error) {
	raw, err := c.kv.Get(ctx, capacityKey(unitID, requested))
	if errors.Is(err, ErrCacheMiss) {
		return core.CapacityReport{}, false, nil
	}
	if err != nil {
		return core.CapacityReport{}, false, fmt.Errorf("cache get: %w", err)
	}
	var report core.CapacityReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return core.CapacityReport{}, false, fmt.Errorf("decode cached report: %w", err)
	}
	c.logger.Debug("capacity cache hit",
		zap.String("unit_id", unitID),
		zap.Int("requested", requested),
	)
	return report, true, nil
}

// Set stores the report under its unit and requested count.
func (c *CapacityCache) Set(ctx context.Context, report core.CapacityReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.kv.Set(ctx, capacityKey(report.UnitID, report.Requested), string(payload), c.ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// InvalidateUnit drops every cached report for the unit. Called after any
// committed transfer, intake, or resize touching it.
func (c *CapacityCache) InvalidateUnit(ctx context.Context, unitID string) error {
	if err := c.kv.DeleteByPrefix(ctx, unitPrefix(unitID)); err != nil {
		return fmt.Errorf("cache invalidate unit %s: %w", unitID, err)
	}
	c.logger.Debug("capacity cache invalidated", zap.String("unit_id", unitID))
	return nil
}
