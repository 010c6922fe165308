package domain

import "fmt"

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

// ErrNotFound is returned when an entity reference cannot be resolved.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InsufficientCapacityError reports that a destination plan could not satisfy
// the requested count. Recoverable: callers may retry with a smaller count,
// another unit, or another strategy.
type InsufficientCapacityError struct {
	UnitID    string
	Requested int
	Available int
	// Preview holds the empty cells that were reachable under the failed
	// strategy, in traversal order. Informational only, never a commitment.
	Preview []StorageCell
}

func (e InsufficientCapacityError) Error() string {
	return fmt.Sprintf("storage unit %s has %d eligible empty cells, %d requested", e.UnitID, e.Available, e.Requested)
}

// TransferFailure identifies why a transfer was rejected.
type TransferFailure string

// Transfer failure reasons. Count mismatches are caller-side programming
// errors; the other two are concurrent-modification conflicts recoverable by
// re-planning against fresh data.
const (
	TransferCountMismatch       TransferFailure = "count_mismatch"
	TransferSourceNotAvailable  TransferFailure = "source_not_available"
	TransferDestinationOccupied TransferFailure = "destination_occupied"
)

// TransferError reports a rejected transfer. Any rejection leaves store state
// unchanged.
type TransferError struct {
	Reason TransferFailure
	Detail string
}

func (e TransferError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("transfer rejected: %s", e.Reason)
	}
	return fmt.Sprintf("transfer rejected: %s: %s", e.Reason, e.Detail)
}

// InvalidSelectionError reports a manual pick set whose size does not match
// the requested count at commit time.
type InvalidSelectionError struct {
	Picked   int
	Required int
}

func (e InvalidSelectionError) Error() string {
	return fmt.Sprintf("select exactly %d cells (%d picked)", e.Required, e.Picked)
}
