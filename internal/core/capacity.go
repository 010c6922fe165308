package core

// CapacityResolution names a way out of an overflow situation. The advisor
// only suggests; performing either resolution is the caller's business.
type CapacityResolution string

// Overflow resolutions offered when a request exceeds available cells.
const (
	// ResolutionSplit places what fits here and the remainder in a second,
	// caller-chosen unit.
	ResolutionSplit CapacityResolution = "split"
	// ResolutionRouteToOverflow sends the entire request to a temporary
	// overflow unit, which grows on demand and never overflows itself.
	ResolutionRouteToOverflow CapacityResolution = "route_to_overflow"
)

// CapacityReport summarizes a unit's occupancy against a requested count.
type CapacityReport struct {
	UnitID      string               `json:"unit_id"`
	Total       int                  `json:"total"`
	Occupied    int                  `json:"occupied"`
	Available   int                  `json:"available"`
	Requested   int                  `json:"requested"`
	Overflow    int                  `json:"overflow"`
	Resolutions []CapacityResolution `json:"resolutions,omitempty"`
}

// AssessCapacity computes occupancy figures for the indexed unit and the
// overflow a request of the given size would cause. Pure and idempotent:
// identical inputs produce identical reports.
func AssessCapacity(index *OccupancyIndex, requested int) CapacityReport {
	report := CapacityReport{
		UnitID:    index.Unit().ID,
		Total:     index.TotalCount(),
		Occupied:  index.OccupiedCount(),
		Available: index.EmptyCount(),
		Requested: requested,
	}
	if overflow := requested - report.Available; overflow > 0 {
		report.Overflow = overflow
		report.Resolutions = []CapacityResolution{ResolutionSplit, ResolutionRouteToOverflow}
	}
	return report
}
