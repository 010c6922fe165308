package core

import (
	"fmt"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
	"github.com/ditar94/LabAid-sub000/pkg/grid"
)

// Strategy selects how destination cells are chosen for a transfer.
type Strategy string

// Destination-selection strategies.
const (
	// StrategyAuto fills the first empty cells in row-major order.
	StrategyAuto Strategy = "auto"
	// StrategyAnchored fills forward from a user-designated starting cell.
	StrategyAnchored Strategy = "anchored"
	// StrategyManual places into an explicit caller-picked cell set.
	StrategyManual Strategy = "manual"
)

// PlanRequest describes a destination-selection request against one unit.
type PlanRequest struct {
	UnitID   string
	Count    int
	Strategy Strategy
	// Anchor is required for StrategyAnchored; cells before it in traversal
	// order are not eligible.
	Anchor *grid.Coord
	// Picks is the accumulated cell set for StrategyManual, in pick order.
	Picks []grid.Coord
}

// Plan is an ordered destination cell set. Order is the pairing order the
// executor uses: row-major for auto and anchored, pick order for manual.
type Plan struct {
	UnitID string
	Cells  []domain.StorageCell
}

// CellIDs returns the planned destination cell IDs in plan order.
func (p Plan) CellIDs() []string {
	out := make([]string, len(p.Cells))
	for i, cell := range p.Cells {
		out[i] = cell.ID
	}
	return out
}

// PlanDestination computes the destination cell set for the request, or a
// typed error when the strategy cannot be satisfied. Planning is pure over
// the index; occupancy is re-validated at commit time by the executor, since
// a cell that looks empty here may be filled by a concurrent caller.
func PlanDestination(index *OccupancyIndex, req PlanRequest) (Plan, error) {
	if req.Count <= 0 {
		return Plan{}, fmt.Errorf("plan count must be positive, got %d", req.Count)
	}
	unitID := index.Unit().ID
	switch req.Strategy {
	case StrategyAuto:
		empty := index.EmptyCells()
		if len(empty) < req.Count {
			return Plan{}, domain.InsufficientCapacityError{
				UnitID:    unitID,
				Requested: req.Count,
				Available: len(empty),
			}
		}
		return Plan{UnitID: unitID, Cells: empty[:req.Count]}, nil

	case StrategyAnchored:
		if req.Anchor == nil {
			return Plan{}, fmt.Errorf("anchored strategy requires an anchor cell")
		}
		reachable := index.EmptyCellsFrom(*req.Anchor)
		if len(reachable) < req.Count {
			// The reachable tail doubles as the partial preview so callers can
			// render how far the fill would get before retrying.
			return Plan{}, domain.InsufficientCapacityError{
				UnitID:    unitID,
				Requested: req.Count,
				Available: len(reachable),
				Preview:   reachable,
			}
		}
		return Plan{UnitID: unitID, Cells: reachable[:req.Count]}, nil

	case StrategyManual:
		return planManual(index, req, unitID)

	default:
		return Plan{}, fmt.Errorf("unknown strategy %q", req.Strategy)
	}
}

func planManual(index *OccupancyIndex, req PlanRequest, unitID string) (Plan, error) {
	seen := make(map[grid.Coord]struct{}, len(req.Picks))
	distinct := make([]grid.Coord, 0, len(req.Picks))
	for _, pick := range req.Picks {
		if _, dup := seen[pick]; dup {
			continue
		}
		seen[pick] = struct{}{}
		distinct = append(distinct, pick)
	}
	if len(distinct) != req.Count {
		return Plan{}, domain.InvalidSelectionError{Picked: len(distinct), Required: req.Count}
	}
	cells := make([]domain.StorageCell, 0, len(distinct))
	for _, pick := range distinct {
		cell, ok := index.CellAt(pick)
		if !ok {
			return Plan{}, domain.ErrNotFound{Entity: domain.EntityStorageCell, ID: fmt.Sprintf("%s %s", unitID, grid.DisplayName(pick))}
		}
		if cell.VialID != nil {
			return Plan{}, domain.TransferError{
				Reason: domain.TransferDestinationOccupied,
				Detail: fmt.Sprintf("cell %s in unit %s is occupied", grid.DisplayName(pick), unitID),
			}
		}
		cells = append(cells, cell)
	}
	return Plan{UnitID: unitID, Cells: cells}, nil
}
