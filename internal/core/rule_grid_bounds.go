package core

import (
	"context"
	"fmt"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
	"github.com/ditar94/LabAid-sub000/pkg/grid"
)

// NewGridBoundsRule returns the in-transaction rule enforcing that every
// storage unit declares a positive grid and that every cell sits inside its
// unit's bounds at a unique coordinate.
func NewGridBoundsRule() domain.Rule {
	return gridBoundsRule{}
}

type gridBoundsRule struct{}

func (gridBoundsRule) Name() string { return "grid_bounds" }

func (gridBoundsRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	units := make(map[string]domain.StorageUnit)
	for _, unit := range view.ListStorageUnits() {
		units[unit.ID] = unit
		if unit.Rows < 1 || unit.Cols < 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "grid_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("unit %s declares a %dx%d grid; both dimensions must be at least 1", unit.ID, unit.Rows, unit.Cols),
				Entity:   domain.EntityStorageUnit,
				EntityID: unit.ID,
			})
		}
	}

	type slot struct {
		unitID string
		coord  grid.Coord
	}
	taken := make(map[slot]string)
	for _, cell := range view.ListStorageCells() {
		unit, ok := units[cell.UnitID]
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "grid_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cell %s references missing unit %s", cell.ID, cell.UnitID),
				Entity:   domain.EntityStorageCell,
				EntityID: cell.ID,
			})
			continue
		}
		if cell.Row < 0 || cell.Row >= unit.Rows || cell.Col < 0 || cell.Col >= unit.Cols {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "grid_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cell %s at (%d,%d) lies outside unit %s's %dx%d grid", cell.ID, cell.Row, cell.Col, unit.ID, unit.Rows, unit.Cols),
				Entity:   domain.EntityStorageCell,
				EntityID: cell.ID,
			})
			continue
		}
		key := slot{unitID: cell.UnitID, coord: grid.Coord{Row: cell.Row, Col: cell.Col}}
		if prev, dup := taken[key]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "grid_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cells %s and %s both occupy %s in unit %s", prev, cell.ID, grid.DisplayName(key.coord), cell.UnitID),
				Entity:   domain.EntityStorageCell,
				EntityID: cell.ID,
			})
			continue
		}
		taken[key] = cell.ID
	}
	return res, nil
}
