package core

import (
	"context"
	"fmt"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
)

// NewCellExclusivityRule returns the in-transaction rule enforcing that a
// vial occupies at most one cell and that cell/vial references agree in both
// directions.
func NewCellExclusivityRule() domain.Rule {
	return cellExclusivityRule{}
}

type cellExclusivityRule struct{}

func (cellExclusivityRule) Name() string { return "cell_exclusivity" }

func (cellExclusivityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	holders := make(map[string]string)
	for _, cell := range view.ListStorageCells() {
		if cell.VialID == nil {
			continue
		}
		vialID := *cell.VialID
		if prev, seen := holders[vialID]; seen {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cell_exclusivity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("vial %s referenced by cells %s and %s", vialID, prev, cell.ID),
				Entity:   domain.EntityVial,
				EntityID: vialID,
			})
			continue
		}
		holders[vialID] = cell.ID

		vial, ok := view.FindVial(vialID)
		switch {
		case !ok:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cell_exclusivity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cell %s references missing vial %s", cell.ID, vialID),
				Entity:   domain.EntityStorageCell,
				EntityID: cell.ID,
			})
		case vial.Status == domain.VialStatusDepleted:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cell_exclusivity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cell %s holds depleted vial %s", cell.ID, vialID),
				Entity:   domain.EntityStorageCell,
				EntityID: cell.ID,
			})
		case vial.CellID == nil || *vial.CellID != cell.ID:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cell_exclusivity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cell %s holds vial %s but the vial does not point back", cell.ID, vialID),
				Entity:   domain.EntityStorageCell,
				EntityID: cell.ID,
			})
		}
	}

	for _, vial := range view.ListVials() {
		if vial.CellID == nil {
			continue
		}
		cell, ok := view.FindStorageCell(*vial.CellID)
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cell_exclusivity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("vial %s references missing cell %s", vial.ID, *vial.CellID),
				Entity:   domain.EntityVial,
				EntityID: vial.ID,
			})
			continue
		}
		if cell.VialID == nil || *cell.VialID != vial.ID {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cell_exclusivity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("vial %s claims cell %s but the cell does not point back", vial.ID, cell.ID),
				Entity:   domain.EntityVial,
				EntityID: vial.ID,
			})
		}
	}
	return res, nil
}
