package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
)

// staticView serves rule evaluations from fixed slices, letting tests stage
// inconsistent states the store would refuse to build.
type staticView struct {
	units []domain.StorageUnit
	cells []domain.StorageCell
	vials []domain.Vial
	lots  []domain.Lot
}

func (v staticView) ListStorageUnits() []domain.StorageUnit { return v.units }
func (v staticView) ListStorageCells() []domain.StorageCell { return v.cells }
func (v staticView) ListVials() []domain.Vial               { return v.vials }
func (v staticView) ListLots() []domain.Lot                 { return v.lots }

func (v staticView) FindStorageUnit(id string) (domain.StorageUnit, bool) {
	for _, u := range v.units {
		if u.ID == id {
			return u, true
		}
	}
	return domain.StorageUnit{}, false
}

func (v staticView) FindStorageCell(id string) (domain.StorageCell, bool) {
	for _, c := range v.cells {
		if c.ID == id {
			return c, true
		}
	}
	return domain.StorageCell{}, false
}

func (v staticView) FindVial(id string) (domain.Vial, bool) {
	for _, vial := range v.vials {
		if vial.ID == id {
			return vial, true
		}
	}
	return domain.Vial{}, false
}

func (v staticView) FindLot(id string) (domain.Lot, bool) {
	for _, lot := range v.lots {
		if lot.ID == id {
			return lot, true
		}
	}
	return domain.Lot{}, false
}

func storedVial(id, lotID, cellID string) domain.Vial {
	return domain.Vial{Base: domain.Base{ID: id}, LotID: lotID, Status: domain.VialStatusSealed, CellID: &cellID}
}

func evaluateRule(t *testing.T, rule domain.Rule, view domain.RuleView) domain.Result {
	t.Helper()
	res, err := rule.Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate %s: %v", rule.Name(), err)
	}
	return res
}

func requireViolation(t *testing.T, res domain.Result, fragment string) {
	t.Helper()
	for _, v := range res.Violations {
		if strings.Contains(v.Message, fragment) {
			if v.Severity != domain.SeverityBlock {
				t.Fatalf("violation %q must block, got %s", v.Message, v.Severity)
			}
			return
		}
	}
	t.Fatalf("no violation containing %q in %v", fragment, res.Violations)
}

func TestCellExclusivityAcceptsConsistentState(t *testing.T) {
	view := staticView{
		units: []domain.StorageUnit{testUnit("u1", 1, 2)},
		cells: []domain.StorageCell{
			testCell("c1", "u1", 0, 0, strPtr("v1")),
			testCell("c2", "u1", 0, 1, nil),
		},
		vials: []domain.Vial{storedVial("v1", "l1", "c1")},
	}
	res := evaluateRule(t, NewCellExclusivityRule(), view)
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %v", res.Violations)
	}
}

func TestCellExclusivityRejectsDoubleReference(t *testing.T) {
	view := staticView{
		cells: []domain.StorageCell{
			testCell("c1", "u1", 0, 0, strPtr("v1")),
			testCell("c2", "u1", 0, 1, strPtr("v1")),
		},
		vials: []domain.Vial{storedVial("v1", "l1", "c1")},
	}
	res := evaluateRule(t, NewCellExclusivityRule(), view)
	requireViolation(t, res, "referenced by cells")
}

func TestCellExclusivityRejectsMissingVial(t *testing.T) {
	view := staticView{
		cells: []domain.StorageCell{testCell("c1", "u1", 0, 0, strPtr("ghost"))},
	}
	res := evaluateRule(t, NewCellExclusivityRule(), view)
	requireViolation(t, res, "missing vial")
}

func TestCellExclusivityRejectsDepletedOccupant(t *testing.T) {
	vial := storedVial("v1", "l1", "c1")
	vial.Status = domain.VialStatusDepleted
	view := staticView{
		cells: []domain.StorageCell{testCell("c1", "u1", 0, 0, strPtr("v1"))},
		vials: []domain.Vial{vial},
	}
	res := evaluateRule(t, NewCellExclusivityRule(), view)
	requireViolation(t, res, "depleted")
}

func TestCellExclusivityRejectsOneWayReferences(t *testing.T) {
	// Cell claims the vial but the vial points elsewhere.
	view := staticView{
		cells: []domain.StorageCell{
			testCell("c1", "u1", 0, 0, strPtr("v1")),
			testCell("c2", "u1", 0, 1, nil),
		},
		vials: []domain.Vial{storedVial("v1", "l1", "c2")},
	}
	res := evaluateRule(t, NewCellExclusivityRule(), view)
	requireViolation(t, res, "does not point back")

	// Vial claims a cell that does not exist.
	view = staticView{
		vials: []domain.Vial{storedVial("v1", "l1", "ghost")},
	}
	res = evaluateRule(t, NewCellExclusivityRule(), view)
	requireViolation(t, res, "missing cell")
}

func TestCellExclusivityBlocksCommit(t *testing.T) {
	// The rule runs on the default engine; a transaction that leaves a one-way
	// reference must be rejected wholesale.
	seeded := seedStore(t, 1, 2, 1)
	_, err := seeded.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateVial(seeded.vialIDs[0], func(v *domain.Vial) error {
			v.CellID = nil
			return nil
		})
		return err
	})
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	vial, _ := seeded.store.GetVial(seeded.vialIDs[0])
	if vial.CellID == nil {
		t.Fatalf("blocked transaction must not commit")
	}
}
