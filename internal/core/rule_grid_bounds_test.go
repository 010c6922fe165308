package core

import (
	"testing"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
)

func TestGridBoundsAcceptsWellFormedGrid(t *testing.T) {
	view := staticView{
		units: []domain.StorageUnit{testUnit("u1", 2, 2)},
		cells: []domain.StorageCell{
			testCell("c1", "u1", 0, 0, nil),
			testCell("c2", "u1", 1, 1, nil),
		},
	}
	res := evaluateRule(t, NewGridBoundsRule(), view)
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %v", res.Violations)
	}
}

func TestGridBoundsRejectsDegenerateDimensions(t *testing.T) {
	view := staticView{
		units: []domain.StorageUnit{testUnit("u1", 0, 5)},
	}
	res := evaluateRule(t, NewGridBoundsRule(), view)
	requireViolation(t, res, "both dimensions must be at least 1")
}

func TestGridBoundsRejectsOrphanCell(t *testing.T) {
	view := staticView{
		cells: []domain.StorageCell{testCell("c1", "ghost", 0, 0, nil)},
	}
	res := evaluateRule(t, NewGridBoundsRule(), view)
	requireViolation(t, res, "missing unit")
}

func TestGridBoundsRejectsOutOfBoundsCell(t *testing.T) {
	view := staticView{
		units: []domain.StorageUnit{testUnit("u1", 2, 2)},
		cells: []domain.StorageCell{testCell("c1", "u1", 2, 0, nil)},
	}
	res := evaluateRule(t, NewGridBoundsRule(), view)
	requireViolation(t, res, "lies outside")
}

func TestGridBoundsRejectsDuplicateCoordinate(t *testing.T) {
	view := staticView{
		units: []domain.StorageUnit{testUnit("u1", 2, 2)},
		cells: []domain.StorageCell{
			testCell("c1", "u1", 0, 1, nil),
			testCell("c2", "u1", 0, 1, nil),
		},
	}
	res := evaluateRule(t, NewGridBoundsRule(), view)
	requireViolation(t, res, "both occupy A2")
}
