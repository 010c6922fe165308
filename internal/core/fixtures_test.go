package core

import (
	"context"
	"testing"
	"time"

	"github.com/ditar94/LabAid-sub000/internal/infra/persistence/memory"
	"github.com/ditar94/LabAid-sub000/pkg/domain"
)

func strPtr(s string) *string { return &s }

func mustDate(value string) time.Time {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func testUnit(id string, rows, cols int) domain.StorageUnit {
	return domain.StorageUnit{Base: domain.Base{ID: id}, Name: "Unit " + id, Rows: rows, Cols: cols}
}

func testCell(id, unitID string, row, col int, vialID *string) domain.StorageCell {
	return domain.StorageCell{Base: domain.Base{ID: id}, UnitID: unitID, Row: row, Col: col, VialID: vialID}
}

// seededStore builds a memory store with one unit, its full cell grid, one lot
// and sealed vials placed into the first cells in row-major order.
type seededStore struct {
	store   *memory.Store
	unit    domain.StorageUnit
	cells   []domain.StorageCell
	lot     domain.Lot
	vialIDs []string
}

func seedStore(t *testing.T, rows, cols, vials int) seededStore {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	seeded := seededStore{store: store}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		unit, err := tx.CreateStorageUnit(domain.StorageUnit{Name: "Freezer A", Rows: rows, Cols: cols})
		if err != nil {
			return err
		}
		seeded.unit = unit
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				cell, err := tx.CreateStorageCell(domain.StorageCell{UnitID: unit.ID, Row: row, Col: col})
				if err != nil {
					return err
				}
				seeded.cells = append(seeded.cells, cell)
			}
		}
		lot, err := tx.CreateLot(domain.Lot{AntibodyID: "ab-1", LotNumber: "LOT-001"})
		if err != nil {
			return err
		}
		seeded.lot = lot
		for i := 0; i < vials; i++ {
			cellID := seeded.cells[i].ID
			vial, err := tx.CreateVial(domain.Vial{LotID: lot.ID, Status: domain.VialStatusSealed, CellID: &cellID})
			if err != nil {
				return err
			}
			seeded.vialIDs = append(seeded.vialIDs, vial.ID)
			vialID := vial.ID
			if _, err := tx.UpdateStorageCell(cellID, func(c *domain.StorageCell) error {
				c.VialID = &vialID
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return seeded
}

// occupancyOf rebuilds the index for a unit from committed store state.
func occupancyOf(t *testing.T, store domain.PersistentStore, unitID string) *OccupancyIndex {
	t.Helper()
	unit, ok := store.GetStorageUnit(unitID)
	if !ok {
		t.Fatalf("unit %s not found", unitID)
	}
	return NewOccupancyIndex(unit, store.ListUnitCells(unitID))
}
