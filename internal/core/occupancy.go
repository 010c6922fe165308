package core

import (
	"github.com/ditar94/LabAid-sub000/pkg/domain"
	"github.com/ditar94/LabAid-sub000/pkg/grid"
)

// OccupancyIndex is an in-memory view over one storage unit's cells. It is
// built from a cell snapshot and answers emptiness and traversal queries in
// row-major order. Sparse snapshots are tolerated: a missing cell record is
// non-existent, not empty. Cells belonging to other units or lying outside the
// unit's bounds are ignored.
type OccupancyIndex struct {
	unit     domain.StorageUnit
	cells    map[grid.Coord]domain.StorageCell
	vials    map[string]grid.Coord
	ordered  []grid.Coord
	occupied int
}

// NewOccupancyIndex builds an index for the unit from the given cell snapshot.
func NewOccupancyIndex(unit domain.StorageUnit, cells []domain.StorageCell) *OccupancyIndex {
	idx := &OccupancyIndex{
		unit:  unit,
		cells: make(map[grid.Coord]domain.StorageCell, len(cells)),
		vials: make(map[string]grid.Coord),
	}
	for _, cell := range cells {
		if cell.UnitID != unit.ID {
			continue
		}
		if cell.Row < 0 || cell.Row >= unit.Rows || cell.Col < 0 || cell.Col >= unit.Cols {
			continue
		}
		coord := grid.Coord{Row: cell.Row, Col: cell.Col}
		if _, exists := idx.cells[coord]; exists {
			continue
		}
		idx.cells[coord] = cell
		if cell.VialID != nil {
			idx.vials[*cell.VialID] = coord
			idx.occupied++
		}
		idx.ordered = append(idx.ordered, coord)
	}
	grid.SortCoords(idx.ordered)
	return idx
}

// Unit returns the storage unit the index was built for.
func (idx *OccupancyIndex) Unit() domain.StorageUnit { return idx.unit }

// Occupied reports whether the cell at coord exists and holds a vial.
func (idx *OccupancyIndex) Occupied(coord grid.Coord) bool {
	cell, ok := idx.cells[coord]
	return ok && cell.VialID != nil
}

// CellAt returns the cell record at coord.
func (idx *OccupancyIndex) CellAt(coord grid.Coord) (domain.StorageCell, bool) {
	cell, ok := idx.cells[coord]
	return cell, ok
}

// VialAt returns the ID of the vial occupying coord.
func (idx *OccupancyIndex) VialAt(coord grid.Coord) (string, bool) {
	cell, ok := idx.cells[coord]
	if !ok || cell.VialID == nil {
		return "", false
	}
	return *cell.VialID, true
}

// CellOf returns the cell currently holding the given vial.
func (idx *OccupancyIndex) CellOf(vialID string) (domain.StorageCell, bool) {
	coord, ok := idx.vials[vialID]
	if !ok {
		return domain.StorageCell{}, false
	}
	return idx.cells[coord], true
}

// EmptyCells returns all empty cells in row-major order, the canonical
// traversal order for sequential-fill logic.
func (idx *OccupancyIndex) EmptyCells() []domain.StorageCell {
	out := make([]domain.StorageCell, 0, len(idx.ordered))
	for _, coord := range idx.ordered {
		cell := idx.cells[coord]
		if cell.VialID == nil {
			out = append(out, cell)
		}
	}
	return out
}

// EmptyCellsFrom returns empty cells at or after the anchor in row-major
// order. Cells before the anchor are not eligible.
func (idx *OccupancyIndex) EmptyCellsFrom(anchor grid.Coord) []domain.StorageCell {
	var out []domain.StorageCell
	for _, coord := range idx.ordered {
		if grid.Compare(coord, anchor) < 0 {
			continue
		}
		cell := idx.cells[coord]
		if cell.VialID == nil {
			out = append(out, cell)
		}
	}
	return out
}

// OccupancySnapshot is the serializable view of one unit's occupancy, with
// cells in row-major order.
type OccupancySnapshot struct {
	Unit     domain.StorageUnit   `json:"unit"`
	Cells    []domain.StorageCell `json:"cells"`
	Occupied int                  `json:"occupied"`
	Empty    int                  `json:"empty"`
	Total    int                  `json:"total"`
}

// Snapshot renders the index into its serializable form.
func (idx *OccupancyIndex) Snapshot() OccupancySnapshot {
	cells := make([]domain.StorageCell, 0, len(idx.ordered))
	for _, coord := range idx.ordered {
		cells = append(cells, idx.cells[coord])
	}
	return OccupancySnapshot{
		Unit:     idx.unit,
		Cells:    cells,
		Occupied: idx.OccupiedCount(),
		Empty:    idx.EmptyCount(),
		Total:    idx.TotalCount(),
	}
}

// OccupiedCount returns the number of cells holding a vial.
func (idx *OccupancyIndex) OccupiedCount() int { return idx.occupied }

// EmptyCount returns the number of existing cells with no vial.
func (idx *OccupancyIndex) EmptyCount() int { return len(idx.cells) - idx.occupied }

// TotalCount returns the number of cell records present in the snapshot.
func (idx *OccupancyIndex) TotalCount() int { return len(idx.cells) }
