package core

import (
	"fmt"
	"sort"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
	"github.com/ditar94/LabAid-sub000/pkg/grid"
)

// TransferRequest moves a set of vials onto a destination cell set of equal
// size. Destination order is the plan order; sources pair onto it sorted
// ascending by vial ID so the pairing is caller-independent.
type TransferRequest struct {
	SourceVialIDs      []string
	DestinationCellIDs []string
	Actor              string
}

// Placement reports one vial's new location after a transfer.
type Placement struct {
	VialID   string `json:"vial_id"`
	CellID   string `json:"cell_id"`
	UnitID   string `json:"unit_id"`
	Position string `json:"position"`
}

// TransferResult lists the placements applied by a committed transfer, in
// pairing order. UnitIDs names every unit the transfer touched, sources and
// destinations alike, sorted and deduplicated.
type TransferResult struct {
	Placements []Placement `json:"placements"`
	UnitIDs    []string    `json:"unit_ids"`
}

// pendingPlacement carries everything the apply pass needs for one vial,
// resolved during validation before any mutation happens.
type pendingPlacement struct {
	vial         domain.Vial
	fromCellID   *string
	fromUnitID   *string
	fromPosition *string
	dest         domain.StorageCell
}

// applyTransfer validates and applies a transfer against transactional state.
// All preconditions are checked before the first mutation; any failure leaves
// the transaction untouched and aborts it. Occupancy seen at planning time is
// deliberately ignored here: re-checking against transactional state is what
// resolves races between concurrent planners.
func applyTransfer(tx domain.Transaction, req TransferRequest) (TransferResult, error) {
	n := len(req.SourceVialIDs)
	if n == 0 {
		return TransferResult{}, domain.TransferError{Reason: domain.TransferCountMismatch, Detail: "no source vials"}
	}
	if n != len(req.DestinationCellIDs) {
		return TransferResult{}, domain.TransferError{
			Reason: domain.TransferCountMismatch,
			Detail: fmt.Sprintf("%d source vials, %d destination cells", n, len(req.DestinationCellIDs)),
		}
	}

	sources := append([]string(nil), req.SourceVialIDs...)
	sort.Strings(sources)
	sourceSet := make(map[string]struct{}, n)
	for _, id := range sources {
		if _, dup := sourceSet[id]; dup {
			return TransferResult{}, domain.TransferError{Reason: domain.TransferCountMismatch, Detail: fmt.Sprintf("duplicate source vial %q", id)}
		}
		sourceSet[id] = struct{}{}
	}
	destSet := make(map[string]struct{}, n)
	for _, id := range req.DestinationCellIDs {
		if _, dup := destSet[id]; dup {
			return TransferResult{}, domain.TransferError{Reason: domain.TransferCountMismatch, Detail: fmt.Sprintf("duplicate destination cell %q", id)}
		}
		destSet[id] = struct{}{}
	}

	pending := make([]pendingPlacement, 0, n)
	for _, vialID := range sources {
		vial, ok := tx.FindVial(vialID)
		if !ok {
			return TransferResult{}, domain.TransferError{Reason: domain.TransferSourceNotAvailable, Detail: fmt.Sprintf("vial %q not found", vialID)}
		}
		if vial.Status == domain.VialStatusDepleted {
			return TransferResult{}, domain.TransferError{Reason: domain.TransferSourceNotAvailable, Detail: fmt.Sprintf("vial %q is depleted", vialID)}
		}
		p := pendingPlacement{vial: vial}
		if vial.CellID != nil {
			cell, ok := tx.FindStorageCell(*vial.CellID)
			if !ok || cell.VialID == nil || *cell.VialID != vial.ID {
				return TransferResult{}, domain.TransferError{
					Reason: domain.TransferSourceNotAvailable,
					Detail: fmt.Sprintf("vial %q is no longer at its recorded cell", vialID),
				}
			}
			position := grid.DisplayName(grid.Coord{Row: cell.Row, Col: cell.Col})
			p.fromCellID = &cell.ID
			p.fromUnitID = &cell.UnitID
			p.fromPosition = &position
		}
		pending = append(pending, p)
	}

	for i, cellID := range req.DestinationCellIDs {
		cell, ok := tx.FindStorageCell(cellID)
		if !ok {
			return TransferResult{}, domain.ErrNotFound{Entity: domain.EntityStorageCell, ID: cellID}
		}
		if cell.VialID != nil {
			// A cell vacated by one of this transfer's own sources counts as
			// empty: the occupant leaves before anything lands.
			if _, movingAway := sourceSet[*cell.VialID]; !movingAway {
				return TransferResult{}, domain.TransferError{
					Reason: domain.TransferDestinationOccupied,
					Detail: fmt.Sprintf("cell %s in unit %s is occupied", grid.DisplayName(grid.Coord{Row: cell.Row, Col: cell.Col}), cell.UnitID),
				}
			}
		}
		pending[i].dest = cell
	}

	// Vacate every prior cell first so rotations inside one request never see
	// a cell holding two vials.
	for _, p := range pending {
		if p.fromCellID == nil {
			continue
		}
		if _, err := tx.UpdateStorageCell(*p.fromCellID, func(c *domain.StorageCell) error {
			c.VialID = nil
			return nil
		}); err != nil {
			return TransferResult{}, err
		}
	}

	result := TransferResult{Placements: make([]Placement, 0, n)}
	touched := make(map[string]struct{}, 2)
	for _, p := range pending {
		if p.fromUnitID != nil {
			touched[*p.fromUnitID] = struct{}{}
		}
		touched[p.dest.UnitID] = struct{}{}
	}
	for unitID := range touched {
		result.UnitIDs = append(result.UnitIDs, unitID)
	}
	sort.Strings(result.UnitIDs)
	for _, p := range pending {
		vialID := p.vial.ID
		destID := p.dest.ID
		if _, err := tx.UpdateStorageCell(destID, func(c *domain.StorageCell) error {
			c.VialID = &vialID
			return nil
		}); err != nil {
			return TransferResult{}, err
		}
		if _, err := tx.UpdateVial(vialID, func(v *domain.Vial) error {
			v.CellID = &destID
			return nil
		}); err != nil {
			return TransferResult{}, err
		}
		position := grid.DisplayName(grid.Coord{Row: p.dest.Row, Col: p.dest.Col})
		if _, err := tx.CreateMovement(domain.Movement{
			VialID:       vialID,
			LotID:        p.vial.LotID,
			FromUnitID:   p.fromUnitID,
			FromPosition: p.fromPosition,
			ToUnitID:     p.dest.UnitID,
			ToPosition:   position,
			Actor:        req.Actor,
		}); err != nil {
			return TransferResult{}, err
		}
		result.Placements = append(result.Placements, Placement{
			VialID:   vialID,
			CellID:   destID,
			UnitID:   p.dest.UnitID,
			Position: position,
		})
	}
	return result, nil
}
