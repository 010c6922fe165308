// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// StorageUnit aliases domain.StorageUnit for in-memory persistence operations.
	StorageUnit = domain.StorageUnit
	// StorageCell aliases domain.StorageCell.
	StorageCell = domain.StorageCell
	// Vial aliases domain.Vial.
	Vial = domain.Vial
	// Lot aliases domain.Lot.
	Lot = domain.Lot
	// Movement aliases domain.Movement.
	Movement = domain.Movement
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	units     map[string]StorageUnit
	cells     map[string]StorageCell
	vials     map[string]Vial
	lots      map[string]Lot
	movements map[string]Movement
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Units     map[string]StorageUnit `json:"units"`
	Cells     map[string]StorageCell `json:"cells"`
	Vials     map[string]Vial        `json:"vials"`
	Lots      map[string]Lot         `json:"lots"`
	Movements map[string]Movement    `json:"movements"`
}

func newMemoryState() memoryState {
	return memoryState{
		units:     make(map[string]StorageUnit),
		cells:     make(map[string]StorageCell),
		vials:     make(map[string]Vial),
		lots:      make(map[string]Lot),
		movements: make(map[string]Movement),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Units:     make(map[string]StorageUnit, len(state.units)),
		Cells:     make(map[string]StorageCell, len(state.cells)),
		Vials:     make(map[string]Vial, len(state.vials)),
		Lots:      make(map[string]Lot, len(state.lots)),
		Movements: make(map[string]Movement, len(state.movements)),
	}
	for k, v := range state.units {
		s.Units[k] = cloneUnit(v)
	}
	for k, v := range state.cells {
		s.Cells[k] = cloneCell(v)
	}
	for k, v := range state.vials {
		s.Vials[k] = cloneVial(v)
	}
	for k, v := range state.lots {
		s.Lots[k] = cloneLot(v)
	}
	for k, v := range state.movements {
		s.Movements[k] = cloneMovement(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Units {
		state.units[k] = cloneUnit(v)
	}
	for k, v := range s.Cells {
		state.cells[k] = cloneCell(v)
	}
	for k, v := range s.Vials {
		state.vials[k] = cloneVial(v)
	}
	for k, v := range s.Lots {
		state.lots[k] = cloneLot(v)
	}
	for k, v := range s.Movements {
		state.movements[k] = cloneMovement(v)
	}
	return state
}

// migrateSnapshot normalizes imported snapshots: orphaned cells and vials are
// pruned, one-sided cell/vial references are cleared on the dangling side, and
// lot aggregates are recomputed. Movements are historical audit records and
// survive even when their vial has since been deleted.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Units == nil {
		snapshot.Units = map[string]StorageUnit{}
	}
	if snapshot.Cells == nil {
		snapshot.Cells = map[string]StorageCell{}
	}
	if snapshot.Vials == nil {
		snapshot.Vials = map[string]Vial{}
	}
	if snapshot.Lots == nil {
		snapshot.Lots = map[string]Lot{}
	}
	if snapshot.Movements == nil {
		snapshot.Movements = map[string]Movement{}
	}

	for id, unit := range snapshot.Units {
		if unit.Rows <= 0 {
			unit.Rows = 1
		}
		if unit.Cols <= 0 {
			unit.Cols = 1
		}
		snapshot.Units[id] = unit
	}

	// Cells are visited in ID order so duplicate (unit, row, col) positions
	// resolve deterministically: the lowest cell ID wins.
	cellIDs := make([]string, 0, len(snapshot.Cells))
	for id := range snapshot.Cells {
		cellIDs = append(cellIDs, id)
	}
	sort.Strings(cellIDs)
	seenPositions := make(map[string]struct{}, len(cellIDs))
	for _, id := range cellIDs {
		cell := snapshot.Cells[id]
		unit, ok := snapshot.Units[cell.UnitID]
		if !ok {
			delete(snapshot.Cells, id)
			continue
		}
		if cell.Row < 0 || cell.Row >= unit.Rows || cell.Col < 0 || cell.Col >= unit.Cols {
			delete(snapshot.Cells, id)
			continue
		}
		position := fmt.Sprintf("%s/%d/%d", cell.UnitID, cell.Row, cell.Col)
		if _, taken := seenPositions[position]; taken {
			delete(snapshot.Cells, id)
			continue
		}
		seenPositions[position] = struct{}{}
	}

	for id, vial := range snapshot.Vials {
		if _, ok := snapshot.Lots[vial.LotID]; !ok {
			delete(snapshot.Vials, id)
		}
	}

	for id, cell := range snapshot.Cells {
		if cell.VialID == nil {
			continue
		}
		vial, ok := snapshot.Vials[*cell.VialID]
		if !ok || vial.CellID == nil || *vial.CellID != cell.ID {
			cell.VialID = nil
			snapshot.Cells[id] = cell
		}
	}
	for id, vial := range snapshot.Vials {
		if vial.CellID == nil {
			continue
		}
		cell, ok := snapshot.Cells[*vial.CellID]
		if !ok || cell.VialID == nil || *cell.VialID != vial.ID {
			vial.CellID = nil
			snapshot.Vials[id] = vial
		}
	}

	for id, lot := range snapshot.Lots {
		var sealed, opened, depleted int
		for _, vial := range snapshot.Vials {
			if vial.LotID != id {
				continue
			}
			switch vial.Status {
			case domain.VialStatusSealed:
				sealed++
			case domain.VialStatusOpened:
				opened++
			case domain.VialStatusDepleted:
				depleted++
			}
		}
		lot.SealedCount = sealed
		lot.OpenedCount = opened
		lot.DepletedCount = depleted
		lot.TotalCount = sealed + opened + depleted
		snapshot.Lots[id] = lot
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.units {
		cloned.units[k] = cloneUnit(v)
	}
	for k, v := range s.cells {
		cloned.cells[k] = cloneCell(v)
	}
	for k, v := range s.vials {
		cloned.vials[k] = cloneVial(v)
	}
	for k, v := range s.lots {
		cloned.lots[k] = cloneLot(v)
	}
	for k, v := range s.movements {
		cloned.movements[k] = cloneMovement(v)
	}
	return cloned
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneUnit(u StorageUnit) StorageUnit {
	cp := u
	cp.Temperature = cloneStringPtr(u.Temperature)
	return cp
}

func cloneCell(c StorageCell) StorageCell {
	cp := c
	cp.Label = cloneStringPtr(c.Label)
	cp.VialID = cloneStringPtr(c.VialID)
	return cp
}

func cloneVial(v Vial) Vial {
	cp := v
	cp.CellID = cloneStringPtr(v.CellID)
	return cp
}

func cloneLot(l Lot) Lot {
	cp := l
	cp.ExpirationDate = cloneTimePtr(l.ExpirationDate)
	return cp
}

func cloneMovement(m Movement) Movement {
	cp := m
	cp.FromUnitID = cloneStringPtr(m.FromUnitID)
	cp.FromPosition = cloneStringPtr(m.FromPosition)
	return cp
}

// refreshLotCounts recomputes the derived vial aggregates for one lot. The
// refresh deliberately leaves UpdatedAt untouched: counts are bookkeeping, not
// a user edit.
func refreshLotCounts(state *memoryState, lotID string) {
	lot, ok := state.lots[lotID]
	if !ok {
		return
	}
	var sealed, opened, depleted int
	for _, vial := range state.vials {
		if vial.LotID != lotID {
			continue
		}
		switch vial.Status {
		case domain.VialStatusSealed:
			sealed++
		case domain.VialStatusOpened:
			opened++
		case domain.VialStatusDepleted:
			depleted++
		}
	}
	lot.SealedCount = sealed
	lot.OpenedCount = opened
	lot.DepletedCount = depleted
	lot.TotalCount = sealed + opened + depleted
	state.lots[lotID] = lot
}

func cellPositionTaken(state *memoryState, unitID string, row, col int, excludeID string) bool {
	for _, cell := range state.cells {
		if cell.ID == excludeID {
			continue
		}
		if cell.UnitID == unitID && cell.Row == row && cell.Col == col {
			return true
		}
	}
	return false
}

func unitCells(state *memoryState, unitID string) []StorageCell {
	var out []StorageCell
	for _, cell := range state.cells {
		if cell.UnitID == unitID {
			out = append(out, cloneCell(cell))
		}
	}
	sortCells(out)
	return out
}

func sortCells(cells []StorageCell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].UnitID != cells[j].UnitID {
			return cells[i].UnitID < cells[j].UnitID
		}
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
}

func sortVials(vials []Vial) {
	sort.Slice(vials, func(i, j int) bool { return vials[i].ID < vials[j].ID })
}

// sortLots orders lots by receipt: creation time ascending, ID as tiebreaker.
// FEFO tie handling depends on this order being stable.
func sortLots(lots []Lot) {
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].CreatedAt.Equal(lots[j].CreatedAt) {
			return lots[i].CreatedAt.Before(lots[j].CreatedAt)
		}
		return lots[i].ID < lots[j].ID
	})
}

func sortMovements(movements []Movement) {
	sort.Slice(movements, func(i, j int) bool {
		if !movements[i].OccurredAt.Equal(movements[j].OccurredAt) {
			return movements[i].OccurredAt.Before(movements[j].OccurredAt)
		}
		return movements[i].ID < movements[j].ID
	})
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider. Tests use it to get a
// deterministic clock; a nil fn is ignored.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to
// rules and read callbacks.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListStorageUnits returns all storage units within the snapshot.
func (v transactionView) ListStorageUnits() []StorageUnit {
	out := make([]StorageUnit, 0, len(v.state.units))
	for _, u := range v.state.units {
		out = append(out, cloneUnit(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListStorageCells returns all cells across every unit in the snapshot.
func (v transactionView) ListStorageCells() []StorageCell {
	out := make([]StorageCell, 0, len(v.state.cells))
	for _, c := range v.state.cells {
		out = append(out, cloneCell(c))
	}
	sortCells(out)
	return out
}

// ListUnitCells returns one unit's cells in row-major order.
func (v transactionView) ListUnitCells(unitID string) []StorageCell {
	return unitCells(v.state, unitID)
}

// ListVials returns all vials in the snapshot.
func (v transactionView) ListVials() []Vial {
	out := make([]Vial, 0, len(v.state.vials))
	for _, vial := range v.state.vials {
		out = append(out, cloneVial(vial))
	}
	sortVials(out)
	return out
}

// ListLots returns all lots in the snapshot in receipt order.
func (v transactionView) ListLots() []Lot {
	out := make([]Lot, 0, len(v.state.lots))
	for _, l := range v.state.lots {
		out = append(out, cloneLot(l))
	}
	sortLots(out)
	return out
}

// ListMovements returns the movement audit trail in chronological order.
func (v transactionView) ListMovements() []Movement {
	out := make([]Movement, 0, len(v.state.movements))
	for _, m := range v.state.movements {
		out = append(out, cloneMovement(m))
	}
	sortMovements(out)
	return out
}

// FindStorageUnit retrieves a storage unit by ID from the snapshot.
func (v transactionView) FindStorageUnit(id string) (StorageUnit, bool) {
	u, ok := v.state.units[id]
	if !ok {
		return StorageUnit{}, false
	}
	return cloneUnit(u), true
}

// FindStorageCell retrieves a cell by ID from the snapshot.
func (v transactionView) FindStorageCell(id string) (StorageCell, bool) {
	c, ok := v.state.cells[id]
	if !ok {
		return StorageCell{}, false
	}
	return cloneCell(c), true
}

// FindVial retrieves a vial by ID from the snapshot.
func (v transactionView) FindVial(id string) (Vial, bool) {
	vial, ok := v.state.vials[id]
	if !ok {
		return Vial{}, false
	}
	return cloneVial(vial), true
}

// FindLot retrieves a lot by ID from the snapshot.
func (v transactionView) FindLot(id string) (Lot, bool) {
	l, ok := v.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// RunInTransaction clones the committed state, applies fn's mutations, then
// evaluates the rules engine against the resulting view. The clone replaces
// the committed state only when fn and every blocking rule pass.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindStorageUnit exposes unit lookup within the transaction scope.
func (tx *transaction) FindStorageUnit(id string) (StorageUnit, bool) {
	u, ok := tx.state.units[id]
	if !ok {
		return StorageUnit{}, false
	}
	return cloneUnit(u), true
}

// FindStorageCell exposes cell lookup within the transaction scope.
func (tx *transaction) FindStorageCell(id string) (StorageCell, bool) {
	c, ok := tx.state.cells[id]
	if !ok {
		return StorageCell{}, false
	}
	return cloneCell(c), true
}

// FindVial exposes vial lookup within the transaction scope.
func (tx *transaction) FindVial(id string) (Vial, bool) {
	v, ok := tx.state.vials[id]
	if !ok {
		return Vial{}, false
	}
	return cloneVial(v), true
}

// FindLot exposes lot lookup within the transaction scope.
func (tx *transaction) FindLot(id string) (Lot, bool) {
	l, ok := tx.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// CreateStorageUnit stores a new grid container definition.
func (tx *transaction) CreateStorageUnit(u StorageUnit) (StorageUnit, error) {
	if u.ID == "" {
		u.ID = tx.store.newID()
	}
	if _, exists := tx.state.units[u.ID]; exists {
		return StorageUnit{}, fmt.Errorf("storage unit %q already exists", u.ID)
	}
	if u.Rows < 1 || u.Cols < 1 {
		return StorageUnit{}, errors.New("storage unit dimensions must be at least 1x1")
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.units[u.ID] = cloneUnit(u)
	tx.recordChange(Change{Entity: domain.EntityStorageUnit, Action: domain.ActionCreate, After: cloneUnit(u)})
	return cloneUnit(u), nil
}

// UpdateStorageUnit mutates an existing storage unit.
func (tx *transaction) UpdateStorageUnit(id string, mutator func(*StorageUnit) error) (StorageUnit, error) {
	current, ok := tx.state.units[id]
	if !ok {
		return StorageUnit{}, fmt.Errorf("storage unit %q not found", id)
	}
	before := cloneUnit(current)
	if err := mutator(&current); err != nil {
		return StorageUnit{}, err
	}
	if current.Rows < 1 || current.Cols < 1 {
		return StorageUnit{}, errors.New("storage unit dimensions must be at least 1x1")
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.units[id] = cloneUnit(current)
	tx.recordChange(Change{Entity: domain.EntityStorageUnit, Action: domain.ActionUpdate, Before: before, After: cloneUnit(current)})
	return cloneUnit(current), nil
}

// DeleteStorageUnit removes a unit definition. Temporary overflow units can
// never be deleted, and a unit's cells must be removed first.
func (tx *transaction) DeleteStorageUnit(id string) error {
	current, ok := tx.state.units[id]
	if !ok {
		return fmt.Errorf("storage unit %q not found", id)
	}
	if current.IsTemporary {
		return fmt.Errorf("temporary storage unit %q cannot be deleted", id)
	}
	if count := len(unitCells(&tx.state, id)); count > 0 {
		return fmt.Errorf("storage unit %q has %d cells; remove them before delete", id, count)
	}
	delete(tx.state.units, id)
	tx.recordChange(Change{Entity: domain.EntityStorageUnit, Action: domain.ActionDelete, Before: cloneUnit(current)})
	return nil
}

// CreateStorageCell stores a new cell within an existing unit's bounds.
func (tx *transaction) CreateStorageCell(c StorageCell) (StorageCell, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.cells[c.ID]; exists {
		return StorageCell{}, fmt.Errorf("storage cell %q already exists", c.ID)
	}
	unit, ok := tx.state.units[c.UnitID]
	if !ok {
		return StorageCell{}, fmt.Errorf("storage unit %q not found", c.UnitID)
	}
	if c.Row < 0 || c.Row >= unit.Rows || c.Col < 0 || c.Col >= unit.Cols {
		return StorageCell{}, fmt.Errorf("cell position (%d,%d) outside unit %q bounds %dx%d", c.Row, c.Col, unit.ID, unit.Rows, unit.Cols)
	}
	if cellPositionTaken(&tx.state, c.UnitID, c.Row, c.Col, c.ID) {
		return StorageCell{}, fmt.Errorf("cell position (%d,%d) already defined in unit %q", c.Row, c.Col, c.UnitID)
	}
	if c.VialID != nil {
		if _, ok := tx.state.vials[*c.VialID]; !ok {
			return StorageCell{}, fmt.Errorf("vial %q not found", *c.VialID)
		}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.cells[c.ID] = cloneCell(c)
	tx.recordChange(Change{Entity: domain.EntityStorageCell, Action: domain.ActionCreate, After: cloneCell(c)})
	return cloneCell(c), nil
}

// UpdateStorageCell mutates an existing cell.
func (tx *transaction) UpdateStorageCell(id string, mutator func(*StorageCell) error) (StorageCell, error) {
	current, ok := tx.state.cells[id]
	if !ok {
		return StorageCell{}, fmt.Errorf("storage cell %q not found", id)
	}
	before := cloneCell(current)
	if err := mutator(&current); err != nil {
		return StorageCell{}, err
	}
	unit, ok := tx.state.units[current.UnitID]
	if !ok {
		return StorageCell{}, fmt.Errorf("storage unit %q not found", current.UnitID)
	}
	if current.Row < 0 || current.Row >= unit.Rows || current.Col < 0 || current.Col >= unit.Cols {
		return StorageCell{}, fmt.Errorf("cell position (%d,%d) outside unit %q bounds %dx%d", current.Row, current.Col, unit.ID, unit.Rows, unit.Cols)
	}
	if cellPositionTaken(&tx.state, current.UnitID, current.Row, current.Col, id) {
		return StorageCell{}, fmt.Errorf("cell position (%d,%d) already defined in unit %q", current.Row, current.Col, current.UnitID)
	}
	if current.VialID != nil {
		if _, ok := tx.state.vials[*current.VialID]; !ok {
			return StorageCell{}, fmt.Errorf("vial %q not found", *current.VialID)
		}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.cells[id] = cloneCell(current)
	tx.recordChange(Change{Entity: domain.EntityStorageCell, Action: domain.ActionUpdate, Before: before, After: cloneCell(current)})
	return cloneCell(current), nil
}

// DeleteStorageCell removes an empty cell.
func (tx *transaction) DeleteStorageCell(id string) error {
	current, ok := tx.state.cells[id]
	if !ok {
		return fmt.Errorf("storage cell %q not found", id)
	}
	if current.VialID != nil {
		return fmt.Errorf("storage cell %q is occupied by vial %q; move it before delete", id, *current.VialID)
	}
	delete(tx.state.cells, id)
	tx.recordChange(Change{Entity: domain.EntityStorageCell, Action: domain.ActionDelete, Before: cloneCell(current)})
	return nil
}

// CreateVial stores a new vial. An empty status defaults to sealed.
func (tx *transaction) CreateVial(v Vial) (Vial, error) {
	if v.ID == "" {
		v.ID = tx.store.newID()
	}
	if _, exists := tx.state.vials[v.ID]; exists {
		return Vial{}, fmt.Errorf("vial %q already exists", v.ID)
	}
	if v.LotID == "" {
		return Vial{}, errors.New("vial requires lot id")
	}
	if _, ok := tx.state.lots[v.LotID]; !ok {
		return Vial{}, fmt.Errorf("lot %q not found", v.LotID)
	}
	if v.Status == "" {
		v.Status = domain.VialStatusSealed
	}
	if v.CellID != nil {
		if _, ok := tx.state.cells[*v.CellID]; !ok {
			return Vial{}, fmt.Errorf("storage cell %q not found", *v.CellID)
		}
	}
	v.CreatedAt = tx.now
	v.UpdatedAt = tx.now
	tx.state.vials[v.ID] = cloneVial(v)
	refreshLotCounts(&tx.state, v.LotID)
	tx.recordChange(Change{Entity: domain.EntityVial, Action: domain.ActionCreate, After: cloneVial(v)})
	return cloneVial(v), nil
}

// UpdateVial mutates an existing vial and refreshes lot aggregates.
func (tx *transaction) UpdateVial(id string, mutator func(*Vial) error) (Vial, error) {
	current, ok := tx.state.vials[id]
	if !ok {
		return Vial{}, fmt.Errorf("vial %q not found", id)
	}
	before := cloneVial(current)
	if err := mutator(&current); err != nil {
		return Vial{}, err
	}
	if current.LotID == "" {
		return Vial{}, errors.New("vial requires lot id")
	}
	if _, ok := tx.state.lots[current.LotID]; !ok {
		return Vial{}, fmt.Errorf("lot %q not found", current.LotID)
	}
	if current.CellID != nil {
		if _, ok := tx.state.cells[*current.CellID]; !ok {
			return Vial{}, fmt.Errorf("storage cell %q not found", *current.CellID)
		}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.vials[id] = cloneVial(current)
	refreshLotCounts(&tx.state, before.LotID)
	if current.LotID != before.LotID {
		refreshLotCounts(&tx.state, current.LotID)
	}
	tx.recordChange(Change{Entity: domain.EntityVial, Action: domain.ActionUpdate, Before: before, After: cloneVial(current)})
	return cloneVial(current), nil
}

// DeleteVial removes an unstored vial. Movement history is retained.
func (tx *transaction) DeleteVial(id string) error {
	current, ok := tx.state.vials[id]
	if !ok {
		return fmt.Errorf("vial %q not found", id)
	}
	if current.CellID != nil {
		return fmt.Errorf("vial %q still stored in cell %q; remove it before delete", id, *current.CellID)
	}
	for _, cell := range tx.state.cells {
		if cell.VialID != nil && *cell.VialID == id {
			return fmt.Errorf("vial %q still referenced by cell %q", id, cell.ID)
		}
	}
	delete(tx.state.vials, id)
	refreshLotCounts(&tx.state, current.LotID)
	tx.recordChange(Change{Entity: domain.EntityVial, Action: domain.ActionDelete, Before: cloneVial(current)})
	return nil
}

// CreateLot stores a new lot. An empty QC status defaults to pending.
func (tx *transaction) CreateLot(l Lot) (Lot, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.lots[l.ID]; exists {
		return Lot{}, fmt.Errorf("lot %q already exists", l.ID)
	}
	if l.AntibodyID == "" {
		return Lot{}, errors.New("lot requires antibody id")
	}
	if l.QCStatus == "" {
		l.QCStatus = domain.QCStatusPending
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	l.SealedCount = 0
	l.OpenedCount = 0
	l.DepletedCount = 0
	l.TotalCount = 0
	tx.state.lots[l.ID] = cloneLot(l)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionCreate, After: cloneLot(l)})
	return cloneLot(l), nil
}

// UpdateLot mutates an existing lot. Vial aggregates stay derived and are
// restored after the mutator runs.
func (tx *transaction) UpdateLot(id string, mutator func(*Lot) error) (Lot, error) {
	current, ok := tx.state.lots[id]
	if !ok {
		return Lot{}, fmt.Errorf("lot %q not found", id)
	}
	before := cloneLot(current)
	if err := mutator(&current); err != nil {
		return Lot{}, err
	}
	if current.AntibodyID == "" {
		return Lot{}, errors.New("lot requires antibody id")
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.lots[id] = cloneLot(current)
	refreshLotCounts(&tx.state, id)
	updated := tx.state.lots[id]
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionUpdate, Before: before, After: cloneLot(updated)})
	return cloneLot(updated), nil
}

// DeleteLot removes a lot with no remaining vials.
func (tx *transaction) DeleteLot(id string) error {
	current, ok := tx.state.lots[id]
	if !ok {
		return fmt.Errorf("lot %q not found", id)
	}
	for _, vial := range tx.state.vials {
		if vial.LotID == id {
			return fmt.Errorf("lot %q still referenced by vial %q", id, vial.ID)
		}
	}
	delete(tx.state.lots, id)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionDelete, Before: cloneLot(current)})
	return nil
}

// CreateMovement appends a vial movement audit record. A zero OccurredAt is
// stamped with the transaction time.
func (tx *transaction) CreateMovement(m Movement) (Movement, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.movements[m.ID]; exists {
		return Movement{}, fmt.Errorf("movement %q already exists", m.ID)
	}
	if m.VialID == "" {
		return Movement{}, errors.New("movement requires vial id")
	}
	if _, ok := tx.state.vials[m.VialID]; !ok {
		return Movement{}, fmt.Errorf("vial %q not found", m.VialID)
	}
	if m.ToUnitID == "" {
		return Movement{}, errors.New("movement requires destination unit id")
	}
	if _, ok := tx.state.units[m.ToUnitID]; !ok {
		return Movement{}, fmt.Errorf("storage unit %q not found", m.ToUnitID)
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = tx.now
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.movements[m.ID] = cloneMovement(m)
	tx.recordChange(Change{Entity: domain.EntityMovement, Action: domain.ActionCreate, After: cloneMovement(m)})
	return cloneMovement(m), nil
}

// Read helpers ---------------------------------------------------------------

// GetStorageUnit retrieves a storage unit by ID from committed state.
func (s *Store) GetStorageUnit(id string) (StorageUnit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.units[id]
	if !ok {
		return StorageUnit{}, false
	}
	return cloneUnit(u), true
}

// ListStorageUnits returns all storage units from committed state.
func (s *Store) ListStorageUnits() []StorageUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StorageUnit, 0, len(s.state.units))
	for _, u := range s.state.units {
		out = append(out, cloneUnit(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetStorageCell retrieves a cell by ID from committed state.
func (s *Store) GetStorageCell(id string) (StorageCell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cells[id]
	if !ok {
		return StorageCell{}, false
	}
	return cloneCell(c), true
}

// ListUnitCells returns one unit's cells in row-major order.
func (s *Store) ListUnitCells(unitID string) []StorageCell {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return unitCells(&s.state, unitID)
}

// GetVial retrieves a vial by ID from committed state.
func (s *Store) GetVial(id string) (Vial, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.vials[id]
	if !ok {
		return Vial{}, false
	}
	return cloneVial(v), true
}

// ListVials returns all vials from committed state.
func (s *Store) ListVials() []Vial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Vial, 0, len(s.state.vials))
	for _, v := range s.state.vials {
		out = append(out, cloneVial(v))
	}
	sortVials(out)
	return out
}

// ListLotVials returns the vials belonging to one lot.
func (s *Store) ListLotVials(lotID string) []Vial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Vial
	for _, v := range s.state.vials {
		if v.LotID == lotID {
			out = append(out, cloneVial(v))
		}
	}
	sortVials(out)
	return out
}

// GetLot retrieves a lot by ID from committed state.
func (s *Store) GetLot(id string) (Lot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// ListLots returns all lots from committed state in receipt order.
func (s *Store) ListLots() []Lot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Lot, 0, len(s.state.lots))
	for _, l := range s.state.lots {
		out = append(out, cloneLot(l))
	}
	sortLots(out)
	return out
}

// ListAntibodyLots returns the lots of one antibody in receipt order, the
// stable input order FEFO ranking ties depend on.
func (s *Store) ListAntibodyLots(antibodyID string) []Lot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Lot
	for _, l := range s.state.lots {
		if l.AntibodyID == antibodyID {
			out = append(out, cloneLot(l))
		}
	}
	sortLots(out)
	return out
}

// ListMovements returns the movement audit trail in chronological order.
func (s *Store) ListMovements() []Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Movement, 0, len(s.state.movements))
	for _, m := range s.state.movements {
		out = append(out, cloneMovement(m))
	}
	sortMovements(out)
	return out
}
