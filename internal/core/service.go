package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
	"github.com/ditar94/LabAid-sub000/pkg/grid"
)

// CapacityCache is the read-through cache for capacity reports. The service
// treats cache failures as misses; implementations report them so callers can
// log, never so they can fail the assessment.
type CapacityCache interface {
	Get(ctx context.Context, unitID string, requested int) (CapacityReport, bool, error)
	Set(ctx context.Context, report CapacityReport) error
	InvalidateUnit(ctx context.Context, unitID string) error
}

// Service exposes the engine's operations over a persistent store: occupancy
// reads, destination planning, transfer execution, FEFO ranking, capacity
// advising, and the unit and intake helpers.
type Service struct {
	store   domain.PersistentStore
	logger  *zap.Logger
	metrics *Metrics
	cache   CapacityCache
	fefo    FEFOPolicy
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(metrics *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = metrics }
}

// WithCapacityCache attaches a read-through cache for capacity reports.
func WithCapacityCache(cache CapacityCache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithFEFOPolicy overrides the default lot eligibility policy.
func WithFEFOPolicy(policy FEFOPolicy) ServiceOption {
	return func(s *Service) { s.fefo = policy }
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// CreateStorageUnit persists a new unit together with its full cell grid in
// one transaction. The unit's ID and every cell ID are generated by the store.
func (s *Service) CreateStorageUnit(ctx context.Context, unit domain.StorageUnit) (domain.StorageUnit, error) {
	var created domain.StorageUnit
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateStorageUnit(unit)
		if err != nil {
			return err
		}
		for row := 0; row < created.Rows; row++ {
			for col := 0; col < created.Cols; col++ {
				if _, err := tx.CreateStorageCell(domain.StorageCell{
					UnitID: created.ID,
					Row:    row,
					Col:    col,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	s.logRuleWarnings(res)
	if err != nil {
		return domain.StorageUnit{}, err
	}
	s.logger.Info("storage unit created",
		zap.String("unit_id", created.ID),
		zap.String("name", created.Name),
		zap.Int("rows", created.Rows),
		zap.Int("cols", created.Cols),
		zap.Bool("temporary", created.IsTemporary))
	return created, nil
}

// ListStorageUnits returns all units from committed state.
func (s *Service) ListStorageUnits() []domain.StorageUnit {
	return s.store.ListStorageUnits()
}

// GetOccupancy returns the occupancy snapshot for one unit.
func (s *Service) GetOccupancy(ctx context.Context, unitID string) (OccupancySnapshot, error) {
	index, err := s.occupancyIndex(ctx, unitID)
	if err != nil {
		return OccupancySnapshot{}, err
	}
	return index.Snapshot(), nil
}

func (s *Service) occupancyIndex(ctx context.Context, unitID string) (*OccupancyIndex, error) {
	var index *OccupancyIndex
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		unit, ok := view.FindStorageUnit(unitID)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityStorageUnit, ID: unitID}
		}
		index = NewOccupancyIndex(unit, view.ListUnitCells(unitID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return index, nil
}

// PlanDestination computes a destination cell set for the request against
// current occupancy. The plan is advisory; ExecuteTransfer revalidates it.
func (s *Service) PlanDestination(ctx context.Context, req PlanRequest) (Plan, error) {
	index, err := s.occupancyIndex(ctx, req.UnitID)
	if err != nil {
		return Plan{}, err
	}
	plan, err := PlanDestination(index, req)
	s.metrics.recordPlan(req.Strategy, planOutcome(err))
	if err != nil {
		s.logger.Info("destination plan failed",
			zap.String("unit_id", req.UnitID),
			zap.String("strategy", string(req.Strategy)),
			zap.Int("count", req.Count),
			zap.Error(err))
		return Plan{}, err
	}
	s.logger.Debug("destination planned",
		zap.String("unit_id", req.UnitID),
		zap.String("strategy", string(req.Strategy)),
		zap.Int("count", req.Count))
	return plan, nil
}

// ExecuteTransfer applies a transfer in one store transaction: source and
// destination revalidation, cell and vial mutation, movement records, and rule
// evaluation at commit. Capacity cache entries for every touched unit are
// invalidated after a successful commit.
func (s *Service) ExecuteTransfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	var result TransferResult
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		result, err = applyTransfer(tx, req)
		return err
	})
	s.logRuleWarnings(res)
	outcome := transferOutcome(err)
	moved := 0
	if err == nil {
		moved = len(result.Placements)
	}
	s.metrics.recordTransfer(outcome, moved)
	if err != nil {
		s.logger.Info("transfer rejected",
			zap.Int("vials", len(req.SourceVialIDs)),
			zap.String("outcome", outcome),
			zap.Error(err))
		return TransferResult{}, err
	}
	s.invalidateUnits(ctx, result.UnitIDs)
	s.logger.Info("transfer committed",
		zap.Int("vials", moved),
		zap.Strings("unit_ids", result.UnitIDs),
		zap.String("actor", req.Actor))
	return result, nil
}

// ReceiveRequest describes a vial intake: how many sealed vials to create for
// a lot and where to place them. Plan.Count is the number of vials received.
type ReceiveRequest struct {
	LotID string
	Plan  PlanRequest
	Actor string
}

// ReceiveResult reports the vials created by an intake and where they landed.
type ReceiveResult struct {
	VialIDs    []string    `json:"vial_ids"`
	Placements []Placement `json:"placements"`
}

// ReceiveVials creates sealed vials for a lot and places them with the
// planner, all in one transaction. Placement runs against the transactional
// snapshot, so a plan computed here cannot race another intake.
func (s *Service) ReceiveVials(ctx context.Context, req ReceiveRequest) (ReceiveResult, error) {
	var result ReceiveResult
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		lot, ok := tx.FindLot(req.LotID)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityLot, ID: req.LotID}
		}
		if lot.Archived {
			return fmt.Errorf("lot %s is archived", req.LotID)
		}
		unit, ok := tx.FindStorageUnit(req.Plan.UnitID)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityStorageUnit, ID: req.Plan.UnitID}
		}
		index := NewOccupancyIndex(unit, tx.Snapshot().ListUnitCells(unit.ID))
		plan, err := PlanDestination(index, req.Plan)
		if err != nil {
			return err
		}
		result = ReceiveResult{
			VialIDs:    make([]string, 0, len(plan.Cells)),
			Placements: make([]Placement, 0, len(plan.Cells)),
		}
		for _, cell := range plan.Cells {
			cellID := cell.ID
			vial, err := tx.CreateVial(domain.Vial{
				LotID:  req.LotID,
				Status: domain.VialStatusSealed,
				CellID: &cellID,
			})
			if err != nil {
				return err
			}
			vialID := vial.ID
			if _, err := tx.UpdateStorageCell(cellID, func(c *domain.StorageCell) error {
				c.VialID = &vialID
				return nil
			}); err != nil {
				return err
			}
			position := grid.DisplayName(grid.Coord{Row: cell.Row, Col: cell.Col})
			if _, err := tx.CreateMovement(domain.Movement{
				VialID:     vialID,
				LotID:      req.LotID,
				ToUnitID:   cell.UnitID,
				ToPosition: position,
				Actor:      req.Actor,
			}); err != nil {
				return err
			}
			result.VialIDs = append(result.VialIDs, vialID)
			result.Placements = append(result.Placements, Placement{
				VialID:   vialID,
				CellID:   cellID,
				UnitID:   cell.UnitID,
				Position: position,
			})
		}
		return nil
	})
	s.logRuleWarnings(res)
	s.metrics.recordPlan(req.Plan.Strategy, planOutcome(err))
	if err != nil {
		s.logger.Info("vial intake rejected",
			zap.String("lot_id", req.LotID),
			zap.String("unit_id", req.Plan.UnitID),
			zap.Int("count", req.Plan.Count),
			zap.Error(err))
		return ReceiveResult{}, err
	}
	s.invalidateUnits(ctx, []string{req.Plan.UnitID})
	s.logger.Info("vials received",
		zap.String("lot_id", req.LotID),
		zap.String("unit_id", req.Plan.UnitID),
		zap.Int("count", len(result.VialIDs)))
	return result, nil
}

// EnsureOverflowCapacity grows a temporary unit until it holds at least the
// requested number of empty cells, appending whole rows. Permanent units are
// never resized.
func (s *Service) EnsureOverflowCapacity(ctx context.Context, unitID string, needed int) (domain.StorageUnit, error) {
	if needed <= 0 {
		return domain.StorageUnit{}, fmt.Errorf("needed capacity must be positive, got %d", needed)
	}
	var unit domain.StorageUnit
	grown := false
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current, ok := tx.FindStorageUnit(unitID)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityStorageUnit, ID: unitID}
		}
		if !current.IsTemporary {
			return fmt.Errorf("unit %s is not an overflow unit", unitID)
		}
		index := NewOccupancyIndex(current, tx.Snapshot().ListUnitCells(unitID))
		deficit := needed - index.EmptyCount()
		if deficit <= 0 {
			unit = current
			return nil
		}
		rowsToAdd := (deficit + current.Cols - 1) / current.Cols
		oldRows := current.Rows
		var err error
		unit, err = tx.UpdateStorageUnit(unitID, func(u *domain.StorageUnit) error {
			u.Rows += rowsToAdd
			return nil
		})
		if err != nil {
			return err
		}
		for row := oldRows; row < unit.Rows; row++ {
			for col := 0; col < unit.Cols; col++ {
				if _, err := tx.CreateStorageCell(domain.StorageCell{
					UnitID: unitID,
					Row:    row,
					Col:    col,
				}); err != nil {
					return err
				}
			}
		}
		grown = true
		return nil
	})
	s.logRuleWarnings(res)
	if err != nil {
		return domain.StorageUnit{}, err
	}
	if grown {
		s.invalidateUnits(ctx, []string{unitID})
		s.logger.Info("overflow unit grown",
			zap.String("unit_id", unitID),
			zap.Int("rows", unit.Rows),
			zap.Int("needed", needed))
	}
	return unit, nil
}

// RankLots labels all lots of one antibody under the service's FEFO policy.
func (s *Service) RankLots(ctx context.Context, antibodyID string) (map[string]domain.FEFOLabel, error) {
	var lots []domain.Lot
	if err := s.store.View(ctx, func(view domain.TransactionView) error {
		for _, lot := range view.ListLots() {
			if lot.AntibodyID == antibodyID {
				lots = append(lots, lot)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return RankLots(lots, s.fefo), nil
}

// RankLotSet labels a caller-supplied lot set under the service's FEFO
// policy. Pure; the lots are ranked as given, regardless of antibody.
func (s *Service) RankLotSet(lots []domain.Lot) map[string]domain.FEFOLabel {
	return RankLots(lots, s.fefo)
}

// AssessCapacity reports whether a unit can absorb the requested number of
// vials. Reports are served from the capacity cache when one is configured;
// cache failures degrade to a fresh computation.
func (s *Service) AssessCapacity(ctx context.Context, unitID string, requested int) (CapacityReport, error) {
	if s.cache != nil {
		report, ok, err := s.cache.Get(ctx, unitID, requested)
		switch {
		case err != nil:
			s.logger.Warn("capacity cache read failed", zap.String("unit_id", unitID), zap.Error(err))
		case ok:
			s.metrics.recordAssessment(report)
			return report, nil
		}
	}
	index, err := s.occupancyIndex(ctx, unitID)
	if err != nil {
		return CapacityReport{}, err
	}
	report := AssessCapacity(index, requested)
	s.metrics.recordAssessment(report)
	if s.cache != nil {
		if err := s.cache.Set(ctx, report); err != nil {
			s.logger.Warn("capacity cache write failed", zap.String("unit_id", unitID), zap.Error(err))
		}
	}
	return report, nil
}

// MovementFilter narrows a movement history query. Zero-valued fields match
// everything; Limit caps the result when positive.
type MovementFilter struct {
	UnitID string
	VialID string
	LotID  string
	Limit  int
}

// MovementHistory returns movement records newest first. A unit filter
// matches moves into or out of the unit.
func (s *Service) MovementHistory(ctx context.Context, filter MovementFilter) ([]domain.Movement, error) {
	var movements []domain.Movement
	if err := s.store.View(ctx, func(view domain.TransactionView) error {
		for _, mv := range view.ListMovements() {
			if filter.VialID != "" && mv.VialID != filter.VialID {
				continue
			}
			if filter.LotID != "" && mv.LotID != filter.LotID {
				continue
			}
			if filter.UnitID != "" {
				from := mv.FromUnitID != nil && *mv.FromUnitID == filter.UnitID
				if !from && mv.ToUnitID != filter.UnitID {
					continue
				}
			}
			movements = append(movements, mv)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	sort.SliceStable(movements, func(i, j int) bool {
		return movements[i].OccurredAt.After(movements[j].OccurredAt)
	})
	if filter.Limit > 0 && len(movements) > filter.Limit {
		movements = movements[:filter.Limit]
	}
	return movements, nil
}

func (s *Service) invalidateUnits(ctx context.Context, unitIDs []string) {
	if s.cache == nil {
		return
	}
	for _, unitID := range unitIDs {
		if err := s.cache.InvalidateUnit(ctx, unitID); err != nil {
			s.logger.Warn("capacity cache invalidation failed", zap.String("unit_id", unitID), zap.Error(err))
		}
	}
}

func (s *Service) logRuleWarnings(res domain.Result) {
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityBlock {
			continue
		}
		s.logger.Warn("rule violation",
			zap.String("rule", v.Rule),
			zap.String("severity", string(v.Severity)),
			zap.String("entity", string(v.Entity)),
			zap.String("entity_id", v.EntityID),
			zap.String("message", v.Message))
	}
}

func planOutcome(err error) string {
	if err == nil {
		return outcomePlanned
	}
	var insufficient domain.InsufficientCapacityError
	if errors.As(err, &insufficient) {
		return outcomeInsufficient
	}
	var invalid domain.InvalidSelectionError
	if errors.As(err, &invalid) {
		return outcomeInvalid
	}
	var transfer domain.TransferError
	if errors.As(err, &transfer) && transfer.Reason == domain.TransferDestinationOccupied {
		return outcomeInvalid
	}
	return outcomeError
}

func transferOutcome(err error) string {
	if err == nil {
		return outcomeCommitted
	}
	var transfer domain.TransferError
	if errors.As(err, &transfer) {
		switch transfer.Reason {
		case domain.TransferSourceNotAvailable, domain.TransferDestinationOccupied:
			return outcomeConflict
		}
	}
	return outcomeRejected
}
