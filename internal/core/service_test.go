package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ditar94/LabAid-sub000/internal/infra/persistence/memory"
	"github.com/ditar94/LabAid-sub000/pkg/domain"
	"github.com/ditar94/LabAid-sub000/pkg/grid"
)

// recordingCache is a scriptable CapacityCache that tracks calls.
type recordingCache struct {
	entries     map[string]CapacityReport
	getErr      error
	setErr      error
	gets        int
	sets        int
	invalidated []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string]CapacityReport)}
}

func cacheKey(unitID string, requested int) string {
	return fmt.Sprintf("%s:%d", unitID, requested)
}

func (c *recordingCache) Get(_ context.Context, unitID string, requested int) (CapacityReport, bool, error) {
	c.gets++
	if c.getErr != nil {
		return CapacityReport{}, false, c.getErr
	}
	report, ok := c.entries[cacheKey(unitID, requested)]
	return report, ok, nil
}

func (c *recordingCache) Set(_ context.Context, report CapacityReport) error {
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[cacheKey(report.UnitID, report.Requested)] = report
	return nil
}

func (c *recordingCache) InvalidateUnit(_ context.Context, unitID string) error {
	c.invalidated = append(c.invalidated, unitID)
	for key, report := range c.entries {
		if report.UnitID == unitID {
			delete(c.entries, key)
		}
	}
	return nil
}

func TestServiceCreateStorageUnitBuildsGrid(t *testing.T) {
	svc := NewService(memory.NewStore(NewDefaultRulesEngine()))
	ctx := context.Background()

	unit, err := svc.CreateStorageUnit(ctx, domain.StorageUnit{Name: "Freezer A", Rows: 3, Cols: 4})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if unit.ID == "" {
		t.Fatalf("expected generated unit ID")
	}
	snap, err := svc.GetOccupancy(ctx, unit.ID)
	if err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	if snap.Total != 12 || snap.Occupied != 0 || snap.Empty != 12 {
		t.Fatalf("fresh grid counts: %+v", snap)
	}
	if snap.Cells[0].Row != 0 || snap.Cells[0].Col != 0 {
		t.Fatalf("first cell must be A1: %+v", snap.Cells[0])
	}
	if len(svc.ListStorageUnits()) != 1 {
		t.Fatalf("expected one unit listed")
	}
}

func TestServiceCreateStorageUnitRejectsDegenerateGrid(t *testing.T) {
	svc := NewService(memory.NewStore(NewDefaultRulesEngine()))
	if _, err := svc.CreateStorageUnit(context.Background(), domain.StorageUnit{Name: "Bad", Rows: 0, Cols: 4}); err == nil {
		t.Fatalf("expected degenerate grid to be rejected")
	}
}

func TestServiceGetOccupancyUnknownUnit(t *testing.T) {
	svc := NewService(memory.NewStore(NewDefaultRulesEngine()))
	_, err := svc.GetOccupancy(context.Background(), "ghost")
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServicePlanAndExecuteTransfer(t *testing.T) {
	seeded := seedStore(t, 2, 2, 2)
	cache := newRecordingCache()
	svc := NewService(seeded.store, WithCapacityCache(cache))
	ctx := context.Background()

	dest, err := svc.CreateStorageUnit(ctx, domain.StorageUnit{Name: "Freezer B", Rows: 1, Cols: 4})
	if err != nil {
		t.Fatalf("create destination: %v", err)
	}
	plan, err := svc.PlanDestination(ctx, PlanRequest{UnitID: dest.ID, Count: 2, Strategy: StrategyAuto})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	result, err := svc.ExecuteTransfer(ctx, TransferRequest{
		SourceVialIDs:      seeded.vialIDs,
		DestinationCellIDs: plan.CellIDs(),
		Actor:              "tech",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Placements) != 2 {
		t.Fatalf("placements: %d", len(result.Placements))
	}

	// Both touched units lose their cached capacity entries.
	wantInvalidated := map[string]bool{seeded.unit.ID: false, dest.ID: false}
	for _, unitID := range cache.invalidated {
		if _, ok := wantInvalidated[unitID]; !ok {
			t.Fatalf("unexpected invalidation for %s", unitID)
		}
		wantInvalidated[unitID] = true
	}
	for unitID, seen := range wantInvalidated {
		if !seen {
			t.Fatalf("unit %s was not invalidated", unitID)
		}
	}

	source, err := svc.GetOccupancy(ctx, seeded.unit.ID)
	if err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	if source.Occupied != 0 {
		t.Fatalf("source must drain: %+v", source)
	}
}

func TestServiceTransferConflictSecondLoses(t *testing.T) {
	seeded := seedStore(t, 1, 3, 2)
	svc := NewService(seeded.store)
	ctx := context.Background()

	// Both callers plan against the same snapshot: one empty cell.
	planA, err := svc.PlanDestination(ctx, PlanRequest{UnitID: seeded.unit.ID, Count: 1, Strategy: StrategyAuto})
	if err != nil {
		t.Fatalf("plan A: %v", err)
	}
	planB, err := svc.PlanDestination(ctx, PlanRequest{UnitID: seeded.unit.ID, Count: 1, Strategy: StrategyAuto})
	if err != nil {
		t.Fatalf("plan B: %v", err)
	}
	if planA.CellIDs()[0] != planB.CellIDs()[0] {
		t.Fatalf("plans must target the same cell")
	}

	if _, err := svc.ExecuteTransfer(ctx, TransferRequest{
		SourceVialIDs:      []string{seeded.vialIDs[0]},
		DestinationCellIDs: planA.CellIDs(),
		Actor:              "alice",
	}); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	_, err = svc.ExecuteTransfer(ctx, TransferRequest{
		SourceVialIDs:      []string{seeded.vialIDs[1]},
		DestinationCellIDs: planB.CellIDs(),
		Actor:              "bob",
	})
	var transferErr domain.TransferError
	if !errors.As(err, &transferErr) || transferErr.Reason != domain.TransferDestinationOccupied {
		t.Fatalf("second transfer must conflict, got %v", err)
	}
}

func TestServiceReceiveVials(t *testing.T) {
	seeded := seedStore(t, 2, 2, 1)
	cache := newRecordingCache()
	svc := NewService(seeded.store, WithCapacityCache(cache))
	ctx := context.Background()

	result, err := svc.ReceiveVials(ctx, ReceiveRequest{
		LotID: seeded.lot.ID,
		Plan:  PlanRequest{UnitID: seeded.unit.ID, Count: 2, Strategy: StrategyAuto},
		Actor: "intake",
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(result.VialIDs) != 2 || len(result.Placements) != 2 {
		t.Fatalf("receive result: %+v", result)
	}
	// Seeded vial sits at A1; intake fills A2 then B1.
	if result.Placements[0].Position != "A2" || result.Placements[1].Position != "B1" {
		t.Fatalf("intake positions: %+v", result.Placements)
	}

	snap, err := svc.GetOccupancy(ctx, seeded.unit.ID)
	if err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	if snap.Occupied != 3 {
		t.Fatalf("occupied after intake: %d, want 3", snap.Occupied)
	}
	lot, ok := seeded.store.GetLot(seeded.lot.ID)
	if !ok || lot.SealedCount != 3 || lot.TotalCount != 3 {
		t.Fatalf("lot counts after intake: %+v", lot)
	}
	movements, err := svc.MovementHistory(ctx, MovementFilter{LotID: seeded.lot.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("intake must record one movement per vial, got %d", len(movements))
	}
	for _, mv := range movements {
		if mv.FromUnitID != nil {
			t.Fatalf("intake movements have no source: %+v", mv)
		}
		if mv.Actor != "intake" {
			t.Fatalf("movement actor: %q", mv.Actor)
		}
	}
	if len(cache.invalidated) == 0 || cache.invalidated[0] != seeded.unit.ID {
		t.Fatalf("intake must invalidate the unit's capacity entries: %v", cache.invalidated)
	}
}

func TestServiceReceiveVialsRejectsArchivedLot(t *testing.T) {
	seeded := seedStore(t, 1, 2, 0)
	if _, err := seeded.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateLot(seeded.lot.ID, func(l *domain.Lot) error {
			l.Archived = true
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("archive lot: %v", err)
	}
	svc := NewService(seeded.store)
	_, err := svc.ReceiveVials(context.Background(), ReceiveRequest{
		LotID: seeded.lot.ID,
		Plan:  PlanRequest{UnitID: seeded.unit.ID, Count: 1, Strategy: StrategyAuto},
	})
	if err == nil {
		t.Fatalf("expected archived lot to be rejected")
	}
	if len(seeded.store.ListVials()) != 0 {
		t.Fatalf("rejected intake must create no vials")
	}
}

func TestServiceReceiveVialsInsufficientCapacity(t *testing.T) {
	seeded := seedStore(t, 1, 2, 1)
	svc := NewService(seeded.store)
	_, err := svc.ReceiveVials(context.Background(), ReceiveRequest{
		LotID: seeded.lot.ID,
		Plan:  PlanRequest{UnitID: seeded.unit.ID, Count: 2, Strategy: StrategyAuto},
	})
	var capErr domain.InsufficientCapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected InsufficientCapacityError, got %v", err)
	}
	if len(seeded.store.ListVials()) != 1 {
		t.Fatalf("failed intake must not create vials")
	}
}

func TestServiceEnsureOverflowCapacity(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	svc := NewService(store)
	ctx := context.Background()

	overflow, err := svc.CreateStorageUnit(ctx, domain.StorageUnit{Name: "Overflow", Rows: 1, Cols: 3, IsTemporary: true})
	if err != nil {
		t.Fatalf("create overflow unit: %v", err)
	}

	// Already has 3 empty cells; nothing to do.
	unit, err := svc.EnsureOverflowCapacity(ctx, overflow.ID, 3)
	if err != nil {
		t.Fatalf("ensure (no-op): %v", err)
	}
	if unit.Rows != 1 {
		t.Fatalf("no-op must not grow: rows %d", unit.Rows)
	}

	// Needs 7: deficit 4 over 3 columns rounds up to 2 extra rows.
	unit, err = svc.EnsureOverflowCapacity(ctx, overflow.ID, 7)
	if err != nil {
		t.Fatalf("ensure (grow): %v", err)
	}
	if unit.Rows != 3 {
		t.Fatalf("rows after growth: got %d, want 3", unit.Rows)
	}
	snap, err := svc.GetOccupancy(ctx, overflow.ID)
	if err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	if snap.Total != 9 || snap.Empty != 9 {
		t.Fatalf("grown grid counts: %+v", snap)
	}
}

func TestServiceEnsureOverflowCapacityPermanentUnit(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	svc := NewService(store)
	ctx := context.Background()
	unit, err := svc.CreateStorageUnit(ctx, domain.StorageUnit{Name: "Permanent", Rows: 1, Cols: 1})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if _, err := svc.EnsureOverflowCapacity(ctx, unit.ID, 5); err == nil {
		t.Fatalf("permanent units must never be resized")
	}
	if _, err := svc.EnsureOverflowCapacity(ctx, unit.ID, 0); err == nil {
		t.Fatalf("non-positive needed must be rejected")
	}
}

func TestServiceRankLots(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	svc := NewService(store)
	ctx := context.Background()

	var earlyID, lateID, otherID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		early := mustDate("2025-06-01")
		late := mustDate("2026-01-01")
		lot, err := tx.CreateLot(domain.Lot{AntibodyID: "ab-1", LotNumber: "L1", ExpirationDate: &early})
		if err != nil {
			return err
		}
		earlyID = lot.ID
		lot, err = tx.CreateLot(domain.Lot{AntibodyID: "ab-1", LotNumber: "L2", ExpirationDate: &late})
		if err != nil {
			return err
		}
		lateID = lot.ID
		lot, err = tx.CreateLot(domain.Lot{AntibodyID: "ab-2", LotNumber: "X1"})
		if err != nil {
			return err
		}
		otherID = lot.ID
		for _, lotID := range []string{earlyID, lateID, otherID} {
			if _, err := tx.CreateVial(domain.Vial{LotID: lotID}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed lots: %v", err)
	}

	labels, err := svc.RankLots(ctx, "ab-1")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("ranking must only cover the antibody's lots: %v", labels)
	}
	if labels[earlyID] != domain.FEFOCurrent || labels[lateID] != domain.FEFONew {
		t.Fatalf("labels: %v", labels)
	}

	// RankLotSet applies the same policy to caller-supplied lots.
	set := svc.RankLotSet([]domain.Lot{
		testLot("a", strPtr("2025-06-01"), 1),
		testLot("b", strPtr("2026-01-01"), 1),
	})
	if set["a"] != domain.FEFOCurrent || set["b"] != domain.FEFONew {
		t.Fatalf("lot set labels: %v", set)
	}
}

func TestServiceAssessCapacityReadThrough(t *testing.T) {
	seeded := seedStore(t, 2, 2, 1)
	cache := newRecordingCache()
	svc := NewService(seeded.store, WithCapacityCache(cache))
	ctx := context.Background()

	first, err := svc.AssessCapacity(ctx, seeded.unit.ID, 2)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if first.Available != 3 || first.Overflow != 0 {
		t.Fatalf("report: %+v", first)
	}
	if cache.sets != 1 {
		t.Fatalf("miss must populate the cache: sets=%d", cache.sets)
	}

	second, err := svc.AssessCapacity(ctx, seeded.unit.ID, 2)
	if err != nil {
		t.Fatalf("assess (cached): %v", err)
	}
	if second.Available != first.Available || second.Total != first.Total {
		t.Fatalf("cached report differs: %+v vs %+v", second, first)
	}
	if cache.sets != 1 {
		t.Fatalf("hit must not rewrite the cache: sets=%d", cache.sets)
	}
}

func TestServiceAssessCapacityCacheFailureDegrades(t *testing.T) {
	seeded := seedStore(t, 1, 2, 0)
	cache := newRecordingCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	svc := NewService(seeded.store, WithCapacityCache(cache))

	report, err := svc.AssessCapacity(context.Background(), seeded.unit.ID, 5)
	if err != nil {
		t.Fatalf("assess must survive cache failure: %v", err)
	}
	if report.Overflow != 3 {
		t.Fatalf("overflow: got %d, want 3", report.Overflow)
	}
	if len(report.Resolutions) != 2 {
		t.Fatalf("overflow must offer both resolutions: %v", report.Resolutions)
	}
}

func TestServiceAssessCapacityWithoutCache(t *testing.T) {
	seeded := seedStore(t, 1, 2, 1)
	svc := NewService(seeded.store)
	report, err := svc.AssessCapacity(context.Background(), seeded.unit.ID, 1)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if report.Available != 1 || report.Overflow != 0 {
		t.Fatalf("report: %+v", report)
	}
}

func TestServiceMovementHistory(t *testing.T) {
	seeded := seedStore(t, 1, 4, 2)
	base := mustDate("2026-02-01")
	step := 0
	seeded.store.SetNowFunc(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	})
	svc := NewService(seeded.store)
	ctx := context.Background()

	if _, err := svc.ExecuteTransfer(ctx, TransferRequest{
		SourceVialIDs:      []string{seeded.vialIDs[0]},
		DestinationCellIDs: []string{seeded.cells[2].ID},
		Actor:              "alice",
	}); err != nil {
		t.Fatalf("first move: %v", err)
	}
	if _, err := svc.ExecuteTransfer(ctx, TransferRequest{
		SourceVialIDs:      []string{seeded.vialIDs[1]},
		DestinationCellIDs: []string{seeded.cells[3].ID},
		Actor:              "bob",
	}); err != nil {
		t.Fatalf("second move: %v", err)
	}

	all, err := svc.MovementHistory(ctx, MovementFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("history length: %d", len(all))
	}
	if all[0].Actor != "bob" || all[1].Actor != "alice" {
		t.Fatalf("history must be newest first: %v then %v", all[0].Actor, all[1].Actor)
	}

	byVial, err := svc.MovementHistory(ctx, MovementFilter{VialID: seeded.vialIDs[0]})
	if err != nil {
		t.Fatalf("history by vial: %v", err)
	}
	if len(byVial) != 1 || byVial[0].VialID != seeded.vialIDs[0] {
		t.Fatalf("vial filter: %+v", byVial)
	}

	byUnit, err := svc.MovementHistory(ctx, MovementFilter{UnitID: seeded.unit.ID})
	if err != nil {
		t.Fatalf("history by unit: %v", err)
	}
	if len(byUnit) != 2 {
		t.Fatalf("unit filter: %d", len(byUnit))
	}

	limited, err := svc.MovementHistory(ctx, MovementFilter{Limit: 1})
	if err != nil {
		t.Fatalf("history limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Actor != "bob" {
		t.Fatalf("limit must keep the newest entry: %+v", limited)
	}

	none, err := svc.MovementHistory(ctx, MovementFilter{UnitID: "ghost"})
	if err != nil {
		t.Fatalf("history ghost: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("ghost unit filter must match nothing")
	}
}

func TestServicePlanDestinationManual(t *testing.T) {
	seeded := seedStore(t, 2, 2, 1)
	svc := NewService(seeded.store)
	plan, err := svc.PlanDestination(context.Background(), PlanRequest{
		UnitID:   seeded.unit.ID,
		Count:    2,
		Strategy: StrategyManual,
		Picks:    []grid.Coord{{Row: 1, Col: 1}, {Row: 0, Col: 1}},
	})
	if err != nil {
		t.Fatalf("manual plan: %v", err)
	}
	if plan.Cells[0].Row != 1 || plan.Cells[0].Col != 1 {
		t.Fatalf("pick order must survive: %+v", plan.Cells)
	}
}
