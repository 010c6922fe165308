package core

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewPedanticRegistry(), "")

	m.recordPlan(StrategyAuto, outcomePlanned)
	m.recordPlan(StrategyAuto, outcomePlanned)
	m.recordPlan(StrategyManual, outcomeInvalid)
	m.recordTransfer(outcomeCommitted, 3)
	m.recordTransfer(outcomeConflict, 0)
	m.recordAssessment(CapacityReport{Overflow: 2})
	m.recordAssessment(CapacityReport{})

	if got := testutil.ToFloat64(m.plans.WithLabelValues(string(StrategyAuto), outcomePlanned)); got != 2 {
		t.Fatalf("auto plans: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.plans.WithLabelValues(string(StrategyManual), outcomeInvalid)); got != 1 {
		t.Fatalf("manual invalid plans: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.transfers.WithLabelValues(outcomeCommitted)); got != 1 {
		t.Fatalf("committed transfers: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.vialsMoved); got != 3 {
		t.Fatalf("vials moved: got %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.conflicts); got != 1 {
		t.Fatalf("conflicts: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.overflowed); got != 1 {
		t.Fatalf("overflow advisories: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.assessments); got != 2 {
		t.Fatalf("assessments: got %v, want 2", got)
	}
}

func TestMetricsNilReceiverIsInert(t *testing.T) {
	var m *Metrics
	m.recordPlan(StrategyAuto, outcomePlanned)
	m.recordTransfer(outcomeCommitted, 5)
	m.recordAssessment(CapacityReport{Overflow: 1})
}

func TestPlanOutcomeClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, outcomePlanned},
		{"insufficient", domain.InsufficientCapacityError{Requested: 4, Available: 1}, outcomeInsufficient},
		{"invalid selection", domain.InvalidSelectionError{Picked: 1, Required: 2}, outcomeInvalid},
		{"occupied pick", domain.TransferError{Reason: domain.TransferDestinationOccupied}, outcomeInvalid},
		{"other", errors.New("boom"), outcomeError},
	}
	for _, tc := range cases {
		if got := planOutcome(tc.err); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestTransferOutcomeClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, outcomeCommitted},
		{"occupied", domain.TransferError{Reason: domain.TransferDestinationOccupied}, outcomeConflict},
		{"stale source", domain.TransferError{Reason: domain.TransferSourceNotAvailable}, outcomeConflict},
		{"count mismatch", domain.TransferError{Reason: domain.TransferCountMismatch}, outcomeRejected},
		{"rule block", domain.RuleViolationError{}, outcomeRejected},
	}
	for _, tc := range cases {
		if got := transferOutcome(tc.err); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestServiceRecordsMetrics(t *testing.T) {
	seeded := seedStore(t, 1, 2, 1)
	m := NewMetrics(prometheus.NewPedanticRegistry(), "labaid_test")
	svc := NewService(seeded.store, WithMetrics(m))

	ctx := context.Background()
	if _, err := svc.PlanDestination(ctx, PlanRequest{UnitID: seeded.unit.ID, Count: 1, Strategy: StrategyAuto}); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if got := testutil.ToFloat64(m.plans.WithLabelValues(string(StrategyAuto), outcomePlanned)); got != 1 {
		t.Fatalf("plan counter: got %v, want 1", got)
	}
	if _, err := svc.ExecuteTransfer(ctx, TransferRequest{
		SourceVialIDs:      []string{seeded.vialIDs[0]},
		DestinationCellIDs: []string{seeded.cells[1].ID},
		Actor:              "tech",
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := testutil.ToFloat64(m.vialsMoved); got != 1 {
		t.Fatalf("vials moved: got %v, want 1", got)
	}
}
