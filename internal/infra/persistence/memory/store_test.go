package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
)

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindStorageUnit("missing"); ok {
			t.Fatalf("expected missing unit lookup")
		}
		created, err := tx.CreateStorageUnit(domain.StorageUnit{Name: "Freezer A", Rows: 2, Cols: 3})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated ID")
		}
		view := tx.Snapshot()
		if len(view.ListStorageUnits()) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListStorageUnits()) != 1 {
		t.Fatalf("expected persisted unit")
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListStorageUnits()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListStorageUnits()) != 1 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
	if store.NowFunc() == nil {
		t.Fatalf("expected now func")
	}
}

func TestStoreTransactionRollbackOnError(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateStorageUnit(domain.StorageUnit{Name: "Kept", Rows: 1, Cols: 1}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(store.ListStorageUnits()) != 0 {
		t.Fatalf("expected no committed state after rollback")
	}
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateStorageUnit(domain.StorageUnit{Name: "Fail", Rows: 1, Cols: 1})
		return e
	})
	if err == nil {
		t.Fatalf("expected rule violation error")
	}
	if len(store.ListStorageUnits()) != 0 {
		t.Fatalf("expected blocked transaction to leave state untouched")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	res.Merge(domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}})
	return res, nil
}

func TestStoreView(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateStorageUnit(domain.StorageUnit{Name: "Rack", Rows: 1, Cols: 2})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := store.View(ctx, func(view domain.TransactionView) error {
		if len(view.ListStorageUnits()) != 1 {
			t.Fatalf("expected one unit in view")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestUpdateStorageUnitErrors(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.UpdateStorageUnit("missing", func(*domain.StorageUnit) error { return nil }); err == nil {
			t.Fatalf("expected missing unit error")
		}
		u, err := tx.CreateStorageUnit(domain.StorageUnit{Name: "Unit", Rows: 2, Cols: 2})
		if err != nil {
			return err
		}
		if _, err := tx.UpdateStorageUnit(u.ID, func(*domain.StorageUnit) error { return fmt.Errorf("boom") }); err == nil {
			t.Fatalf("expected mutator error")
		}
		if _, err := tx.UpdateStorageUnit(u.ID, func(unit *domain.StorageUnit) error {
			unit.Rows = 0
			return nil
		}); err == nil {
			t.Fatalf("expected dimension validation error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}
