package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kpicore/pkg/domain"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpicore.db")

	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	var kpiID, granID int64
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		k, err := tx.CreateKPI(domain.KPI{Name: "availability", ObjectType: "cell", Label: "availability", ValType: domain.ValTypeFloat, Branch: domain.BranchAll})
		if err != nil {
			return err
		}
		kpiID = k.ID
		g, err := tx.CreateGranularity(domain.Granularity{KPIID: k.ID, Name: "daily"})
		if err != nil {
			return err
		}
		granID = g.ID
		_, err = tx.CreateValue(domain.KPIValue{KPIID: k.ID, ObjectID: 7, GranularityID: g.ID, Value: "99.5", RecordTime: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), State: domain.StateCurrent})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	kpi, ok := reopened.GetKPI(kpiID)
	if !ok {
		t.Fatalf("expected kpi %d after reopen", kpiID)
	}
	if kpi.ValType != domain.ValTypeFloat {
		t.Fatalf("unexpected val_type %q", kpi.ValType)
	}
	values := reopened.ListValues()
	if len(values) != 1 || values[0].GranularityID != granID {
		t.Fatalf("expected persisted value for granularity %d, got %+v", granID, values)
	}

	// ids issued after reload must continue the persisted sequence
	_, err = reopened.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		k, err := tx.CreateKPI(domain.KPI{Name: "traffic", ObjectType: "cell", Label: "traffic", ValType: domain.ValTypeInt, Branch: domain.BranchAll})
		if err != nil {
			return err
		}
		if k.ID <= kpiID {
			t.Fatalf("expected new id above %d, got %d", kpiID, k.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create after reopen: %v", err)
	}
}

func TestStoreDefaultsPathAndRollsBackFailedFn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "kpicore.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	wantErr := context.Canceled
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateKPI(domain.KPI{Name: "dropped", ObjectType: "cell", Label: "dropped", ValType: domain.ValTypeInt, Branch: domain.BranchAll}); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected fn error, got %v", err)
	}
	if got := len(store.ListKPIs()); got != 0 {
		t.Fatalf("expected no committed kpis, got %d", got)
	}
}
