package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"kpicore/pkg/domain"
)

func fixedClockStore() *Store {
	store := NewStore(domain.NewRulesEngine())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return base })
	return store
}

func mustCreateKPI(t *testing.T, store *Store, name, objectType string) KPI {
	t.Helper()
	var created KPI
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		k, err := tx.CreateKPI(KPI{Name: name, ObjectType: objectType, Label: name, ValType: domain.ValTypeInt, Branch: domain.BranchAll})
		if err != nil {
			return err
		}
		created = k
		return nil
	})
	if err != nil {
		t.Fatalf("create kpi: %v", err)
	}
	return created
}

func mustCreateGranularity(t *testing.T, store *Store, kpiID int64, name string) Granularity {
	t.Helper()
	var created Granularity
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		g, err := tx.CreateGranularity(Granularity{KPIID: kpiID, Name: name})
		if err != nil {
			return err
		}
		created = g
		return nil
	})
	if err != nil {
		t.Fatalf("create granularity: %v", err)
	}
	return created
}

func TestSequentialIDsAndTimestamps(t *testing.T) {
	store := fixedClockStore()

	first := mustCreateKPI(t, store, "availability", "cell")
	second := mustCreateKPI(t, store, "traffic", "cell")

	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected monotonic ids 1,2 got %d,%d", first.ID, second.ID)
	}
	if first.CreatedAt.IsZero() || !first.CreatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("expected creation timestamps to be set, got %v/%v", first.CreatedAt, first.UpdatedAt)
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := fixedClockStore()
	sentinel := errors.New("boom")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateKPI(KPI{Name: "dropped", ObjectType: "cell", Label: "dropped", ValType: domain.ValTypeInt, Branch: domain.BranchAll}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if got := len(store.ListKPIs()); got != 0 {
		t.Fatalf("expected rollback to discard kpi, found %d", got)
	}
}

func TestValueRequiresMatchingGranularity(t *testing.T) {
	store := fixedClockStore()
	kpiA := mustCreateKPI(t, store, "availability", "cell")
	kpiB := mustCreateKPI(t, store, "traffic", "cell")
	granB := mustCreateGranularity(t, store, kpiB.ID, "daily")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateValue(KPIValue{KPIID: kpiA.ID, ObjectID: 10, GranularityID: granB.ID, Value: "1", RecordTime: time.Now().UTC(), State: domain.StateCurrent})
		return err
	})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Code != domain.IntegrityCodeForeignKey {
		t.Fatalf("expected foreign key conflict, got %v", err)
	}
}

func TestDeleteKPICascades(t *testing.T) {
	store := fixedClockStore()
	parent := mustCreateKPI(t, store, "availability", "cell")
	child := mustCreateKPI(t, store, "availability", "site")
	gran := mustCreateGranularity(t, store, parent.ID, "daily")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateValue(KPIValue{KPIID: parent.ID, ObjectID: 5, GranularityID: gran.ID, Value: "7", RecordTime: time.Now().UTC(), State: domain.StateCurrent}); err != nil {
			return err
		}
		if _, err := tx.CreateRelatedKPI(RelatedKPI{KPIID: parent.ID, RelatedID: child.ID}); err != nil {
			return err
		}
		if _, err := tx.CreatePermission(PermissionRecord{KPIID: parent.ID, Token: "kpi.__editor", Name: "kpi.__editor", CanRead: true}); err != nil {
			return err
		}
		if _, err := tx.UpdateKPI(child.ID, func(k *KPI) error {
			id := parent.ID
			k.ParentID = &id
			return nil
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteKPI(parent.ID)
	}); err != nil {
		t.Fatalf("delete kpi: %v", err)
	}

	if len(store.ListGranularities()) != 0 || len(store.ListValues()) != 0 || len(store.ListRelatedKPIs()) != 0 || len(store.ListPermissions()) != 0 {
		t.Fatalf("expected cascade to clear dependents")
	}
	got, ok := store.GetKPI(child.ID)
	if !ok {
		t.Fatalf("child kpi should survive")
	}
	if got.ParentID != nil {
		t.Fatalf("expected child parent link cleared, got %v", *got.ParentID)
	}
}

func TestPermissionUniquenessPerKPIAndToken(t *testing.T) {
	store := fixedClockStore()
	kpi := mustCreateKPI(t, store, "availability", "cell")

	seed := func() error {
		_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, err := tx.CreatePermission(PermissionRecord{KPIID: kpi.ID, Token: "kpi.__editor", Name: "kpi.__editor", CanRead: true})
			return err
		})
		return err
	}
	if err := seed(); err != nil {
		t.Fatalf("first permission: %v", err)
	}
	err := seed()
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Code != domain.IntegrityCodeDuplicate {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
	if conflict.Message != domain.IntegrityMessageDuplicate {
		t.Fatalf("unexpected conflict message %q", conflict.Message)
	}
}

func TestExportImportRoundTripPreservesSequences(t *testing.T) {
	store := fixedClockStore()
	kpi := mustCreateKPI(t, store, "availability", "cell")
	mustCreateGranularity(t, store, kpi.ID, "daily")

	snapshot := store.ExportState()

	restored := fixedClockStore()
	restored.ImportState(snapshot)

	if len(restored.ListKPIs()) != 1 || len(restored.ListGranularities()) != 1 {
		t.Fatalf("expected snapshot to restore entities")
	}
	next := mustCreateKPI(t, restored, "traffic", "cell")
	if next.ID != kpi.ID+1 {
		t.Fatalf("expected id sequence to resume after %d, got %d", kpi.ID, next.ID)
	}
}

func TestMigrateSnapshotDropsOrphans(t *testing.T) {
	snapshot := Snapshot{
		KPIs: map[int64]KPI{
			1: {Base: domain.Base{ID: 1}, Name: "availability", ObjectType: "cell"},
		},
		Granularities: map[int64]Granularity{
			4: {Base: domain.Base{ID: 4}, KPIID: 1, Name: "daily"},
			5: {Base: domain.Base{ID: 5}, KPIID: 99, Name: "orphan"},
		},
		Values: map[int64]KPIValue{
			7: {Base: domain.Base{ID: 7}, KPIID: 1, GranularityID: 4, Value: "1"},
			8: {Base: domain.Base{ID: 8}, KPIID: 1, GranularityID: 5, Value: "2"},
		},
		Permissions: map[int64]PermissionRecord{
			2: {Base: domain.Base{ID: 2}, KPIID: 42, Token: "kpi.__editor"},
		},
	}

	migrated := migrateSnapshot(snapshot)

	if _, ok := migrated.Granularities[5]; ok {
		t.Fatalf("expected orphan granularity dropped")
	}
	if _, ok := migrated.Values[8]; ok {
		t.Fatalf("expected value referencing dropped granularity to be removed")
	}
	if len(migrated.Permissions) != 0 {
		t.Fatalf("expected orphan permission dropped")
	}
	if migrated.Sequences[bucketValues] < 7 {
		t.Fatalf("expected value sequence floor >= 7, got %d", migrated.Sequences[bucketValues])
	}
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateKPI(KPI{Name: "availability", ObjectType: "cell", Label: "availability", ValType: domain.ValTypeInt, Branch: domain.BranchAll})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if len(store.ListKPIs()) != 0 {
		t.Fatalf("blocked commit should leave no state")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "always-block" }

func (blockingRule) Evaluate(context.Context, domain.RuleView, []Change) (Result, error) {
	return Result{Violations: []domain.Violation{{Rule: "always-block", Severity: domain.SeverityBlock, Message: "rejected"}}}, nil
}
