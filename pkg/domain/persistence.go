package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateKPI(KPI) (KPI, error)
	UpdateKPI(id int64, mutator func(*KPI) error) (KPI, error)
	DeleteKPI(id int64) error
	CreateGranularity(Granularity) (Granularity, error)
	UpdateGranularity(id int64, mutator func(*Granularity) error) (Granularity, error)
	DeleteGranularity(id int64) error
	CreateValue(KPIValue) (KPIValue, error)
	UpdateValue(id int64, mutator func(*KPIValue) error) (KPIValue, error)
	DeleteValue(id int64) error
	CreateRelatedKPI(RelatedKPI) (RelatedKPI, error)
	DeleteRelatedKPI(id int64) error
	CreatePermission(PermissionRecord) (PermissionRecord, error)
	UpdatePermission(id int64, mutator func(*PermissionRecord) error) (PermissionRecord, error)
	DeletePermission(id int64) error
	FindKPI(id int64) (KPI, bool)
	FindGranularity(id int64) (Granularity, bool)
	FindValue(id int64) (KPIValue, bool)
	FindPermission(id int64) (PermissionRecord, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// filtered reads.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetKPI(id int64) (KPI, bool)
	ListKPIs() []KPI
	ListGranularities() []Granularity
	ListValues() []KPIValue
	ListRelatedKPIs() []RelatedKPI
	ListPermissions() []PermissionRecord
}
