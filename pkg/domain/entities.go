// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by kpicore.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityKPI identifies a KPI definition record.
	EntityKPI EntityType = "kpi"
	// EntityGranularity identifies a granularity record attached to a KPI.
	EntityGranularity EntityType = "granularity"
	// EntityValue identifies a time-stamped KPI value record.
	EntityValue EntityType = "value"
	// EntityRelatedKPI identifies a related-KPI edge record.
	EntityRelatedKPI EntityType = "related_kpi"
	// EntityPermission identifies a permission record guarding a KPI.
	EntityPermission EntityType = "permission"
)

// ValType enumerates the declared value types a KPI can carry.
type ValType string

// Declared KPI value types. The codec is closed over this set.
const (
	ValTypeInt      ValType = "int"
	ValTypeStr      ValType = "str"
	ValTypeFloat    ValType = "float"
	ValTypeBool     ValType = "bool"
	ValTypeDate     ValType = "date"
	ValTypeDatetime ValType = "datetime"
)

// Valid reports whether the value type is one of the declared set.
func (t ValType) Valid() bool {
	switch t {
	case ValTypeInt, ValTypeStr, ValTypeFloat, ValTypeBool, ValTypeDate, ValTypeDatetime:
		return true
	}
	return false
}

// Branch enumerates the operator branches a KPI can be scoped to.
type Branch string

// Operator branches recognised by the catalog.
const (
	BranchVodafone Branch = "vodafone"
	BranchOoredoo  Branch = "ooredoo"
	BranchAll      Branch = "all"
)

// Valid reports whether the branch is a recognised operator branch.
func (b Branch) Valid() bool {
	switch b {
	case BranchVodafone, BranchOoredoo, BranchAll:
		return true
	}
	return false
}

// ValueState represents the lifecycle state of a stored KPI value.
type ValueState string

// Canonical value states maintained by the state engine.
const (
	// StatePlanned marks a forecast value; planned rows never become current.
	StatePlanned ValueState = "planned"
	// StateHistorical marks a superseded measurement.
	StateHistorical ValueState = "historical"
	// StateCurrent marks the single live measurement per series.
	StateCurrent ValueState = "current"
)

// Valid reports whether the state is one of the canonical value states.
func (s ValueState) Valid() bool {
	switch s {
	case StatePlanned, StateHistorical, StateCurrent:
		return true
	}
	return false
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records. Identifiers are
// monotonically increasing per entity bucket; value-state tie-breaking
// depends on that ordering.
type Base struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KPI is a catalog definition of a measurable indicator. Parent and child
// links are reciprocal: when A's parent is B, B's child is A. Each KPI holds
// at most one parent and one child, and a link always joins two different
// object types.
type KPI struct {
	Base
	Name       string  `json:"name"`
	ObjectType string  `json:"object_type"`
	Label      string  `json:"label"`
	ValType    ValType `json:"val_type"`
	Branch     Branch  `json:"branch"`
	Multiple   bool    `json:"multiple"`
	Desc       *string `json:"desc,omitempty"`
	ParentID   *int64  `json:"parent_id"`
	ChildID    *int64  `json:"child_id"`
}

// Granularity names a reporting grain attached to a KPI. Seconds optionally
// carries the grain's interval length.
type Granularity struct {
	Base
	KPIID   int64  `json:"kpi_id"`
	Name    string `json:"name"`
	Seconds *int64 `json:"seconds,omitempty"`
}

// RelatedKPI is a directed edge between a KPI and another definition that
// shares its label under a different object type.
type RelatedKPI struct {
	Base
	KPIID     int64 `json:"kpi_id"`
	RelatedID int64 `json:"related_id"`
}

// KPIValue is a time-stamped measurement for a (kpi, object, granularity)
// series. Value holds the canonical encoded form produced by the codec.
type KPIValue struct {
	Base
	KPIID         int64      `json:"kpi_id"`
	ObjectID      int64      `json:"object_id"`
	GranularityID int64      `json:"granularity_id"`
	Value         string     `json:"value"`
	RecordTime    time.Time  `json:"record_time"`
	State         ValueState `json:"state"`
}

// Key returns the series grouping key for state tracking.
func (v KPIValue) Key() ValueKey {
	return ValueKey{KPIID: v.KPIID, ObjectID: v.ObjectID, GranularityID: v.GranularityID}
}

// ValueKey identifies a (kpi, object, granularity) series.
type ValueKey struct {
	KPIID         int64 `json:"kpi_id"`
	ObjectID      int64 `json:"object_id"`
	GranularityID int64 `json:"granularity_id"`
}

// PermissionRecord grants a token a set of capabilities on a KPI. Rows that
// reference another row through RootID are derived from it and can only be
// changed by editing the root; rows without a root reference are managed
// directly.
type PermissionRecord struct {
	Base
	KPIID     int64  `json:"kpi_id"`
	Token     string `json:"permission"`
	Name      string `json:"permission_name"`
	RootID    *int64 `json:"root_permission_id"`
	CanRead   bool   `json:"read"`
	CanCreate bool   `json:"create"`
	CanUpdate bool   `json:"update"`
	CanDelete bool   `json:"delete"`
	CanAdmin  bool   `json:"admin"`
}

// Allows reports whether the record grants the supplied action.
func (p PermissionRecord) Allows(action AccessAction) bool {
	switch action {
	case AccessRead:
		return p.CanRead
	case AccessCreate:
		return p.CanCreate
	case AccessUpdate:
		return p.CanUpdate
	case AccessDelete:
		return p.CanDelete
	case AccessAdmin:
		return p.CanAdmin
	}
	return false
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID int64
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
