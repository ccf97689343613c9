package domain

import "time"

// KPIInput carries the fields required to create a KPI definition. Value
// payloads elsewhere reference the definition by id.
type KPIInput struct {
	Name       string  `json:"name"`
	ObjectType string  `json:"object_type"`
	Label      string  `json:"label"`
	ValType    ValType `json:"val_type"`
	Branch     Branch  `json:"branch"`
	Multiple   bool    `json:"multiple"`
	Desc       *string `json:"desc,omitempty"`
	ParentID   *int64  `json:"parent_id,omitempty"`
	ChildID    *int64  `json:"child_id,omitempty"`
	RelatedIDs []int64 `json:"related_ids,omitempty"`
}

// KPIPatch carries a partial update for a KPI definition. Nil fields are left
// untouched. RelatedIDs, when non-nil, replaces the full related set.
// ParentID and ChildID, when non-nil, trigger the clear-then-set adjacency
// update on both sides of the link; ClearParent and ClearChild remove a link
// without setting a new one. Changing ValType requires Force, which
// re-validates every stored value against the new type and drops the ones
// that fail.
type KPIPatch struct {
	Name        *string  `json:"name,omitempty"`
	ObjectType  *string  `json:"object_type,omitempty"`
	Label       *string  `json:"label,omitempty"`
	ValType     *ValType `json:"val_type,omitempty"`
	Branch      *Branch  `json:"branch,omitempty"`
	Desc        *string  `json:"desc,omitempty"`
	ParentID    *int64   `json:"parent_id,omitempty"`
	ClearParent bool     `json:"clear_parent,omitempty"`
	ChildID     *int64   `json:"child_id,omitempty"`
	ClearChild  bool     `json:"clear_child,omitempty"`
	RelatedIDs  []int64  `json:"related_ids,omitempty"`
	Force       bool     `json:"force,omitempty"`
}

// GranularityInput carries the fields for a new reporting grain.
type GranularityInput struct {
	KPIID   int64  `json:"kpi_id"`
	Name    string `json:"name"`
	Seconds *int64 `json:"seconds,omitempty"`
}

// ValueDraft carries the raw payload for a new KPI value. Value holds the
// client form: a plain literal for scalar KPIs, a JSON array for
// multiple-valued ones.
type ValueDraft struct {
	KPIID         int64     `json:"kpi_id"`
	ObjectID      int64     `json:"object_id"`
	GranularityID int64     `json:"granularity_id"`
	Value         string    `json:"value"`
	RecordTime    time.Time `json:"record_time"`
}

// ValuePatch carries a partial update for a planned value.
type ValuePatch struct {
	Value      *string    `json:"value,omitempty"`
	RecordTime *time.Time `json:"record_time,omitempty"`
}

// ValueFilter selects stored values. Zero and nil fields are ignored.
type ValueFilter struct {
	KPIIDs         []int64    `json:"kpi_ids,omitempty"`
	ObjectIDs      []int64    `json:"object_ids,omitempty"`
	GranularityIDs []int64    `json:"granularity_ids,omitempty"`
	State          ValueState `json:"state,omitempty"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
}

// DecodedValue pairs a stored value with its typed decoding.
type DecodedValue struct {
	KPIValue
	Decoded any `json:"decoded"`
}

// ImportRecord is one data line of a tabular value import, still in string
// form. Line is 1-based over data rows and is carried into validation errors.
type ImportRecord struct {
	Line          int
	KPIID         string
	ObjectID      string
	GranularityID string
	Value         string
	RecordTime    string
	State         string
}

// ImportRow is a validated, typed import line ready to persist.
type ImportRow struct {
	KPIID         int64
	ObjectID      int64
	GranularityID int64
	Value         string
	RecordTime    time.Time
	State         ValueState
}

// AggregateFunc enumerates the supported aggregation functions.
type AggregateFunc string

// Supported aggregation functions.
const (
	AggregateAvg          AggregateFunc = "avg"
	AggregateMax          AggregateFunc = "max"
	AggregateMin          AggregateFunc = "min"
	AggregateMostFrequent AggregateFunc = "most_frequent"
)

// Valid reports whether the function is supported.
func (f AggregateFunc) Valid() bool {
	switch f {
	case AggregateAvg, AggregateMax, AggregateMin, AggregateMostFrequent:
		return true
	}
	return false
}

// AggregateRequest asks for one aggregate per object over a value window.
type AggregateRequest struct {
	KPIID         int64         `json:"kpi_id"`
	ObjectIDs     []int64       `json:"object_ids"`
	GranularityID int64         `json:"granularity_id"`
	From          *time.Time    `json:"from,omitempty"`
	To            *time.Time    `json:"to,omitempty"`
	Func          AggregateFunc `json:"func"`
}

// PermissionInput carries the fields for a manually created permission row.
type PermissionInput struct {
	KPIID     int64  `json:"kpi_id"`
	Token     string `json:"permission"`
	CanRead   bool   `json:"read"`
	CanCreate bool   `json:"create"`
	CanUpdate bool   `json:"update"`
	CanDelete bool   `json:"delete"`
	CanAdmin  bool   `json:"admin"`
}

// PermissionPatch carries a partial update of capability flags. A patch with
// no fields set is rejected.
type PermissionPatch struct {
	CanRead   *bool `json:"read,omitempty"`
	CanCreate *bool `json:"create,omitempty"`
	CanUpdate *bool `json:"update,omitempty"`
	CanDelete *bool `json:"delete,omitempty"`
	CanAdmin  *bool `json:"admin,omitempty"`
}

// Empty reports whether the patch carries no updates.
func (p PermissionPatch) Empty() bool {
	return p.CanRead == nil && p.CanCreate == nil && p.CanUpdate == nil &&
		p.CanDelete == nil && p.CanAdmin == nil
}

// PaletteEntry is the payload propagated to the palette service when a KPI is
// created.
type PaletteEntry struct {
	KPIID int64  `json:"kpi_id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}
