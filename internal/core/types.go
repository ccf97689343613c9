package core

import "kpicore/pkg/domain"

type (
	EntityType         = domain.EntityType
	ValType            = domain.ValType
	Branch             = domain.Branch
	ValueState         = domain.ValueState
	Severity           = domain.Severity
	Base               = domain.Base
	KPI                = domain.KPI
	Granularity        = domain.Granularity
	KPIValue           = domain.KPIValue
	RelatedKPI         = domain.RelatedKPI
	PermissionRecord   = domain.PermissionRecord
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	AccessAction       = domain.AccessAction
	AccessContext      = domain.AccessContext
	Claims             = domain.Claims
	KPIInput           = domain.KPIInput
	KPIPatch           = domain.KPIPatch
	GranularityInput   = domain.GranularityInput
	ValueDraft         = domain.ValueDraft
	ValuePatch         = domain.ValuePatch
	ValueFilter        = domain.ValueFilter
	DecodedValue       = domain.DecodedValue
	ImportRow          = domain.ImportRow
	AggregateRequest   = domain.AggregateRequest
	PermissionInput    = domain.PermissionInput
	PermissionPatch    = domain.PermissionPatch
	PaletteEntry       = domain.PaletteEntry
)

const (
	EntityKPI         = domain.EntityKPI
	EntityGranularity = domain.EntityGranularity
	EntityValue       = domain.EntityValue
	EntityRelatedKPI  = domain.EntityRelatedKPI
	EntityPermission  = domain.EntityPermission
)

const (
	StatePlanned    = domain.StatePlanned
	StateHistorical = domain.StateHistorical
	StateCurrent    = domain.StateCurrent
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine re-exports the domain constructor for package callers.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewCatalogUniquenessRule())
	engine.Register(NewRelatedLabelRule())
	engine.Register(NewParentLinkRule())
	engine.Register(NewSingleCurrentRule())
	return engine
}
