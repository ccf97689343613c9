// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"sync"
	"time"

	"kpicore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// KPI aliases domain.KPI for in-memory persistence operations.
	KPI = domain.KPI
	// Granularity aliases domain.Granularity.
	Granularity = domain.Granularity
	// KPIValue aliases domain.KPIValue.
	KPIValue = domain.KPIValue
	// RelatedKPI aliases domain.RelatedKPI.
	RelatedKPI = domain.RelatedKPI
	// PermissionRecord aliases domain.PermissionRecord.
	PermissionRecord = domain.PermissionRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

// Bucket names used for id sequences and snapshot persistence.
const (
	bucketKPIs          = "kpis"
	bucketGranularities = "granularities"
	bucketValues        = "values"
	bucketRelated       = "related"
	bucketPermissions   = "permissions"
)

type memoryState struct {
	kpis          map[int64]KPI
	granularities map[int64]Granularity
	values        map[int64]KPIValue
	related       map[int64]RelatedKPI
	permissions   map[int64]PermissionRecord
	sequences     map[string]int64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	KPIs          map[int64]KPI              `json:"kpis"`
	Granularities map[int64]Granularity      `json:"granularities"`
	Values        map[int64]KPIValue         `json:"values"`
	Related       map[int64]RelatedKPI       `json:"related"`
	Permissions   map[int64]PermissionRecord `json:"permissions"`
	Sequences     map[string]int64           `json:"sequences"`
}

func newMemoryState() memoryState {
	return memoryState{
		kpis:          make(map[int64]KPI),
		granularities: make(map[int64]Granularity),
		values:        make(map[int64]KPIValue),
		related:       make(map[int64]RelatedKPI),
		permissions:   make(map[int64]PermissionRecord),
		sequences:     make(map[string]int64),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		KPIs:          make(map[int64]KPI, len(state.kpis)),
		Granularities: make(map[int64]Granularity, len(state.granularities)),
		Values:        make(map[int64]KPIValue, len(state.values)),
		Related:       make(map[int64]RelatedKPI, len(state.related)),
		Permissions:   make(map[int64]PermissionRecord, len(state.permissions)),
		Sequences:     make(map[string]int64, len(state.sequences)),
	}
	for k, v := range state.kpis {
		s.KPIs[k] = cloneKPI(v)
	}
	for k, v := range state.granularities {
		s.Granularities[k] = cloneGranularity(v)
	}
	for k, v := range state.values {
		s.Values[k] = v
	}
	for k, v := range state.related {
		s.Related[k] = v
	}
	for k, v := range state.permissions {
		s.Permissions[k] = clonePermission(v)
	}
	for k, v := range state.sequences {
		s.Sequences[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.KPIs {
		state.kpis[k] = cloneKPI(v)
	}
	for k, v := range s.Granularities {
		state.granularities[k] = cloneGranularity(v)
	}
	for k, v := range s.Values {
		state.values[k] = v
	}
	for k, v := range s.Related {
		state.related[k] = v
	}
	for k, v := range s.Permissions {
		state.permissions[k] = clonePermission(v)
	}
	for k, v := range s.Sequences {
		state.sequences[k] = v
	}
	return state
}

// migrateSnapshot repairs snapshots written by earlier builds: it drops rows
// whose parents no longer exist and raises sequence floors so freshly issued
// ids never collide with restored rows.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.KPIs == nil {
		snapshot.KPIs = map[int64]KPI{}
	}
	if snapshot.Granularities == nil {
		snapshot.Granularities = map[int64]Granularity{}
	}
	if snapshot.Values == nil {
		snapshot.Values = map[int64]KPIValue{}
	}
	if snapshot.Related == nil {
		snapshot.Related = map[int64]RelatedKPI{}
	}
	if snapshot.Permissions == nil {
		snapshot.Permissions = map[int64]PermissionRecord{}
	}
	if snapshot.Sequences == nil {
		snapshot.Sequences = map[string]int64{}
	}

	kpiExists := func(id int64) bool {
		_, ok := snapshot.KPIs[id]
		return ok
	}

	for id, k := range snapshot.KPIs {
		changed := false
		if k.ParentID != nil && !kpiExists(*k.ParentID) {
			k.ParentID = nil
			changed = true
		}
		if k.ChildID != nil && !kpiExists(*k.ChildID) {
			k.ChildID = nil
			changed = true
		}
		if changed {
			snapshot.KPIs[id] = k
		}
	}
	for id, g := range snapshot.Granularities {
		if !kpiExists(g.KPIID) {
			delete(snapshot.Granularities, id)
		}
	}
	for id, v := range snapshot.Values {
		if !kpiExists(v.KPIID) {
			delete(snapshot.Values, id)
			continue
		}
		if _, ok := snapshot.Granularities[v.GranularityID]; !ok {
			delete(snapshot.Values, id)
		}
	}
	for id, r := range snapshot.Related {
		if !kpiExists(r.KPIID) || !kpiExists(r.RelatedID) {
			delete(snapshot.Related, id)
		}
	}
	for id, p := range snapshot.Permissions {
		if !kpiExists(p.KPIID) {
			delete(snapshot.Permissions, id)
		}
	}

	floor := func(bucket string, id int64) {
		if snapshot.Sequences[bucket] < id {
			snapshot.Sequences[bucket] = id
		}
	}
	for id := range snapshot.KPIs {
		floor(bucketKPIs, id)
	}
	for id := range snapshot.Granularities {
		floor(bucketGranularities, id)
	}
	for id := range snapshot.Values {
		floor(bucketValues, id)
	}
	for id := range snapshot.Related {
		floor(bucketRelated, id)
	}
	for id := range snapshot.Permissions {
		floor(bucketPermissions, id)
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.kpis {
		cloned.kpis[k] = cloneKPI(v)
	}
	for k, v := range s.granularities {
		cloned.granularities[k] = cloneGranularity(v)
	}
	for k, v := range s.values {
		cloned.values[k] = v
	}
	for k, v := range s.related {
		cloned.related[k] = v
	}
	for k, v := range s.permissions {
		cloned.permissions[k] = clonePermission(v)
	}
	for k, v := range s.sequences {
		cloned.sequences[k] = v
	}
	return cloned
}

func cloneKPI(k KPI) KPI {
	cp := k
	if k.Desc != nil {
		d := *k.Desc
		cp.Desc = &d
	}
	if k.ParentID != nil {
		p := *k.ParentID
		cp.ParentID = &p
	}
	if k.ChildID != nil {
		c := *k.ChildID
		cp.ChildID = &c
	}
	return cp
}

func cloneGranularity(g Granularity) Granularity {
	cp := g
	if g.Seconds != nil {
		s := *g.Seconds
		cp.Seconds = &s
	}
	return cp
}

func clonePermission(p PermissionRecord) PermissionRecord {
	cp := p
	if p.RootID != nil {
		r := *p.RootID
		cp.RootID = &r
	}
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider, primarily for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to
// rules and filtered reads.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListKPIs returns all KPI definitions within the snapshot.
func (v transactionView) ListKPIs() []KPI {
	out := make([]KPI, 0, len(v.state.kpis))
	for _, k := range v.state.kpis {
		out = append(out, cloneKPI(k))
	}
	return out
}

// ListGranularities returns all granularities within the snapshot.
func (v transactionView) ListGranularities() []Granularity {
	out := make([]Granularity, 0, len(v.state.granularities))
	for _, g := range v.state.granularities {
		out = append(out, g)
	}
	return out
}

// ListValues returns all stored values within the snapshot.
func (v transactionView) ListValues() []KPIValue {
	out := make([]KPIValue, 0, len(v.state.values))
	for _, val := range v.state.values {
		out = append(out, val)
	}
	return out
}

// ListRelatedKPIs returns all related-KPI edges within the snapshot.
func (v transactionView) ListRelatedKPIs() []RelatedKPI {
	out := make([]RelatedKPI, 0, len(v.state.related))
	for _, r := range v.state.related {
		out = append(out, r)
	}
	return out
}

// ListPermissions returns all permission records within the snapshot.
func (v transactionView) ListPermissions() []PermissionRecord {
	out := make([]PermissionRecord, 0, len(v.state.permissions))
	for _, p := range v.state.permissions {
		out = append(out, clonePermission(p))
	}
	return out
}

// FindKPI retrieves a KPI by id from the snapshot.
func (v transactionView) FindKPI(id int64) (KPI, bool) {
	k, ok := v.state.kpis[id]
	if !ok {
		return KPI{}, false
	}
	return cloneKPI(k), true
}

// FindGranularity retrieves a granularity by id from the snapshot.
func (v transactionView) FindGranularity(id int64) (Granularity, bool) {
	g, ok := v.state.granularities[id]
	return g, ok
}

// FindValue retrieves a stored value by id from the snapshot.
func (v transactionView) FindValue(id int64) (KPIValue, bool) {
	val, ok := v.state.values[id]
	return val, ok
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) nextID(bucket string) int64 {
	tx.state.sequences[bucket]++
	return tx.state.sequences[bucket]
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindKPI exposes KPI lookup within the transaction scope.
func (tx *transaction) FindKPI(id int64) (KPI, bool) {
	k, ok := tx.state.kpis[id]
	if !ok {
		return KPI{}, false
	}
	return cloneKPI(k), true
}

// FindGranularity exposes granularity lookup within the transaction scope.
func (tx *transaction) FindGranularity(id int64) (Granularity, bool) {
	g, ok := tx.state.granularities[id]
	return g, ok
}

// FindValue exposes value lookup within the transaction scope.
func (tx *transaction) FindValue(id int64) (KPIValue, bool) {
	v, ok := tx.state.values[id]
	return v, ok
}

// FindPermission exposes permission lookup within the transaction scope.
func (tx *transaction) FindPermission(id int64) (PermissionRecord, bool) {
	p, ok := tx.state.permissions[id]
	if !ok {
		return PermissionRecord{}, false
	}
	return clonePermission(p), true
}

// CreateKPI stores a new KPI definition within the transaction.
func (tx *transaction) CreateKPI(k KPI) (KPI, error) {
	if k.ID == 0 {
		k.ID = tx.nextID(bucketKPIs)
	}
	if _, exists := tx.state.kpis[k.ID]; exists {
		return KPI{}, domain.NewDuplicateConflict()
	}
	if k.ParentID != nil {
		if _, ok := tx.state.kpis[*k.ParentID]; !ok {
			return KPI{}, domain.NewForeignKeyConflict()
		}
	}
	k.CreatedAt = tx.now
	k.UpdatedAt = tx.now
	tx.state.kpis[k.ID] = cloneKPI(k)
	tx.recordChange(Change{Entity: domain.EntityKPI, Action: domain.ActionCreate, After: cloneKPI(k)})
	return cloneKPI(k), nil
}

// UpdateKPI mutates a KPI using the provided mutator function.
func (tx *transaction) UpdateKPI(id int64, mutator func(*KPI) error) (KPI, error) {
	current, ok := tx.state.kpis[id]
	if !ok {
		return KPI{}, domain.NotFoundError{Entity: domain.EntityKPI, ID: id}
	}
	before := cloneKPI(current)
	if err := mutator(&current); err != nil {
		return KPI{}, err
	}
	if current.ParentID != nil {
		if _, ok := tx.state.kpis[*current.ParentID]; !ok {
			return KPI{}, domain.NewForeignKeyConflict()
		}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.kpis[id] = cloneKPI(current)
	tx.recordChange(Change{Entity: domain.EntityKPI, Action: domain.ActionUpdate, Before: before, After: cloneKPI(current)})
	return cloneKPI(current), nil
}

// DeleteKPI removes a KPI and cascades its granularities, values, related
// edges, and permission records. Parent links on surviving children reset.
func (tx *transaction) DeleteKPI(id int64) error {
	current, ok := tx.state.kpis[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityKPI, ID: id}
	}
	for gid, g := range tx.state.granularities {
		if g.KPIID == id {
			delete(tx.state.granularities, gid)
		}
	}
	for vid, v := range tx.state.values {
		if v.KPIID == id {
			delete(tx.state.values, vid)
		}
	}
	for rid, r := range tx.state.related {
		if r.KPIID == id || r.RelatedID == id {
			delete(tx.state.related, rid)
		}
	}
	for pid, p := range tx.state.permissions {
		if p.KPIID == id {
			delete(tx.state.permissions, pid)
		}
	}
	for cid, other := range tx.state.kpis {
		changed := false
		if other.ParentID != nil && *other.ParentID == id {
			other.ParentID = nil
			changed = true
		}
		if other.ChildID != nil && *other.ChildID == id {
			other.ChildID = nil
			changed = true
		}
		if changed {
			tx.state.kpis[cid] = other
		}
	}
	delete(tx.state.kpis, id)
	tx.recordChange(Change{Entity: domain.EntityKPI, Action: domain.ActionDelete, Before: cloneKPI(current)})
	return nil
}

// CreateGranularity stores a new granularity for an existing KPI.
func (tx *transaction) CreateGranularity(g Granularity) (Granularity, error) {
	if g.ID == 0 {
		g.ID = tx.nextID(bucketGranularities)
	}
	if _, exists := tx.state.granularities[g.ID]; exists {
		return Granularity{}, domain.NewDuplicateConflict()
	}
	if _, ok := tx.state.kpis[g.KPIID]; !ok {
		return Granularity{}, domain.NewForeignKeyConflict()
	}
	g.CreatedAt = tx.now
	g.UpdatedAt = tx.now
	tx.state.granularities[g.ID] = g
	tx.recordChange(Change{Entity: domain.EntityGranularity, Action: domain.ActionCreate, After: g})
	return g, nil
}

// UpdateGranularity mutates an existing granularity.
func (tx *transaction) UpdateGranularity(id int64, mutator func(*Granularity) error) (Granularity, error) {
	current, ok := tx.state.granularities[id]
	if !ok {
		return Granularity{}, domain.NotFoundError{Entity: domain.EntityGranularity, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Granularity{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.granularities[id] = current
	tx.recordChange(Change{Entity: domain.EntityGranularity, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteGranularity removes a granularity and cascades its stored values.
func (tx *transaction) DeleteGranularity(id int64) error {
	current, ok := tx.state.granularities[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityGranularity, ID: id}
	}
	for vid, v := range tx.state.values {
		if v.GranularityID == id {
			delete(tx.state.values, vid)
		}
	}
	delete(tx.state.granularities, id)
	tx.recordChange(Change{Entity: domain.EntityGranularity, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateValue stores a new KPI value row. The granularity must belong to the
// same KPI the row references.
func (tx *transaction) CreateValue(v KPIValue) (KPIValue, error) {
	if v.ID == 0 {
		v.ID = tx.nextID(bucketValues)
	}
	if _, exists := tx.state.values[v.ID]; exists {
		return KPIValue{}, domain.NewDuplicateConflict()
	}
	if _, ok := tx.state.kpis[v.KPIID]; !ok {
		return KPIValue{}, domain.NewForeignKeyConflict()
	}
	g, ok := tx.state.granularities[v.GranularityID]
	if !ok || g.KPIID != v.KPIID {
		return KPIValue{}, domain.NewForeignKeyConflict()
	}
	v.CreatedAt = tx.now
	v.UpdatedAt = tx.now
	tx.state.values[v.ID] = v
	tx.recordChange(Change{Entity: domain.EntityValue, Action: domain.ActionCreate, After: v})
	return v, nil
}

// UpdateValue mutates a stored value row.
func (tx *transaction) UpdateValue(id int64, mutator func(*KPIValue) error) (KPIValue, error) {
	current, ok := tx.state.values[id]
	if !ok {
		return KPIValue{}, domain.NotFoundError{Entity: domain.EntityValue, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return KPIValue{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.values[id] = current
	tx.recordChange(Change{Entity: domain.EntityValue, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteValue removes a value row.
func (tx *transaction) DeleteValue(id int64) error {
	current, ok := tx.state.values[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityValue, ID: id}
	}
	delete(tx.state.values, id)
	tx.recordChange(Change{Entity: domain.EntityValue, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateRelatedKPI stores a related-KPI edge.
func (tx *transaction) CreateRelatedKPI(r RelatedKPI) (RelatedKPI, error) {
	if r.ID == 0 {
		r.ID = tx.nextID(bucketRelated)
	}
	if _, exists := tx.state.related[r.ID]; exists {
		return RelatedKPI{}, domain.NewDuplicateConflict()
	}
	if _, ok := tx.state.kpis[r.KPIID]; !ok {
		return RelatedKPI{}, domain.NewForeignKeyConflict()
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.related[r.ID] = r
	tx.recordChange(Change{Entity: domain.EntityRelatedKPI, Action: domain.ActionCreate, After: r})
	return r, nil
}

// DeleteRelatedKPI removes a related-KPI edge.
func (tx *transaction) DeleteRelatedKPI(id int64) error {
	current, ok := tx.state.related[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityRelatedKPI, ID: id}
	}
	delete(tx.state.related, id)
	tx.recordChange(Change{Entity: domain.EntityRelatedKPI, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreatePermission stores a permission record, enforcing the (kpi, token)
// uniqueness the relational schema expresses as a composite key.
func (tx *transaction) CreatePermission(p PermissionRecord) (PermissionRecord, error) {
	if p.ID == 0 {
		p.ID = tx.nextID(bucketPermissions)
	}
	if _, exists := tx.state.permissions[p.ID]; exists {
		return PermissionRecord{}, domain.NewDuplicateConflict()
	}
	if _, ok := tx.state.kpis[p.KPIID]; !ok {
		return PermissionRecord{}, domain.NewForeignKeyConflict()
	}
	for _, existing := range tx.state.permissions {
		if existing.KPIID == p.KPIID && existing.Token == p.Token {
			return PermissionRecord{}, domain.NewDuplicateConflict()
		}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.permissions[p.ID] = clonePermission(p)
	tx.recordChange(Change{Entity: domain.EntityPermission, Action: domain.ActionCreate, After: clonePermission(p)})
	return clonePermission(p), nil
}

// UpdatePermission mutates a permission record.
func (tx *transaction) UpdatePermission(id int64, mutator func(*PermissionRecord) error) (PermissionRecord, error) {
	current, ok := tx.state.permissions[id]
	if !ok {
		return PermissionRecord{}, domain.NotFoundError{Entity: domain.EntityPermission, ID: id}
	}
	before := clonePermission(current)
	if err := mutator(&current); err != nil {
		return PermissionRecord{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.permissions[id] = clonePermission(current)
	tx.recordChange(Change{Entity: domain.EntityPermission, Action: domain.ActionUpdate, Before: before, After: clonePermission(current)})
	return clonePermission(current), nil
}

// DeletePermission removes a permission record.
func (tx *transaction) DeletePermission(id int64) error {
	current, ok := tx.state.permissions[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityPermission, ID: id}
	}
	delete(tx.state.permissions, id)
	tx.recordChange(Change{Entity: domain.EntityPermission, Action: domain.ActionDelete, Before: clonePermission(current)})
	return nil
}

// GetKPI retrieves a KPI by id from committed state.
func (s *Store) GetKPI(id int64) (KPI, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.state.kpis[id]
	if !ok {
		return KPI{}, false
	}
	return cloneKPI(k), true
}

// ListKPIs returns all KPI definitions from committed state.
func (s *Store) ListKPIs() []KPI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]KPI, 0, len(s.state.kpis))
	for _, k := range s.state.kpis {
		out = append(out, cloneKPI(k))
	}
	return out
}

// ListGranularities returns all granularities from committed state.
func (s *Store) ListGranularities() []Granularity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Granularity, 0, len(s.state.granularities))
	for _, g := range s.state.granularities {
		out = append(out, g)
	}
	return out
}

// ListValues returns all stored values from committed state.
func (s *Store) ListValues() []KPIValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]KPIValue, 0, len(s.state.values))
	for _, v := range s.state.values {
		out = append(out, v)
	}
	return out
}

// ListRelatedKPIs returns all related-KPI edges from committed state.
func (s *Store) ListRelatedKPIs() []RelatedKPI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RelatedKPI, 0, len(s.state.related))
	for _, r := range s.state.related {
		out = append(out, r)
	}
	return out
}

// ListPermissions returns all permission records from committed state.
func (s *Store) ListPermissions() []PermissionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PermissionRecord, 0, len(s.state.permissions))
	for _, p := range s.state.permissions {
		out = append(out, clonePermission(p))
	}
	return out
}
