package core

import (
	"context"
	"sort"

	"kpicore/pkg/codec"
	"kpicore/pkg/domain"
)

// Batch sizing for bulk writes and state reconciliation.
const (
	// maxUpdatePerStep caps the number of row mutations applied per
	// transaction during bulk operations.
	maxUpdatePerStep = 7500
	// paramChunkLimit caps the number of ids carried by a single filter,
	// matching database parameter limits.
	paramChunkLimit = 32000
)

type stateChange struct {
	id    int64
	state ValueState
}

// desiredStates ranks every non-planned series row and returns the mutations
// needed so that exactly the latest row (ties broken by highest id) is
// current. Planned rows are never touched.
func desiredStates(view TransactionView, kpiSet map[int64]bool) []stateChange {
	series := make(map[domain.ValueKey][]KPIValue)
	for _, value := range view.ListValues() {
		if kpiSet != nil && !kpiSet[value.KPIID] {
			continue
		}
		if value.State == StatePlanned {
			continue
		}
		key := value.Key()
		series[key] = append(series[key], value)
	}

	var changes []stateChange
	for _, rows := range series {
		winner, ok := promotionCandidate(rows)
		if !ok {
			continue
		}
		for _, row := range rows {
			want := StateHistorical
			if row.ID == winner.ID {
				want = StateCurrent
			}
			if row.State != want {
				changes = append(changes, stateChange{id: row.ID, state: want})
			}
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].id < changes[j].id })
	return changes
}

func chunkIDs(ids []int64, size int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// ReconcileStates repairs the state flags of every series belonging to the
// given KPIs (all KPIs when the list is empty). Mutations are applied in
// steps of maxUpdatePerStep rows per transaction; re-running the operation on
// an already consistent store changes nothing. It returns the number of rows
// updated.
func (s *Service) ReconcileStates(ctx context.Context, access *AccessContext, kpiIDs []int64) (int, error) {
	changed := 0
	err := s.run(ctx, access, "reconcile_states", func(ctx context.Context) error {
		var kpiSet map[int64]bool
		if len(kpiIDs) > 0 {
			kpiSet = make(map[int64]bool, len(kpiIDs))
			for _, chunk := range chunkIDs(kpiIDs, paramChunkLimit) {
				for _, id := range chunk {
					kpiSet[id] = true
				}
			}
		}

		var changes []stateChange
		if err := s.store.View(ctx, func(view TransactionView) error {
			changes = desiredStates(view, kpiSet)
			return nil
		}); err != nil {
			return err
		}

		for start := 0; start < len(changes); start += maxUpdatePerStep {
			end := start + maxUpdatePerStep
			if end > len(changes) {
				end = len(changes)
			}
			step := changes[start:end]
			if _, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
				for _, change := range step {
					if _, err := tx.UpdateValue(change.id, func(v *KPIValue) error {
						v.State = change.state
						return nil
					}); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				return err
			}
			changed += len(step)
		}
		return nil
	})
	if err != nil {
		return changed, err
	}
	return changed, nil
}

// ReloadStates recomputes the state flags of every series in the store.
func (s *Service) ReloadStates(ctx context.Context, access *AccessContext) (int, error) {
	return s.ReconcileStates(ctx, access, nil)
}

// SaveImportedValues persists validated import rows in bulk, then reconciles
// the state flags of the touched KPIs. Rows arrive with state historical or
// planned; the reconcile pass decides which historical row ends up current.
// It returns the number of rows inserted.
func (s *Service) SaveImportedValues(ctx context.Context, access *AccessContext, rows []ImportRow) (int, error) {
	inserted := 0
	err := s.run(ctx, access, "save_imported_values", func(ctx context.Context) error {
		touched := make(map[int64]bool)
		for start := 0; start < len(rows); start += maxUpdatePerStep {
			end := start + maxUpdatePerStep
			if end > len(rows) {
				end = len(rows)
			}
			step := rows[start:end]
			if _, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
				for _, row := range step {
					if row.State != StateHistorical && row.State != StatePlanned {
						return domain.ValidationError{Field: "state", Message: "imported state must be historical or planned"}
					}
					if err := requireAction(tx.Snapshot(), access, row.KPIID, domain.AccessCreate); err != nil {
						return err
					}
					kpi, ok := tx.FindKPI(row.KPIID)
					if !ok {
						return domain.NotFoundError{Entity: EntityKPI, ID: row.KPIID}
					}
					encoded, err := codec.Encode(kpi.ValType, kpi.Multiple, row.Value)
					if err != nil {
						return err
					}
					if _, err := tx.CreateValue(KPIValue{
						KPIID:         row.KPIID,
						ObjectID:      row.ObjectID,
						GranularityID: row.GranularityID,
						Value:         encoded,
						RecordTime:    row.RecordTime.UTC(),
						State:         row.State,
					}); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				return err
			}
			inserted += len(step)
			for _, row := range step {
				touched[row.KPIID] = true
			}
		}

		if len(touched) == 0 {
			return nil
		}
		kpiIDs := make([]int64, 0, len(touched))
		for id := range touched {
			kpiIDs = append(kpiIDs, id)
		}
		sort.Slice(kpiIDs, func(i, j int) bool { return kpiIDs[i] < kpiIDs[j] })
		_, err := s.ReconcileStates(ctx, access, kpiIDs)
		return err
	})
	return inserted, err
}
