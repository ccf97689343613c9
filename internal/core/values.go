package core

import (
	"context"
	"sort"

	"kpicore/pkg/codec"
	"kpicore/pkg/domain"
)

func sortValues(values []KPIValue) {
	sort.Slice(values, func(i, j int) bool {
		if !values[i].RecordTime.Equal(values[j].RecordTime) {
			return values[i].RecordTime.Before(values[j].RecordTime)
		}
		return values[i].ID < values[j].ID
	})
}

// seriesValues returns every non-planned row of the series a draft belongs to.
func seriesValues(view TransactionView, key domain.ValueKey) []KPIValue {
	var out []KPIValue
	for _, value := range view.ListValues() {
		if value.Key() == key && value.State != StatePlanned {
			out = append(out, value)
		}
	}
	return out
}

// promotionCandidate picks the row that becomes current when a series loses
// its current value: the latest record time, ties broken by the highest id.
// Planned rows never qualify.
func promotionCandidate(values []KPIValue) (KPIValue, bool) {
	var best KPIValue
	found := false
	for _, value := range values {
		if value.State == StatePlanned {
			continue
		}
		if !found {
			best = value
			found = true
			continue
		}
		if value.RecordTime.After(best.RecordTime) ||
			(value.RecordTime.Equal(best.RecordTime) && value.ID > best.ID) {
			best = value
		}
	}
	return best, found
}

func validateDraft(tx Transaction, draft ValueDraft) (KPI, error) {
	kpi, ok := tx.FindKPI(draft.KPIID)
	if !ok {
		return KPI{}, domain.NotFoundError{Entity: EntityKPI, ID: draft.KPIID}
	}
	gran, ok := tx.FindGranularity(draft.GranularityID)
	if !ok || gran.KPIID != kpi.ID {
		return KPI{}, domain.NotFoundError{Entity: EntityGranularity, ID: draft.GranularityID}
	}
	if draft.RecordTime.IsZero() {
		return KPI{}, domain.ValidationError{Field: "record_time", Message: "record_time is required"}
	}
	return kpi, nil
}

// CreateValue records a new measurement. The row becomes the current value of
// its series; the previous current row, if any, is demoted to historical.
func (s *Service) CreateValue(ctx context.Context, access *AccessContext, draft ValueDraft) (KPIValue, Result, error) {
	var created KPIValue
	var res Result
	err := s.run(ctx, access, "create_value", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := requireAction(tx.Snapshot(), access, draft.KPIID, domain.AccessCreate); err != nil {
				return err
			}
			kpi, err := validateDraft(tx, draft)
			if err != nil {
				return err
			}
			encoded, err := codec.Encode(kpi.ValType, kpi.Multiple, draft.Value)
			if err != nil {
				return err
			}
			key := domain.ValueKey{KPIID: draft.KPIID, ObjectID: draft.ObjectID, GranularityID: draft.GranularityID}
			for _, existing := range seriesValues(tx.Snapshot(), key) {
				if existing.State != StateCurrent {
					continue
				}
				if _, err := tx.UpdateValue(existing.ID, func(v *KPIValue) error {
					v.State = StateHistorical
					return nil
				}); err != nil {
					return err
				}
			}
			created, err = tx.CreateValue(KPIValue{
				KPIID:         draft.KPIID,
				ObjectID:      draft.ObjectID,
				GranularityID: draft.GranularityID,
				Value:         encoded,
				RecordTime:    draft.RecordTime.UTC(),
				State:         StateCurrent,
			})
			return err
		})
		return err
	})
	if err != nil {
		return KPIValue{}, res, err
	}
	return created, res, nil
}

// CreatePlannedValue records a forward-looking measurement. Planned rows sit
// outside the current/historical progression and are never promoted.
func (s *Service) CreatePlannedValue(ctx context.Context, access *AccessContext, draft ValueDraft) (KPIValue, Result, error) {
	var created KPIValue
	var res Result
	err := s.run(ctx, access, "create_planned_value", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := requireAction(tx.Snapshot(), access, draft.KPIID, domain.AccessCreate); err != nil {
				return err
			}
			kpi, err := validateDraft(tx, draft)
			if err != nil {
				return err
			}
			encoded, err := codec.Encode(kpi.ValType, kpi.Multiple, draft.Value)
			if err != nil {
				return err
			}
			created, err = tx.CreateValue(KPIValue{
				KPIID:         draft.KPIID,
				ObjectID:      draft.ObjectID,
				GranularityID: draft.GranularityID,
				Value:         encoded,
				RecordTime:    draft.RecordTime.UTC(),
				State:         StatePlanned,
			})
			return err
		})
		return err
	})
	if err != nil {
		return KPIValue{}, res, err
	}
	return created, res, nil
}

// UpdatePlannedValue edits a planned row. Historical and current rows are
// immutable through this path.
func (s *Service) UpdatePlannedValue(ctx context.Context, access *AccessContext, id int64, patch ValuePatch) (KPIValue, Result, error) {
	var updated KPIValue
	var res Result
	err := s.run(ctx, access, "update_planned_value", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			existing, ok := tx.FindValue(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityValue, ID: id}
			}
			if err := requireAction(tx.Snapshot(), access, existing.KPIID, domain.AccessUpdate); err != nil {
				return err
			}
			if existing.State != StatePlanned {
				return domain.ValidationError{Field: "state", Message: "only planned values can be edited"}
			}
			kpi, ok := tx.FindKPI(existing.KPIID)
			if !ok {
				return domain.NotFoundError{Entity: EntityKPI, ID: existing.KPIID}
			}
			var encoded string
			if patch.Value != nil {
				var err error
				encoded, err = codec.Encode(kpi.ValType, kpi.Multiple, *patch.Value)
				if err != nil {
					return err
				}
			}
			var err error
			updated, err = tx.UpdateValue(id, func(v *KPIValue) error {
				if patch.Value != nil {
					v.Value = encoded
				}
				if patch.RecordTime != nil {
					v.RecordTime = patch.RecordTime.UTC()
				}
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return KPIValue{}, res, err
	}
	return updated, res, nil
}

// DeleteValue removes a row. Deleting the current row promotes the remaining
// non-planned row with the latest record time, ties broken by the highest id.
func (s *Service) DeleteValue(ctx context.Context, access *AccessContext, id int64) (Result, error) {
	var res Result
	err := s.run(ctx, access, "delete_value", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			existing, ok := tx.FindValue(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityValue, ID: id}
			}
			if err := requireAction(tx.Snapshot(), access, existing.KPIID, domain.AccessDelete); err != nil {
				return err
			}
			if err := tx.DeleteValue(id); err != nil {
				return err
			}
			if existing.State != StateCurrent {
				return nil
			}
			candidate, found := promotionCandidate(seriesValues(tx.Snapshot(), existing.Key()))
			if !found {
				return nil
			}
			_, err := tx.UpdateValue(candidate.ID, func(v *KPIValue) error {
				v.State = StateCurrent
				return nil
			})
			return err
		})
		return err
	})
	return res, err
}

// GetValue retrieves one stored row together with its typed decoding.
func (s *Service) GetValue(ctx context.Context, access *AccessContext, id int64) (DecodedValue, error) {
	var out DecodedValue
	err := s.run(ctx, access, "get_value", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			value, ok := view.FindValue(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityValue, ID: id}
			}
			kpi, ok := view.FindKPI(value.KPIID)
			if !ok {
				return domain.NotFoundError{Entity: EntityKPI, ID: value.KPIID}
			}
			decoded, err := codec.Decode(kpi.ValType, kpi.Multiple, value.Value)
			if err != nil {
				return err
			}
			out = DecodedValue{KPIValue: value, Decoded: decoded}
			return nil
		})
	})
	return out, err
}

func matchesFilter(value KPIValue, filter ValueFilter) bool {
	contains := func(ids []int64, id int64) bool {
		if len(ids) == 0 {
			return true
		}
		for _, candidate := range ids {
			if candidate == id {
				return true
			}
		}
		return false
	}
	if !contains(filter.KPIIDs, value.KPIID) ||
		!contains(filter.ObjectIDs, value.ObjectID) ||
		!contains(filter.GranularityIDs, value.GranularityID) {
		return false
	}
	if filter.State != "" && value.State != filter.State {
		return false
	}
	if filter.From != nil && value.RecordTime.Before(*filter.From) {
		return false
	}
	if filter.To != nil && value.RecordTime.After(*filter.To) {
		return false
	}
	return true
}

// ListValues returns decoded rows matching the filter, ordered by record
// time with ties broken by id.
func (s *Service) ListValues(ctx context.Context, access *AccessContext, filter ValueFilter) ([]DecodedValue, error) {
	var out []DecodedValue
	err := s.run(ctx, access, "list_values", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			kpis := make(map[int64]KPI)
			for _, kpi := range view.ListKPIs() {
				kpis[kpi.ID] = kpi
			}
			matched := make([]KPIValue, 0)
			for _, value := range view.ListValues() {
				if matchesFilter(value, filter) {
					matched = append(matched, value)
				}
			}
			sortValues(matched)
			for _, value := range matched {
				kpi, ok := kpis[value.KPIID]
				if !ok {
					continue
				}
				decoded, err := codec.Decode(kpi.ValType, kpi.Multiple, value.Value)
				if err != nil {
					return err
				}
				out = append(out, DecodedValue{KPIValue: value, Decoded: decoded})
			}
			return nil
		})
	})
	return out, err
}

// ObjectState returns the decoded current row of every series recorded for an
// object, the snapshot a dashboard renders from.
func (s *Service) ObjectState(ctx context.Context, access *AccessContext, objectID int64) ([]DecodedValue, error) {
	return s.ListValues(ctx, access, ValueFilter{ObjectIDs: []int64{objectID}, State: StateCurrent})
}
