package core

import (
	"context"
	"fmt"
	"sort"

	"kpicore/pkg/codec"
	"kpicore/pkg/domain"
)

// Aggregate computes one aggregate per requested object over the current and
// historical rows of a series window. Planned rows are excluded. Objects with
// no rows in the window report 0.
func (s *Service) Aggregate(ctx context.Context, access *AccessContext, req AggregateRequest) (map[int64]any, error) {
	out := make(map[int64]any, len(req.ObjectIDs))
	err := s.run(ctx, access, "aggregate_values", func(ctx context.Context) error {
		if !req.Func.Valid() {
			return domain.ValidationError{Field: "func", Message: "unknown aggregation function"}
		}
		return s.store.View(ctx, func(view TransactionView) error {
			kpi, ok := view.FindKPI(req.KPIID)
			if !ok {
				return domain.NotFoundError{Entity: EntityKPI, ID: req.KPIID}
			}
			if kpi.Multiple {
				return domain.ValidationError{Field: "kpi_id", Message: "multiple-valued kpis cannot be aggregated"}
			}
			if err := aggregateSupports(req.Func, kpi.ValType); err != nil {
				return err
			}
			gran, ok := view.FindGranularity(req.GranularityID)
			if !ok || gran.KPIID != req.KPIID {
				return domain.NotFoundError{Entity: EntityGranularity, ID: req.GranularityID}
			}

			requested := make(map[int64]bool, len(req.ObjectIDs))
			for _, id := range req.ObjectIDs {
				requested[id] = true
			}

			rows := make(map[int64][]any)
			for _, value := range view.ListValues() {
				if value.KPIID != req.KPIID || value.GranularityID != req.GranularityID {
					continue
				}
				if value.State == StatePlanned || !requested[value.ObjectID] {
					continue
				}
				if req.From != nil && value.RecordTime.Before(*req.From) {
					continue
				}
				if req.To != nil && value.RecordTime.After(*req.To) {
					continue
				}
				decoded, err := codec.Decode(kpi.ValType, false, value.Value)
				if err != nil {
					return err
				}
				rows[value.ObjectID] = append(rows[value.ObjectID], decoded)
			}

			for _, objectID := range req.ObjectIDs {
				values := rows[objectID]
				if len(values) == 0 {
					out[objectID] = 0
					continue
				}
				out[objectID] = applyAggregate(req.Func, kpi.ValType, values)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func aggregateSupports(fn domain.AggregateFunc, t ValType) error {
	switch fn {
	case domain.AggregateAvg:
		if t != domain.ValTypeInt && t != domain.ValTypeFloat {
			return domain.ValidationError{Field: "func", Message: "avg requires a numeric value type"}
		}
	case domain.AggregateMin, domain.AggregateMax:
		if t != domain.ValTypeInt && t != domain.ValTypeFloat && t != domain.ValTypeStr {
			return domain.ValidationError{Field: "func", Message: "min/max requires a numeric or string value type"}
		}
	}
	return nil
}

func applyAggregate(fn domain.AggregateFunc, t ValType, values []any) any {
	switch fn {
	case domain.AggregateAvg:
		total := 0.0
		for _, v := range values {
			total += asFloat(v)
		}
		return total / float64(len(values))
	case domain.AggregateMin:
		return extreme(t, values, false)
	case domain.AggregateMax:
		return extreme(t, values, true)
	case domain.AggregateMostFrequent:
		return mostFrequent(values)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func extreme(t ValType, values []any, max bool) any {
	switch t {
	case domain.ValTypeStr:
		best := values[0].(string)
		for _, v := range values[1:] {
			s := v.(string)
			if (max && s > best) || (!max && s < best) {
				best = s
			}
		}
		return best
	case domain.ValTypeInt:
		best := values[0].(int64)
		for _, v := range values[1:] {
			n := v.(int64)
			if (max && n > best) || (!max && n < best) {
				best = n
			}
		}
		return best
	default:
		best := values[0].(float64)
		for _, v := range values[1:] {
			n := v.(float64)
			if (max && n > best) || (!max && n < best) {
				best = n
			}
		}
		return best
	}
}

// mostFrequent returns the modal value. Ties resolve to the candidate whose
// text form sorts first, keeping the result deterministic.
func mostFrequent(values []any) any {
	type entry struct {
		value any
		text  string
		count int
	}
	counts := make(map[string]*entry)
	for _, v := range values {
		text := textKey(v)
		if e, ok := counts[text]; ok {
			e.count++
			continue
		}
		counts[text] = &entry{value: v, text: text, count: 1}
	}
	entries := make([]*entry, 0, len(counts))
	for _, e := range counts {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].text < entries[j].text
	})
	return entries[0].value
}

func textKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
