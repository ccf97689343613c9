package core

import (
	"context"
	"fmt"

	"kpicore/pkg/domain"
)

// NewSingleCurrentRule returns the rule enforcing that each measurement
// series holds at most one row in the current state.
func NewSingleCurrentRule() domain.Rule {
	return singleCurrentRule{}
}

type singleCurrentRule struct{}

func (singleCurrentRule) Name() string { return "single_current" }

func (singleCurrentRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	current := make(map[domain.ValueKey]int64)

	res := domain.Result{}
	for _, value := range view.ListValues() {
		if value.State != domain.StateCurrent {
			continue
		}
		key := value.Key()
		if firstID, ok := current[key]; ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "single_current",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("series kpi=%d object=%d granularity=%d already holds current row %d", key.KPIID, key.ObjectID, key.GranularityID, firstID),
				Entity:   domain.EntityValue,
				EntityID: value.ID,
			})
			continue
		}
		current[key] = value.ID
	}
	return res, nil
}
