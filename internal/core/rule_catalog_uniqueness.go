package core

import (
	"context"
	"fmt"

	"kpicore/pkg/domain"
)

// NewCatalogUniquenessRule returns the default in-transaction rule enforcing
// that no two KPIs share the same name and object type.
func NewCatalogUniquenessRule() domain.Rule {
	return catalogUniquenessRule{}
}

type catalogUniquenessRule struct{}

func (catalogUniquenessRule) Name() string { return "catalog_uniqueness" }

func (catalogUniquenessRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	type key struct {
		name       string
		objectType string
	}
	seen := make(map[key]int64)

	res := domain.Result{}
	for _, kpi := range view.ListKPIs() {
		k := key{name: kpi.Name, objectType: kpi.ObjectType}
		if firstID, ok := seen[k]; ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "catalog_uniqueness",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("kpi %q already defined for object type %q (id %d)", kpi.Name, kpi.ObjectType, firstID),
				Entity:   domain.EntityKPI,
				EntityID: kpi.ID,
			})
			continue
		}
		seen[k] = kpi.ID
	}
	return res, nil
}
