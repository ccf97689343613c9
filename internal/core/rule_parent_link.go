package core

import (
	"context"
	"fmt"

	"kpicore/pkg/domain"
)

// NewParentLinkRule returns the rule guarding parent and child links: a link
// joins two different object types, never a KPI to itself, and both ends
// point back at each other.
func NewParentLinkRule() domain.Rule {
	return parentLinkRule{}
}

type parentLinkRule struct{}

func (parentLinkRule) Name() string { return "parent_link" }

func (parentLinkRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(kpiID int64, format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "parent_link",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   domain.EntityKPI,
			EntityID: kpiID,
		})
	}
	for _, kpi := range view.ListKPIs() {
		if kpi.ParentID != nil {
			switch parent, ok := view.FindKPI(*kpi.ParentID); {
			case *kpi.ParentID == kpi.ID:
				block(kpi.ID, "kpi %d cannot be its own parent", kpi.ID)
			case !ok:
				block(kpi.ID, "kpi %d links to missing parent %d", kpi.ID, *kpi.ParentID)
			case parent.ObjectType == kpi.ObjectType:
				block(kpi.ID, "kpi %d and parent %d share object type %q", kpi.ID, parent.ID, kpi.ObjectType)
			case parent.ChildID == nil || *parent.ChildID != kpi.ID:
				block(kpi.ID, "parent %d does not link back to kpi %d", parent.ID, kpi.ID)
			}
		}
		if kpi.ChildID != nil {
			switch child, ok := view.FindKPI(*kpi.ChildID); {
			case *kpi.ChildID == kpi.ID:
				block(kpi.ID, "kpi %d cannot be its own child", kpi.ID)
			case !ok:
				block(kpi.ID, "kpi %d links to missing child %d", kpi.ID, *kpi.ChildID)
			case child.ObjectType == kpi.ObjectType:
				block(kpi.ID, "kpi %d and child %d share object type %q", kpi.ID, child.ID, kpi.ObjectType)
			case child.ParentID == nil || *child.ParentID != kpi.ID:
				block(kpi.ID, "child %d does not link back to kpi %d", child.ID, kpi.ID)
			}
		}
	}
	return res, nil
}
