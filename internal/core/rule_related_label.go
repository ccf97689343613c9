package core

import (
	"context"
	"fmt"

	"kpicore/pkg/domain"
)

// NewRelatedLabelRule returns the rule constraining related-KPI edges: a
// related KPI must carry the same label as its owner while describing a
// different object type, and a KPI can never relate to itself.
func NewRelatedLabelRule() domain.Rule {
	return relatedLabelRule{}
}

type relatedLabelRule struct{}

func (relatedLabelRule) Name() string { return "related_label" }

func (relatedLabelRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, edge := range view.ListRelatedKPIs() {
		if edge.KPIID == edge.RelatedID {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "related_label",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("kpi %d cannot be related to itself", edge.KPIID),
				Entity:   domain.EntityRelatedKPI,
				EntityID: edge.ID,
			})
			continue
		}
		owner, ok := view.FindKPI(edge.KPIID)
		if !ok {
			continue
		}
		related, ok := view.FindKPI(edge.RelatedID)
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "related_label",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("related kpi %d does not exist, kpi %d expects label %q on object type other than %q", edge.RelatedID, owner.ID, owner.Label, owner.ObjectType),
				Entity:   domain.EntityRelatedKPI,
				EntityID: edge.ID,
			})
			continue
		}
		if owner.Label != related.Label {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "related_label",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("related kpi %d label %q does not match kpi %d label %q", related.ID, related.Label, owner.ID, owner.Label),
				Entity:   domain.EntityRelatedKPI,
				EntityID: edge.ID,
			})
		}
		if owner.ObjectType == related.ObjectType {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "related_label",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("related kpi %d shares object type %q with kpi %d", related.ID, related.ObjectType, owner.ID),
				Entity:   domain.EntityRelatedKPI,
				EntityID: edge.ID,
			})
		}
	}
	return res, nil
}
