package core

import (
	"context"
	"sort"

	"kpicore/pkg/codec"
	"kpicore/pkg/domain"
)

func sortKPIs(kpis []KPI) {
	sort.Slice(kpis, func(i, j int) bool { return kpis[i].ID < kpis[j].ID })
}

func validateKPIInput(input KPIInput) error {
	if input.Name == "" {
		return domain.ValidationError{Field: "name", Message: "name is required"}
	}
	if input.ObjectType == "" {
		return domain.ValidationError{Field: "object_type", Message: "object_type is required"}
	}
	if input.Label == "" {
		return domain.ValidationError{Field: "label", Message: "label is required"}
	}
	if !input.ValType.Valid() {
		return domain.ValidationError{Field: "val_type", Message: "unknown value type"}
	}
	if !input.Branch.Valid() {
		return domain.ValidationError{Field: "branch", Message: "unknown branch"}
	}
	return nil
}

// validateParentLink checks that targetID can become the parent of a KPI
// describing objectType. The target must exist, describe a different object
// type, and not already hold a child link.
func validateParentLink(view TransactionView, selfID int64, objectType string, targetID int64) error {
	if targetID == selfID {
		return domain.ValidationError{Field: "parent_id", Message: "kpi cannot link to itself"}
	}
	target, ok := view.FindKPI(targetID)
	if !ok || target.ObjectType == objectType || target.ChildID != nil {
		return domain.ValidationError{Field: "parent_id", Message: "target kpi does not exist or cannot become a parent"}
	}
	return nil
}

// validateChildLink is the mirror of validateParentLink: the target must
// exist, describe a different object type, and not already hold a parent.
func validateChildLink(view TransactionView, selfID int64, objectType string, targetID int64) error {
	if targetID == selfID {
		return domain.ValidationError{Field: "child_id", Message: "kpi cannot link to itself"}
	}
	target, ok := view.FindKPI(targetID)
	if !ok || target.ObjectType == objectType || target.ParentID != nil {
		return domain.ValidationError{Field: "child_id", Message: "target kpi does not exist or cannot become a child"}
	}
	return nil
}

// detachLinks clears the far side of the given KPI's parent and child links.
func detachLinks(tx Transaction, kpi KPI) error {
	if kpi.ParentID != nil {
		if _, err := tx.UpdateKPI(*kpi.ParentID, func(k *KPI) error {
			k.ChildID = nil
			return nil
		}); err != nil {
			return err
		}
	}
	if kpi.ChildID != nil {
		if _, err := tx.UpdateKPI(*kpi.ChildID, func(k *KPI) error {
			k.ParentID = nil
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// attachLinks writes the reciprocal side of the KPI's parent and child links.
func attachLinks(tx Transaction, kpi KPI) error {
	if kpi.ParentID != nil {
		if _, err := tx.UpdateKPI(*kpi.ParentID, func(k *KPI) error {
			k.ChildID = &kpi.ID
			return nil
		}); err != nil {
			return err
		}
	}
	if kpi.ChildID != nil {
		if _, err := tx.UpdateKPI(*kpi.ChildID, func(k *KPI) error {
			k.ParentID = &kpi.ID
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// CreateKPI persists a new KPI definition together with its related-KPI
// edges and link counterparts, then grants the caller full capabilities on
// it. Authenticated callers whose claims yield no tokens are rejected.
func (s *Service) CreateKPI(ctx context.Context, access *AccessContext, input KPIInput) (KPI, Result, error) {
	if input.Branch == "" {
		input.Branch = domain.BranchAll
	}
	var created KPI
	var res Result
	err := s.run(ctx, access, "create_kpi", func(ctx context.Context) error {
		if err := validateKPIInput(input); err != nil {
			return err
		}
		tokens := access.Tokens()
		if access != nil && access.Claims != nil && len(tokens) == 0 {
			return domain.AuthorizationError{}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if input.ParentID != nil {
				if err := validateParentLink(tx.Snapshot(), 0, input.ObjectType, *input.ParentID); err != nil {
					return err
				}
			}
			if input.ChildID != nil {
				if err := validateChildLink(tx.Snapshot(), 0, input.ObjectType, *input.ChildID); err != nil {
					return err
				}
			}
			kpi, err := tx.CreateKPI(KPI{
				Name:       input.Name,
				ObjectType: input.ObjectType,
				Label:      input.Label,
				ValType:    input.ValType,
				Branch:     input.Branch,
				Multiple:   input.Multiple,
				Desc:       input.Desc,
				ParentID:   input.ParentID,
				ChildID:    input.ChildID,
			})
			if err != nil {
				return err
			}
			if err := attachLinks(tx, kpi); err != nil {
				return err
			}
			for _, relatedID := range input.RelatedIDs {
				if _, err := tx.CreateRelatedKPI(RelatedKPI{KPIID: kpi.ID, RelatedID: relatedID}); err != nil {
					return err
				}
			}
			for _, token := range tokens {
				if _, err := tx.CreatePermission(PermissionRecord{
					KPIID:     kpi.ID,
					Token:     token,
					Name:      domain.PermissionName(token),
					CanRead:   true,
					CanCreate: true,
					CanUpdate: true,
					CanDelete: true,
					CanAdmin:  true,
				}); err != nil {
					return err
				}
			}
			created = kpi
			return nil
		})
		return err
	})
	if err != nil {
		return KPI{}, res, err
	}
	if s.notifier != nil {
		s.notifier.NotifyChanged(ctx, []PaletteEntry{{KPIID: created.ID, Name: created.Name, Label: created.Label}})
	}
	return created, res, nil
}

// GetKPI retrieves a KPI the caller may read.
func (s *Service) GetKPI(ctx context.Context, access *AccessContext, id int64) (KPI, error) {
	var found KPI
	err := s.run(ctx, access, "get_kpi", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			for _, kpi := range visibleKPIs(view, access) {
				if kpi.ID == id {
					found = kpi
					return nil
				}
			}
			return domain.NotFoundError{Entity: EntityKPI, ID: id}
		})
	})
	return found, err
}

// ListKPIs returns the definitions visible to the caller.
func (s *Service) ListKPIs(ctx context.Context, access *AccessContext) ([]KPI, error) {
	var out []KPI
	err := s.run(ctx, access, "list_kpis", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			out = visibleKPIs(view, access)
			sortKPIs(out)
			return nil
		})
	})
	return out, err
}

// ListKPIsByIDs returns the visible definitions matching the given ids.
// The lookup is all or nothing: any id without a visible definition fails
// the call, naming every missing id.
func (s *Service) ListKPIsByIDs(ctx context.Context, access *AccessContext, ids []int64) ([]KPI, error) {
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []KPI
	err := s.run(ctx, access, "list_kpis_by_ids", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			found := make(map[int64]bool, len(wanted))
			for _, kpi := range visibleKPIs(view, access) {
				if wanted[kpi.ID] {
					out = append(out, kpi)
					found[kpi.ID] = true
				}
			}
			if len(found) != len(wanted) {
				var missing []int64
				for id := range wanted {
					if !found[id] {
						missing = append(missing, id)
					}
				}
				sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
				return domain.NotFoundError{Entity: EntityKPI, IDs: missing}
			}
			sortKPIs(out)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListKPIsByObjectType returns the visible definitions for one object type.
func (s *Service) ListKPIsByObjectType(ctx context.Context, access *AccessContext, objectType string) ([]KPI, error) {
	var out []KPI
	err := s.run(ctx, access, "list_kpis_by_object_type", func(ctx context.Context) error {
		if objectType == "" {
			return domain.ValidationError{Field: "object_type", Message: "object_type is required"}
		}
		return s.store.View(ctx, func(view TransactionView) error {
			for _, kpi := range visibleKPIs(view, access) {
				if kpi.ObjectType == objectType {
					out = append(out, kpi)
				}
			}
			sortKPIs(out)
			return nil
		})
	})
	return out, err
}

// ListRelatedKPIs returns the related definitions for a KPI.
func (s *Service) ListRelatedKPIs(ctx context.Context, access *AccessContext, id int64) ([]KPI, error) {
	var out []KPI
	err := s.run(ctx, access, "list_related_kpis", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			if _, ok := view.FindKPI(id); !ok {
				return domain.NotFoundError{Entity: EntityKPI, ID: id}
			}
			for _, edge := range view.ListRelatedKPIs() {
				if edge.KPIID != id {
					continue
				}
				if related, ok := view.FindKPI(edge.RelatedID); ok {
					out = append(out, related)
				}
			}
			sortKPIs(out)
			return nil
		})
	})
	return out, err
}

// UpdateKPI applies a partial update to a definition. A link change first
// detaches the existing counterpart, then validates and sets the new one,
// keeping both sides reciprocal within a single transaction. Changing the
// value type requires Force, which re-validates every stored value against
// the new type and deletes the ones that no longer parse.
func (s *Service) UpdateKPI(ctx context.Context, access *AccessContext, id int64, patch KPIPatch) (KPI, Result, error) {
	var updated KPI
	var res Result
	err := s.run(ctx, access, "update_kpi", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := requireAction(tx.Snapshot(), access, id, domain.AccessUpdate); err != nil {
				return err
			}
			current, ok := tx.FindKPI(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityKPI, ID: id}
			}

			if patch.ValType != nil && *patch.ValType != current.ValType {
				if !patch.ValType.Valid() {
					return domain.ValidationError{Field: "val_type", Message: "unknown value type"}
				}
				if err := s.changeValType(tx, current, *patch.ValType, patch.Force); err != nil {
					return err
				}
			}
			if patch.Branch != nil && !patch.Branch.Valid() {
				return domain.ValidationError{Field: "branch", Message: "unknown branch"}
			}

			objectType := current.ObjectType
			if patch.ObjectType != nil {
				objectType = *patch.ObjectType
			}
			if patch.ClearParent || patch.ParentID != nil {
				if current.ParentID != nil {
					if _, err := tx.UpdateKPI(*current.ParentID, func(k *KPI) error {
						k.ChildID = nil
						return nil
					}); err != nil {
						return err
					}
				}
				if _, err := tx.UpdateKPI(id, func(k *KPI) error {
					k.ParentID = nil
					return nil
				}); err != nil {
					return err
				}
			}
			if patch.ClearChild || patch.ChildID != nil {
				if current.ChildID != nil {
					if _, err := tx.UpdateKPI(*current.ChildID, func(k *KPI) error {
						k.ParentID = nil
						return nil
					}); err != nil {
						return err
					}
				}
				if _, err := tx.UpdateKPI(id, func(k *KPI) error {
					k.ChildID = nil
					return nil
				}); err != nil {
					return err
				}
			}
			if patch.ParentID != nil {
				if err := validateParentLink(tx.Snapshot(), id, objectType, *patch.ParentID); err != nil {
					return err
				}
			}
			if patch.ChildID != nil {
				if err := validateChildLink(tx.Snapshot(), id, objectType, *patch.ChildID); err != nil {
					return err
				}
			}

			updated, err = tx.UpdateKPI(id, func(k *KPI) error {
				if patch.Name != nil {
					k.Name = *patch.Name
				}
				if patch.ObjectType != nil {
					k.ObjectType = *patch.ObjectType
				}
				if patch.Label != nil {
					k.Label = *patch.Label
				}
				if patch.ValType != nil {
					k.ValType = *patch.ValType
				}
				if patch.Branch != nil {
					k.Branch = *patch.Branch
				}
				if patch.Desc != nil {
					k.Desc = patch.Desc
				}
				if patch.ParentID != nil {
					k.ParentID = patch.ParentID
				}
				if patch.ChildID != nil {
					k.ChildID = patch.ChildID
				}
				return nil
			})
			if err != nil {
				return err
			}
			if patch.ParentID != nil || patch.ChildID != nil {
				linked := updated
				if patch.ParentID == nil {
					linked.ParentID = nil
				}
				if patch.ChildID == nil {
					linked.ChildID = nil
				}
				if err := attachLinks(tx, linked); err != nil {
					return err
				}
			}

			if patch.RelatedIDs != nil {
				if err := replaceRelated(tx, id, patch.RelatedIDs); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})
	if err != nil {
		return KPI{}, res, err
	}
	return updated, res, nil
}

// changeValType re-validates stored values against the new type. The change
// always requires force, whether or not any values exist yet.
func (s *Service) changeValType(tx Transaction, kpi KPI, next ValType, force bool) error {
	if !force {
		return domain.ValidationError{Field: "val_type", Message: "changing the value type requires force"}
	}
	var stored []KPIValue
	for _, value := range tx.Snapshot().ListValues() {
		if value.KPIID == kpi.ID {
			stored = append(stored, value)
		}
	}
	for _, value := range stored {
		if codec.Validate(next, kpi.Multiple, value.Value) != nil {
			if err := tx.DeleteValue(value.ID); err != nil {
				return err
			}
			continue
		}
		encoded, err := codec.Encode(next, kpi.Multiple, value.Value)
		if err != nil {
			if err := tx.DeleteValue(value.ID); err != nil {
				return err
			}
			continue
		}
		if encoded == value.Value {
			continue
		}
		if _, err := tx.UpdateValue(value.ID, func(v *KPIValue) error {
			v.Value = encoded
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func replaceRelated(tx Transaction, kpiID int64, relatedIDs []int64) error {
	for _, edge := range tx.Snapshot().ListRelatedKPIs() {
		if edge.KPIID == kpiID {
			if err := tx.DeleteRelatedKPI(edge.ID); err != nil {
				return err
			}
		}
	}
	for _, relatedID := range relatedIDs {
		if _, err := tx.CreateRelatedKPI(RelatedKPI{KPIID: kpiID, RelatedID: relatedID}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteKPI removes a definition and everything recorded against it.
func (s *Service) DeleteKPI(ctx context.Context, access *AccessContext, id int64) (Result, error) {
	var res Result
	err := s.run(ctx, access, "delete_kpi", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := requireAction(tx.Snapshot(), access, id, domain.AccessDelete); err != nil {
				return err
			}
			if kpi, ok := tx.FindKPI(id); ok {
				if err := detachLinks(tx, kpi); err != nil {
					return err
				}
			}
			return tx.DeleteKPI(id)
		})
		return err
	})
	return res, err
}

// CreateGranularity registers a reporting period for a KPI. Seconds is an
// optional interval length carried alongside the name.
func (s *Service) CreateGranularity(ctx context.Context, access *AccessContext, input GranularityInput) (Granularity, Result, error) {
	var created Granularity
	var res Result
	err := s.run(ctx, access, "create_granularity", func(ctx context.Context) error {
		if input.Name == "" {
			return domain.ValidationError{Field: "name", Message: "name is required"}
		}
		if input.Seconds != nil && *input.Seconds <= 0 {
			return domain.ValidationError{Field: "seconds", Message: "seconds must be positive"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := requireAction(tx.Snapshot(), access, input.KPIID, domain.AccessUpdate); err != nil {
				return err
			}
			for _, existing := range tx.Snapshot().ListGranularities() {
				if existing.KPIID == input.KPIID && existing.Name == input.Name {
					return domain.NewDuplicateConflict()
				}
			}
			var err error
			created, err = tx.CreateGranularity(Granularity{KPIID: input.KPIID, Name: input.Name, Seconds: input.Seconds})
			return err
		})
		return err
	})
	if err != nil {
		return Granularity{}, res, err
	}
	return created, res, nil
}

// ListGranularities returns the granularities of a KPI.
func (s *Service) ListGranularities(ctx context.Context, access *AccessContext, kpiID int64) ([]Granularity, error) {
	var out []Granularity
	err := s.run(ctx, access, "list_granularities", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			if _, ok := view.FindKPI(kpiID); !ok {
				return domain.NotFoundError{Entity: EntityKPI, ID: kpiID}
			}
			for _, g := range view.ListGranularities() {
				if g.KPIID == kpiID {
					out = append(out, g)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
			return nil
		})
	})
	return out, err
}

// GetGranularity retrieves a single reporting period.
func (s *Service) GetGranularity(ctx context.Context, access *AccessContext, id int64) (Granularity, error) {
	var found Granularity
	err := s.run(ctx, access, "get_granularity", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			g, ok := view.FindGranularity(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityGranularity, ID: id}
			}
			if _, ok := view.FindKPI(g.KPIID); !ok {
				return domain.NotFoundError{Entity: EntityKPI, ID: g.KPIID}
			}
			found = g
			return nil
		})
	})
	return found, err
}

// RenameGranularity changes the name of a reporting period, keeping names
// unique within the owning KPI.
func (s *Service) RenameGranularity(ctx context.Context, access *AccessContext, id int64, name string) (Granularity, Result, error) {
	var updated Granularity
	var res Result
	err := s.run(ctx, access, "rename_granularity", func(ctx context.Context) error {
		if name == "" {
			return domain.ValidationError{Field: "name", Message: "name is required"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			g, ok := tx.FindGranularity(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityGranularity, ID: id}
			}
			if err := requireAction(tx.Snapshot(), access, g.KPIID, domain.AccessUpdate); err != nil {
				return err
			}
			for _, existing := range tx.Snapshot().ListGranularities() {
				if existing.KPIID == g.KPIID && existing.Name == name && existing.ID != id {
					return domain.NewDuplicateConflict()
				}
			}
			var err error
			updated, err = tx.UpdateGranularity(id, func(g *Granularity) error {
				g.Name = name
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return Granularity{}, res, err
	}
	return updated, res, nil
}

// DeleteGranularity removes a reporting period and its values.
func (s *Service) DeleteGranularity(ctx context.Context, access *AccessContext, id int64) (Result, error) {
	var res Result
	err := s.run(ctx, access, "delete_granularity", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			g, ok := tx.FindGranularity(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityGranularity, ID: id}
			}
			if err := requireAction(tx.Snapshot(), access, g.KPIID, domain.AccessDelete); err != nil {
				return err
			}
			return tx.DeleteGranularity(id)
		})
		return err
	})
	return res, err
}
