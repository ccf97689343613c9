package core

import (
	"context"
	"fmt"
	"os"
	"sort"

	"kpicore/pkg/domain"
)

// securityDisabled reports whether permission checks are switched off for the
// whole process via KPICORE_SECURITY_DISABLED.
func securityDisabled() bool {
	switch os.Getenv("KPICORE_SECURITY_DISABLED") {
	case "1", "true", "yes":
		return true
	}
	return false
}

// CreatePermissions registers standalone permission rows. The batch commits
// as a whole: one bad row rejects every row. Callers without the admin bypass
// can only hand out tokens they hold themselves.
func (s *Service) CreatePermissions(ctx context.Context, access *AccessContext, inputs []PermissionInput) ([]PermissionRecord, Result, error) {
	var created []PermissionRecord
	var res Result
	err := s.run(ctx, access, "create_permissions", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, input := range inputs {
				if input.Token == "" {
					return domain.ValidationError{Field: "permission", Message: "permission token is required"}
				}
				if err := requireAction(tx.Snapshot(), access, input.KPIID, domain.AccessAdmin); err != nil {
					return err
				}
				if !securityDisabled() && !access.Bypasses() {
					held := false
					for _, token := range access.FilterTokens() {
						if token == input.Token {
							held = true
							break
						}
					}
					if !held {
						return domain.AuthorizationError{Message: "you can only assign roles from the list of roles available to you"}
					}
				}
				stored, err := tx.CreatePermission(PermissionRecord{
					KPIID:     input.KPIID,
					Token:     input.Token,
					Name:      domain.PermissionName(input.Token),
					CanRead:   input.CanRead,
					CanCreate: input.CanCreate,
					CanUpdate: input.CanUpdate,
					CanDelete: input.CanDelete,
					CanAdmin:  input.CanAdmin,
				})
				if err != nil {
					return err
				}
				created = append(created, stored)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, res, err
	}
	return created, res, nil
}

// UpdatePermission patches the capability flags of a permission row. Rows
// derived from another row can only be changed through their root.
func (s *Service) UpdatePermission(ctx context.Context, access *AccessContext, id int64, patch PermissionPatch) (PermissionRecord, Result, error) {
	var updated PermissionRecord
	var res Result
	err := s.run(ctx, access, "update_permission", func(ctx context.Context) error {
		if patch.Empty() {
			return domain.ValidationError{Field: "patch", Message: "no capability flags to update"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			existing, ok := tx.FindPermission(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityPermission, ID: id}
			}
			if err := requireAction(tx.Snapshot(), access, existing.KPIID, domain.AccessAdmin); err != nil {
				return err
			}
			if existing.RootID != nil {
				return domain.ValidationError{Field: "id", Message: fmt.Sprintf("for editing, use the root permission row with id %d", *existing.RootID)}
			}
			var err error
			updated, err = tx.UpdatePermission(id, func(p *PermissionRecord) error {
				if patch.CanRead != nil {
					p.CanRead = *patch.CanRead
				}
				if patch.CanCreate != nil {
					p.CanCreate = *patch.CanCreate
				}
				if patch.CanUpdate != nil {
					p.CanUpdate = *patch.CanUpdate
				}
				if patch.CanDelete != nil {
					p.CanDelete = *patch.CanDelete
				}
				if patch.CanAdmin != nil {
					p.CanAdmin = *patch.CanAdmin
				}
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return PermissionRecord{}, res, err
	}
	return updated, res, nil
}

// DeletePermission removes a permission row. Rows derived from another row
// can only be removed through their root.
func (s *Service) DeletePermission(ctx context.Context, access *AccessContext, id int64) (Result, error) {
	var res Result
	err := s.run(ctx, access, "delete_permission", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			existing, ok := tx.FindPermission(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityPermission, ID: id}
			}
			if err := requireAction(tx.Snapshot(), access, existing.KPIID, domain.AccessAdmin); err != nil {
				return err
			}
			if existing.RootID != nil {
				return domain.ValidationError{Field: "id", Message: fmt.Sprintf("for editing, use the root permission row with id %d", *existing.RootID)}
			}
			return tx.DeletePermission(id)
		})
		return err
	})
	return res, err
}

// DeletePermissions removes a batch of permission rows. Every id is
// validated before the first delete, so one bad id rejects the whole batch.
func (s *Service) DeletePermissions(ctx context.Context, access *AccessContext, ids []int64) (Result, error) {
	var res Result
	err := s.run(ctx, access, "delete_permissions", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, id := range ids {
				existing, ok := tx.FindPermission(id)
				if !ok {
					return domain.NotFoundError{Entity: EntityPermission, ID: id}
				}
				if err := requireAction(tx.Snapshot(), access, existing.KPIID, domain.AccessAdmin); err != nil {
					return err
				}
				if existing.RootID != nil {
					return domain.ValidationError{Field: "id", Message: "for editing, use the root permission row"}
				}
			}
			for _, id := range ids {
				if err := tx.DeletePermission(id); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})
	return res, err
}

// ListAllPermissions returns every permission row in the store. Reserved for
// admin and internal callers.
func (s *Service) ListAllPermissions(ctx context.Context, access *AccessContext) ([]PermissionRecord, error) {
	var out []PermissionRecord
	err := s.run(ctx, access, "list_all_permissions", func(ctx context.Context) error {
		if !securityDisabled() && !access.Bypasses() {
			return domain.AuthorizationError{}
		}
		return s.store.View(ctx, func(view TransactionView) error {
			out = append(out, view.ListPermissions()...)
			sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
			return nil
		})
	})
	return out, err
}

// ListPermissions returns the permission rows of a KPI, ordered by id.
func (s *Service) ListPermissions(ctx context.Context, access *AccessContext, kpiID int64) ([]PermissionRecord, error) {
	var out []PermissionRecord
	err := s.run(ctx, access, "list_permissions", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			if _, ok := view.FindKPI(kpiID); !ok {
				return domain.NotFoundError{Entity: EntityKPI, ID: kpiID}
			}
			if err := requireAction(view, access, kpiID, domain.AccessAdmin); err != nil {
				return err
			}
			for _, perm := range view.ListPermissions() {
				if perm.KPIID == kpiID {
					out = append(out, perm)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
			return nil
		})
	})
	return out, err
}
