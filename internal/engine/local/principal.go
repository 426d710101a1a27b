package local

import (
	"github.com/google/uuid"

	"kgrbac.org/internal/engine"
)

type grantKey struct {
	dataset uuid.UUID
	perm    engine.Permission
}

// Principal is a user with resolved role and tenant memberships and the
// dataset grants reachable through any of them.
type Principal struct {
	UserID  uuid.UUID
	Roles   []uuid.UUID
	Tenants []uuid.UUID
	grants  map[grantKey]struct{}
	order   []uuid.UUID
}

// NewPrincipal indexes grants for fast lookup.
func NewPrincipal(userID uuid.UUID, roles, tenants []uuid.UUID, grants []Grant) Principal {
	p := Principal{UserID: userID, Roles: roles, Tenants: tenants, grants: make(map[grantKey]struct{}, len(grants))}
	seen := make(map[uuid.UUID]struct{})
	for _, g := range grants {
		p.grants[grantKey{dataset: g.DatasetID, perm: g.Permission}] = struct{}{}
		if g.Permission != engine.PermRead {
			continue
		}
		if _, ok := seen[g.DatasetID]; ok {
			continue
		}
		seen[g.DatasetID] = struct{}{}
		p.order = append(p.order, g.DatasetID)
	}
	return p
}

// HasPermission reports whether perm on dataset is granted directly or through a membership.
func (p Principal) HasPermission(dataset uuid.UUID, perm engine.Permission) bool {
	_, ok := p.grants[grantKey{dataset: dataset, perm: perm}]
	return ok
}

// Readable lists datasets with a read grant in first-granted order.
func (p Principal) Readable() []uuid.UUID {
	out := make([]uuid.UUID, len(p.order))
	copy(out, p.order)
	return out
}
