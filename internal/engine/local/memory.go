package local

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"kgrbac.org/internal/engine"
)

type roleKey struct {
	owner uuid.UUID
	name  string
}

type datasetKey struct {
	owner uuid.UUID
	name  string
}

type membership struct {
	group uuid.UUID
	user  uuid.UUID
}

// MemoryStore keeps engine metadata in process memory.
type MemoryStore struct {
	mu sync.RWMutex

	users        map[uuid.UUID]UserRecord
	usersByEmail map[string]uuid.UUID

	tenants       map[uuid.UUID]engine.Tenant
	tenantsByName map[string]uuid.UUID
	tenantMembers map[membership]struct{}

	roles       map[uuid.UUID]engine.Role
	rolesByName map[roleKey]uuid.UUID
	roleMembers map[membership]struct{}
	// membership insertion order for deterministic Memberships output
	memberOrder []membership

	datasets       map[uuid.UUID]engine.Dataset
	datasetsByName map[datasetKey]uuid.UUID
	documents      map[uuid.UUID][]string
	documentHashes map[uuid.UUID]map[string]struct{}
	passages       map[uuid.UUID][]string

	grants     map[Grant]struct{}
	grantOrder []Grant
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.users = map[uuid.UUID]UserRecord{}
	s.usersByEmail = map[string]uuid.UUID{}
	s.tenants = map[uuid.UUID]engine.Tenant{}
	s.tenantsByName = map[string]uuid.UUID{}
	s.tenantMembers = map[membership]struct{}{}
	s.roles = map[uuid.UUID]engine.Role{}
	s.rolesByName = map[roleKey]uuid.UUID{}
	s.roleMembers = map[membership]struct{}{}
	s.memberOrder = nil
	s.datasets = map[uuid.UUID]engine.Dataset{}
	s.datasetsByName = map[datasetKey]uuid.UUID{}
	s.documents = map[uuid.UUID][]string{}
	s.documentHashes = map[uuid.UUID]map[string]struct{}{}
	s.passages = map[uuid.UUID][]string{}
	s.grants = map[Grant]struct{}{}
	s.grantOrder = nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func conflict(op, format string, args ...any) error {
	return engine.E(op, engine.KindAlreadyExists, fmt.Errorf(format, args...))
}

func missing(op, format string, args ...any) error {
	return engine.E(op, engine.KindNotFound, fmt.Errorf(format, args...))
}

func (s *MemoryStore) InsertUser(_ context.Context, rec UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := normalizeEmail(rec.Email)
	if _, ok := s.usersByEmail[email]; ok {
		return conflict("insert_user", "user %s already exists", email)
	}
	rec.Email = email
	s.users[rec.ID] = rec
	s.usersByEmail[email] = rec.ID
	return nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[normalizeEmail(email)]
	if !ok {
		return UserRecord{}, missing("user_by_email", "user %s not found", email)
	}
	return s.users[id], nil
}

func (s *MemoryStore) UserByID(_ context.Context, id uuid.UUID) (UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return UserRecord{}, missing("user_by_id", "user %s not found", id)
	}
	return rec, nil
}

func (s *MemoryStore) InsertTenant(_ context.Context, t engine.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenantsByName[t.Name]; ok {
		return conflict("insert_tenant", "tenant %s already exists", t.Name)
	}
	if _, ok := s.users[t.OwnerID]; !ok {
		return missing("insert_tenant", "owner %s not found", t.OwnerID)
	}
	s.tenants[t.ID] = t
	s.tenantsByName[t.Name] = t.ID
	return nil
}

func (s *MemoryStore) TenantByName(_ context.Context, name string) (engine.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tenantsByName[name]
	if !ok {
		return engine.Tenant{}, missing("tenant_by_name", "tenant %s not found", name)
	}
	return s.tenants[id], nil
}

func (s *MemoryStore) TenantByID(_ context.Context, id uuid.UUID) (engine.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return engine.Tenant{}, missing("tenant_by_id", "tenant %s not found", id)
	}
	return t, nil
}

func (s *MemoryStore) AddTenantMember(_ context.Context, tenantID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenantID]; !ok {
		return missing("add_tenant_member", "tenant %s not found", tenantID)
	}
	if _, ok := s.users[userID]; !ok {
		return missing("add_tenant_member", "user %s not found", userID)
	}
	m := membership{group: tenantID, user: userID}
	if _, ok := s.tenantMembers[m]; ok {
		return conflict("add_tenant_member", "user %s already in tenant %s", userID, tenantID)
	}
	s.tenantMembers[m] = struct{}{}
	s.memberOrder = append(s.memberOrder, m)
	return nil
}

func (s *MemoryStore) InsertRole(_ context.Context, r engine.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roleKey{owner: r.OwnerID, name: r.Name}
	if _, ok := s.rolesByName[key]; ok {
		return conflict("insert_role", "role %s already exists", r.Name)
	}
	if _, ok := s.users[r.OwnerID]; !ok {
		return missing("insert_role", "owner %s not found", r.OwnerID)
	}
	s.roles[r.ID] = r
	s.rolesByName[key] = r.ID
	return nil
}

func (s *MemoryStore) RoleByName(_ context.Context, name string, ownerID uuid.UUID) (engine.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.rolesByName[roleKey{owner: ownerID, name: name}]
	if !ok {
		return engine.Role{}, missing("role_by_name", "role %s not found", name)
	}
	return s.roles[id], nil
}

func (s *MemoryStore) RoleByID(_ context.Context, id uuid.UUID) (engine.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return engine.Role{}, missing("role_by_id", "role %s not found", id)
	}
	return r, nil
}

func (s *MemoryStore) AddRoleMember(_ context.Context, roleID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return missing("add_role_member", "role %s not found", roleID)
	}
	if _, ok := s.users[userID]; !ok {
		return missing("add_role_member", "user %s not found", userID)
	}
	m := membership{group: roleID, user: userID}
	if _, ok := s.roleMembers[m]; ok {
		return conflict("add_role_member", "user %s already has role %s", userID, roleID)
	}
	s.roleMembers[m] = struct{}{}
	s.memberOrder = append(s.memberOrder, m)
	return nil
}

func (s *MemoryStore) Memberships(_ context.Context, userID uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var roles, tenants []uuid.UUID
	for _, m := range s.memberOrder {
		if m.user != userID {
			continue
		}
		if _, ok := s.roleMembers[m]; ok {
			roles = append(roles, m.group)
			continue
		}
		if _, ok := s.tenantMembers[m]; ok {
			tenants = append(tenants, m.group)
		}
	}
	return roles, tenants, nil
}

func (s *MemoryStore) InsertDataset(_ context.Context, d engine.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := datasetKey{owner: d.OwnerID, name: d.Name}
	if _, ok := s.datasetsByName[key]; ok {
		return conflict("insert_dataset", "dataset %s already exists", d.Name)
	}
	s.datasets[d.ID] = d
	s.datasetsByName[key] = d.ID
	return nil
}

func (s *MemoryStore) DatasetByName(_ context.Context, ownerID uuid.UUID, name string) (engine.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.datasetsByName[datasetKey{owner: ownerID, name: name}]
	if !ok {
		return engine.Dataset{}, missing("dataset_by_name", "dataset %s not found", name)
	}
	return s.datasets[id], nil
}

func (s *MemoryStore) DatasetByID(_ context.Context, id uuid.UUID) (engine.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[id]
	if !ok {
		return engine.Dataset{}, missing("dataset_by_id", "dataset %s not found", id)
	}
	return d, nil
}

func (s *MemoryStore) AppendDocuments(_ context.Context, datasetID uuid.UUID, docs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[datasetID]; !ok {
		return missing("append_documents", "dataset %s not found", datasetID)
	}
	seen, ok := s.documentHashes[datasetID]
	if !ok {
		seen = map[string]struct{}{}
		s.documentHashes[datasetID] = seen
	}
	for _, doc := range docs {
		h := ContentHash(doc)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		s.documents[datasetID] = append(s.documents[datasetID], doc)
	}
	return nil
}

func (s *MemoryStore) Documents(_ context.Context, datasetID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.documents[datasetID]...), nil
}

func (s *MemoryStore) ReplacePassages(_ context.Context, datasetID uuid.UUID, passages []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[datasetID]; !ok {
		return missing("replace_passages", "dataset %s not found", datasetID)
	}
	s.passages[datasetID] = append([]string(nil), passages...)
	return nil
}

func (s *MemoryStore) Passages(_ context.Context, datasetID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.passages[datasetID]...), nil
}

func (s *MemoryStore) InsertGrant(_ context.Context, g Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[g.DatasetID]; !ok {
		return missing("insert_grant", "dataset %s not found", g.DatasetID)
	}
	if _, ok := s.grants[g]; ok {
		return conflict("insert_grant", "%s on %s already granted to %s", g.Permission, g.DatasetID, g.PrincipalID)
	}
	s.grants[g] = struct{}{}
	s.grantOrder = append(s.grantOrder, g)
	return nil
}

func (s *MemoryStore) GrantsFor(_ context.Context, principalIDs []uuid.UUID) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[uuid.UUID]struct{}, len(principalIDs))
	for _, id := range principalIDs {
		want[id] = struct{}{}
	}
	var out []Grant
	for _, g := range s.grantOrder {
		if _, ok := want[g.PrincipalID]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}
