package pg

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"kgrbac.org/internal/engine"
	"kgrbac.org/internal/engine/local"
)

func (s *Store) InsertUser(ctx context.Context, rec local.UserRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into engine_users (id, email, password_hash, is_verified, is_active)
		values ($1, $2, $3, $4, $5)
	`, rec.ID, strings.ToLower(strings.TrimSpace(rec.Email)), rec.PasswordHash, rec.IsVerified, rec.IsActive)
	return classify("insert_user", err)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (local.UserRecord, error) {
	return s.scanUser(ctx, "user_by_email", `
		select id, email, password_hash, is_verified, is_active
		from engine_users
		where email = $1
	`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (local.UserRecord, error) {
	return s.scanUser(ctx, "user_by_id", `
		select id, email, password_hash, is_verified, is_active
		from engine_users
		where id = $1
	`, id)
}

func (s *Store) scanUser(ctx context.Context, op, query string, arg any) (local.UserRecord, error) {
	if err := s.ready(); err != nil {
		return local.UserRecord{}, err
	}
	var rec local.UserRecord
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &rec.IsVerified, &rec.IsActive)
	if err != nil {
		return local.UserRecord{}, classify(op, err)
	}
	return rec, nil
}

func (s *Store) InsertTenant(ctx context.Context, t engine.Tenant) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into engine_tenants (id, name, owner_id)
		values ($1, $2, $3)
	`, t.ID, t.Name, t.OwnerID)
	return classify("insert_tenant", err)
}

func (s *Store) TenantByName(ctx context.Context, name string) (engine.Tenant, error) {
	return s.scanTenant(ctx, "tenant_by_name", `select id, name, owner_id from engine_tenants where name = $1`, name)
}

func (s *Store) TenantByID(ctx context.Context, id uuid.UUID) (engine.Tenant, error) {
	return s.scanTenant(ctx, "tenant_by_id", `select id, name, owner_id from engine_tenants where id = $1`, id)
}

func (s *Store) scanTenant(ctx context.Context, op, query string, arg any) (engine.Tenant, error) {
	if err := s.ready(); err != nil {
		return engine.Tenant{}, err
	}
	var t engine.Tenant
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&t.ID, &t.Name, &t.OwnerID); err != nil {
		return engine.Tenant{}, classify(op, err)
	}
	return t, nil
}

func (s *Store) AddTenantMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into engine_tenant_members (tenant_id, user_id)
		values ($1, $2)
	`, tenantID, userID)
	return classify("add_tenant_member", err)
}

func (s *Store) InsertRole(ctx context.Context, r engine.Role) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into engine_roles (id, name, owner_id)
		values ($1, $2, $3)
	`, r.ID, r.Name, r.OwnerID)
	return classify("insert_role", err)
}

func (s *Store) RoleByName(ctx context.Context, name string, ownerID uuid.UUID) (engine.Role, error) {
	if err := s.ready(); err != nil {
		return engine.Role{}, err
	}
	var r engine.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, owner_id
		from engine_roles
		where name = $1 and owner_id = $2
	`, name, ownerID).Scan(&r.ID, &r.Name, &r.OwnerID)
	if err != nil {
		return engine.Role{}, classify("role_by_name", err)
	}
	return r, nil
}

func (s *Store) RoleByID(ctx context.Context, id uuid.UUID) (engine.Role, error) {
	if err := s.ready(); err != nil {
		return engine.Role{}, err
	}
	var r engine.Role
	err := s.db.QueryRowContext(ctx, `select id, name, owner_id from engine_roles where id = $1`, id).Scan(&r.ID, &r.Name, &r.OwnerID)
	if err != nil {
		return engine.Role{}, classify("role_by_id", err)
	}
	return r, nil
}

func (s *Store) AddRoleMember(ctx context.Context, roleID, userID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into engine_role_members (role_id, user_id)
		values ($1, $2)
	`, roleID, userID)
	return classify("add_role_member", err)
}

func (s *Store) Memberships(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	if err := s.ready(); err != nil {
		return nil, nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select 'role', role_id, created_at from engine_role_members where user_id = $1
		union all
		select 'tenant', tenant_id, created_at from engine_tenant_members where user_id = $1
		order by 3
	`, userID)
	if err != nil {
		return nil, nil, classify("memberships", err)
	}
	defer rows.Close()

	var roles, tenants []uuid.UUID
	for rows.Next() {
		var (
			kind    string
			groupID uuid.UUID
			created any
		)
		if err := rows.Scan(&kind, &groupID, &created); err != nil {
			return nil, nil, classify("memberships", err)
		}
		if kind == "role" {
			roles = append(roles, groupID)
		} else {
			tenants = append(tenants, groupID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, classify("memberships", err)
	}
	return roles, tenants, nil
}
