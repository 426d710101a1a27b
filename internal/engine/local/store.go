package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"kgrbac.org/internal/engine"
)

// ContentHash identifies a document body within a dataset.
func ContentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// UserRecord is a user row with its credential hash.
type UserRecord struct {
	engine.User
	PasswordHash string
}

// Grant is a (principal, dataset, permission) triple. A principal is a user, role or tenant id.
type Grant struct {
	PrincipalID uuid.UUID
	DatasetID   uuid.UUID
	Permission  engine.Permission
}

// Store persists engine metadata. Uniqueness violations return
// engine.ErrAlreadyExists and missing rows engine.ErrNotFound.
type Store interface {
	InsertUser(ctx context.Context, rec UserRecord) error
	UserByEmail(ctx context.Context, email string) (UserRecord, error)
	UserByID(ctx context.Context, id uuid.UUID) (UserRecord, error)

	InsertTenant(ctx context.Context, t engine.Tenant) error
	TenantByName(ctx context.Context, name string) (engine.Tenant, error)
	TenantByID(ctx context.Context, id uuid.UUID) (engine.Tenant, error)
	AddTenantMember(ctx context.Context, tenantID, userID uuid.UUID) error

	InsertRole(ctx context.Context, r engine.Role) error
	RoleByName(ctx context.Context, name string, ownerID uuid.UUID) (engine.Role, error)
	RoleByID(ctx context.Context, id uuid.UUID) (engine.Role, error)
	AddRoleMember(ctx context.Context, roleID, userID uuid.UUID) error

	// Memberships lists the roles and tenants a user belongs to.
	Memberships(ctx context.Context, userID uuid.UUID) (roleIDs, tenantIDs []uuid.UUID, err error)

	InsertDataset(ctx context.Context, d engine.Dataset) error
	DatasetByName(ctx context.Context, ownerID uuid.UUID, name string) (engine.Dataset, error)
	DatasetByID(ctx context.Context, id uuid.UUID) (engine.Dataset, error)
	// AppendDocuments stores docs in order, skipping any whose ContentHash is
	// already stored for the dataset.
	AppendDocuments(ctx context.Context, datasetID uuid.UUID, docs []string) error
	Documents(ctx context.Context, datasetID uuid.UUID) ([]string, error)
	ReplacePassages(ctx context.Context, datasetID uuid.UUID, passages []string) error
	Passages(ctx context.Context, datasetID uuid.UUID) ([]string, error)

	InsertGrant(ctx context.Context, g Grant) error
	GrantsFor(ctx context.Context, principalIDs []uuid.UUID) ([]Grant, error)

	// Reset removes every row.
	Reset(ctx context.Context) error
}
