// Package engine defines the boundary to the knowledge-graph engine that owns
// users, tenants, roles, datasets and dataset permission grants.
package engine

import (
	"context"

	"github.com/google/uuid"
)

// Engine is implemented by the in-process engine and the remote REST client.
type Engine interface {
	CreateUser(ctx context.Context, in NewUser) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)

	CreateTenant(ctx context.Context, name string, ownerID uuid.UUID) (Tenant, error)
	TenantByName(ctx context.Context, name string) (Tenant, error)
	AddUserToTenant(ctx context.Context, userID, tenantID, ownerID uuid.UUID) error

	CreateRole(ctx context.Context, name string, ownerID uuid.UUID) (Role, error)
	RoleByName(ctx context.Context, name string, ownerID uuid.UUID) (Role, error)
	AddUserToRole(ctx context.Context, userID, roleID, ownerID uuid.UUID) error

	// Add submits documents under a dataset owned by user, creating the dataset on first use.
	Add(ctx context.Context, user User, dataset string, docs []string) error
	// Cognify processes the named datasets of user.
	Cognify(ctx context.Context, user User, datasets []string) (CognifyResult, error)

	// GivePermissionOnDataset grants perm on a dataset to a principal unconditionally.
	GivePermissionOnDataset(ctx context.Context, principalID, datasetID uuid.UUID, perm Permission) error
	// AuthorizedGivePermissionOnDatasets grants perm on each dataset, provided ownerID
	// holds the share permission on every one of them.
	AuthorizedGivePermissionOnDatasets(ctx context.Context, principalID uuid.UUID, datasetIDs []uuid.UUID, perm Permission, ownerID uuid.UUID) error

	// Search runs a query as user. Empty DatasetIDs means every dataset the user can read.
	Search(ctx context.Context, user User, req SearchRequest) ([]SearchResult, error)

	// Prune wipes ingested data and system metadata.
	Prune(ctx context.Context) error
}
