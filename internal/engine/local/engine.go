// Package local is an in-process knowledge engine that enforces dataset
// permissions over a Store and answers queries by keyword retrieval.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kgrbac.org/internal/engine"
	"kgrbac.org/internal/rag"
)

// Completer turns retrieved context into an answer.
type Completer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options configures Engine.
type Options struct {
	// AccessControl enforces read grants on Search. When false every dataset is readable.
	AccessControl bool
	// Completer answers completion searches. Nil returns the best passages verbatim.
	Completer Completer
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// TopK is the passage budget per dataset when the request does not set one.
	TopK int
}

// Engine implements engine.Engine.
type Engine struct {
	store Store
	opts  Options
}

var _ engine.Engine = (*Engine)(nil)

func New(store Store, opts Options) *Engine {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	return &Engine{store: store, opts: opts}
}

func (e *Engine) CreateUser(ctx context.Context, in engine.NewUser) (engine.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return engine.User{}, engine.E("create_user", engine.KindInvalidInput, fmt.Errorf("invalid email %q", in.Email))
	}
	hash, err := hashPassword(in.Password, e.opts.BcryptCost)
	if err != nil {
		return engine.User{}, engine.E("create_user", engine.KindInvalidInput, err)
	}
	rec := UserRecord{
		User: engine.User{
			ID:         uuid.New(),
			Email:      email,
			IsVerified: in.IsVerified,
			IsActive:   in.IsActive,
		},
		PasswordHash: hash,
	}
	if err := e.store.InsertUser(ctx, rec); err != nil {
		return engine.User{}, engine.Classify("create_user", err)
	}
	return rec.User, nil
}

func (e *Engine) UserByEmail(ctx context.Context, email string) (engine.User, error) {
	rec, err := e.store.UserByEmail(ctx, email)
	if err != nil {
		return engine.User{}, engine.Classify("user_by_email", err)
	}
	return rec.User, nil
}

func (e *Engine) CreateTenant(ctx context.Context, name string, ownerID uuid.UUID) (engine.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return engine.Tenant{}, engine.E("create_tenant", engine.KindInvalidInput, errors.New("tenant name is required"))
	}
	t := engine.Tenant{ID: uuid.New(), Name: name, OwnerID: ownerID}
	if err := e.store.InsertTenant(ctx, t); err != nil {
		return engine.Tenant{}, engine.Classify("create_tenant", err)
	}
	// The owner is the tenant's first member.
	if err := e.store.AddTenantMember(ctx, t.ID, ownerID); err != nil && !errors.Is(err, engine.ErrAlreadyExists) {
		return engine.Tenant{}, engine.Classify("create_tenant", err)
	}
	return t, nil
}

func (e *Engine) TenantByName(ctx context.Context, name string) (engine.Tenant, error) {
	t, err := e.store.TenantByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return engine.Tenant{}, engine.Classify("tenant_by_name", err)
	}
	return t, nil
}

func (e *Engine) AddUserToTenant(ctx context.Context, userID, tenantID, ownerID uuid.UUID) error {
	t, err := e.store.TenantByID(ctx, tenantID)
	if err != nil {
		return engine.Classify("add_user_to_tenant", err)
	}
	if t.OwnerID != ownerID {
		return engine.E("add_user_to_tenant", engine.KindPermissionDenied, fmt.Errorf("user %s does not own tenant %s", ownerID, t.Name))
	}
	return engine.Classify("add_user_to_tenant", e.store.AddTenantMember(ctx, tenantID, userID))
}

func (e *Engine) CreateRole(ctx context.Context, name string, ownerID uuid.UUID) (engine.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return engine.Role{}, engine.E("create_role", engine.KindInvalidInput, errors.New("role name is required"))
	}
	r := engine.Role{ID: uuid.New(), Name: name, OwnerID: ownerID}
	if err := e.store.InsertRole(ctx, r); err != nil {
		return engine.Role{}, engine.Classify("create_role", err)
	}
	return r, nil
}

func (e *Engine) RoleByName(ctx context.Context, name string, ownerID uuid.UUID) (engine.Role, error) {
	r, err := e.store.RoleByName(ctx, strings.TrimSpace(name), ownerID)
	if err != nil {
		return engine.Role{}, engine.Classify("role_by_name", err)
	}
	return r, nil
}

func (e *Engine) AddUserToRole(ctx context.Context, userID, roleID, ownerID uuid.UUID) error {
	r, err := e.store.RoleByID(ctx, roleID)
	if err != nil {
		return engine.Classify("add_user_to_role", err)
	}
	if r.OwnerID != ownerID {
		return engine.E("add_user_to_role", engine.KindPermissionDenied, fmt.Errorf("user %s does not own role %s", ownerID, r.Name))
	}
	return engine.Classify("add_user_to_role", e.store.AddRoleMember(ctx, roleID, userID))
}

// ownerPermissions are granted to a dataset's creator. Share must be granted explicitly.
var ownerPermissions = []engine.Permission{engine.PermRead, engine.PermWrite, engine.PermDelete}

func (e *Engine) Add(ctx context.Context, user engine.User, dataset string, docs []string) error {
	dataset = strings.TrimSpace(dataset)
	if dataset == "" {
		return engine.E("add", engine.KindInvalidInput, errors.New("dataset name is required"))
	}
	var body []string
	for _, doc := range docs {
		if strings.TrimSpace(doc) != "" {
			body = append(body, doc)
		}
	}
	if len(body) == 0 {
		return engine.E("add", engine.KindInvalidInput, errors.New("no documents to add"))
	}
	if _, err := e.store.UserByID(ctx, user.ID); err != nil {
		return engine.Classify("add", err)
	}

	ds, err := e.store.DatasetByName(ctx, user.ID, dataset)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		ds = engine.Dataset{ID: uuid.New(), Name: dataset, OwnerID: user.ID}
		if err := e.store.InsertDataset(ctx, ds); err != nil {
			return engine.Classify("add", err)
		}
		for _, perm := range ownerPermissions {
			if err := e.store.InsertGrant(ctx, Grant{PrincipalID: user.ID, DatasetID: ds.ID, Permission: perm}); err != nil && !errors.Is(err, engine.ErrAlreadyExists) {
				return engine.Classify("add", err)
			}
		}
	case err != nil:
		return engine.Classify("add", err)
	default:
		p, err := e.principal(ctx, user.ID)
		if err != nil {
			return engine.Classify("add", err)
		}
		if !p.HasPermission(ds.ID, engine.PermWrite) {
			return engine.E("add", engine.KindPermissionDenied, fmt.Errorf("user %s cannot write to dataset %s", user.Email, dataset))
		}
	}
	return engine.Classify("add", e.store.AppendDocuments(ctx, ds.ID, body))
}

func (e *Engine) Cognify(ctx context.Context, user engine.User, datasets []string) (engine.CognifyResult, error) {
	if len(datasets) == 0 {
		return engine.CognifyResult{}, engine.E("cognify", engine.KindInvalidInput, errors.New("no datasets given"))
	}
	p, err := e.principal(ctx, user.ID)
	if err != nil {
		return engine.CognifyResult{}, engine.Classify("cognify", err)
	}
	entries := make([]engine.DatasetEntry, 0, len(datasets))
	for _, name := range datasets {
		ds, err := e.store.DatasetByName(ctx, user.ID, name)
		if err != nil {
			return engine.CognifyResult{}, engine.Classify("cognify", err)
		}
		if !p.HasPermission(ds.ID, engine.PermWrite) {
			return engine.CognifyResult{}, engine.E("cognify", engine.KindPermissionDenied, fmt.Errorf("user %s cannot process dataset %s", user.Email, name))
		}
		docs, err := e.store.Documents(ctx, ds.ID)
		if err != nil {
			return engine.CognifyResult{}, engine.Classify("cognify", err)
		}
		var passages []string
		for _, doc := range docs {
			chunks, err := rag.Chunk(doc, rag.DefaultChunkSize, rag.DefaultChunkOverlap)
			if err != nil {
				return engine.CognifyResult{}, engine.E("cognify", engine.KindInvalidInput, err)
			}
			passages = append(passages, chunks...)
		}
		if err := e.store.ReplacePassages(ctx, ds.ID, passages); err != nil {
			return engine.CognifyResult{}, engine.Classify("cognify", err)
		}
		entries = append(entries, engine.DatasetEntry{
			Key: ds.ID.String(),
			Run: engine.RunInfo{DatasetID: ds.ID.String(), DatasetName: ds.Name, Status: "DATASET_PROCESSING_COMPLETED"},
		})
	}
	return engine.NewByDataset(entries...), nil
}

func (e *Engine) GivePermissionOnDataset(ctx context.Context, principalID, datasetID uuid.UUID, perm engine.Permission) error {
	perm, err := engine.ParsePermission(string(perm))
	if err != nil {
		return err
	}
	if _, err := e.store.DatasetByID(ctx, datasetID); err != nil {
		return engine.Classify("give_permission", err)
	}
	return engine.Classify("give_permission", e.store.InsertGrant(ctx, Grant{PrincipalID: principalID, DatasetID: datasetID, Permission: perm}))
}

func (e *Engine) AuthorizedGivePermissionOnDatasets(ctx context.Context, principalID uuid.UUID, datasetIDs []uuid.UUID, perm engine.Permission, ownerID uuid.UUID) error {
	perm, err := engine.ParsePermission(string(perm))
	if err != nil {
		return err
	}
	if len(datasetIDs) == 0 {
		return engine.E("authorized_give_permission", engine.KindInvalidInput, errors.New("no datasets given"))
	}
	owner, err := e.principal(ctx, ownerID)
	if err != nil {
		return engine.Classify("authorized_give_permission", err)
	}
	for _, id := range datasetIDs {
		if !owner.HasPermission(id, engine.PermShare) {
			return engine.E("authorized_give_permission", engine.KindPermissionDenied,
				fmt.Errorf("user %s lacks share permission on dataset %s", ownerID, id))
		}
	}
	var conflicts int
	for _, id := range datasetIDs {
		err := e.store.InsertGrant(ctx, Grant{PrincipalID: principalID, DatasetID: id, Permission: perm})
		if errors.Is(err, engine.ErrAlreadyExists) {
			conflicts++
			continue
		}
		if err != nil {
			return engine.Classify("authorized_give_permission", err)
		}
	}
	if conflicts == len(datasetIDs) {
		return engine.E("authorized_give_permission", engine.KindAlreadyExists,
			fmt.Errorf("%s already granted to %s", perm, principalID))
	}
	return nil
}

func (e *Engine) Prune(ctx context.Context) error {
	return engine.Classify("prune", e.store.Reset(ctx))
}

func (e *Engine) principal(ctx context.Context, userID uuid.UUID) (Principal, error) {
	roles, tenants, err := e.store.Memberships(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	ids := make([]uuid.UUID, 0, 1+len(roles)+len(tenants))
	ids = append(ids, userID)
	ids = append(ids, roles...)
	ids = append(ids, tenants...)
	grants, err := e.store.GrantsFor(ctx, ids)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(userID, roles, tenants, grants), nil
}
