package demo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kgrbac.org/internal/audit"
	"kgrbac.org/internal/engine"
)

// User keys.
const (
	AlphaAnalyst    = "alpha_analyst"
	AlphaCompliance = "alpha_compliance"
	BetaAnalyst     = "beta_analyst"
)

// Identity is a fixed demo account.
type Identity struct {
	Key      string
	Email    string
	Password string
	Display  string
}

// DemoUsers are created in this order.
var DemoUsers = []Identity{
	{Key: AlphaAnalyst, Email: "alice.analyst@alphafund.demo", Password: "alpha-pass", Display: "Alice (Alpha Analyst)"},
	{Key: AlphaCompliance, Email: "charlie.compliance@alphafund.demo", Password: "alpha-pass", Display: "Charlie (Alpha Compliance)"},
	{Key: BetaAnalyst, Email: "bob.analyst@betapartners.demo", Password: "beta-pass", Display: "Bob (Beta Analyst)"},
}

// IdentityByKey looks up a demo identity.
func IdentityByKey(key string) (Identity, bool) {
	for _, id := range DemoUsers {
		if id.Key == key {
			return id, true
		}
	}
	return Identity{}, false
}

// Org is one simulated organization.
type Org struct {
	Key     string
	Tenant  string
	Role    string
	Owner   string
	Members []string
	Dataset string
}

// Org keys.
const (
	OrgAlpha = "alpha"
	OrgBeta  = "beta"
)

// Orgs lists the organizations in setup order.
var Orgs = []Org{
	{Key: OrgAlpha, Tenant: "AlphaCapital", Role: "AlphaDueDiligence", Owner: AlphaAnalyst, Members: []string{AlphaAnalyst, AlphaCompliance}, Dataset: AlphaDDQ},
	{Key: OrgBeta, Tenant: "BetaPartners", Role: "BetaDueDiligence", Owner: BetaAnalyst, Members: []string{BetaAnalyst}, Dataset: BetaDDQ},
}

// OrgState holds the engine ids of an organization's tenant and role.
type OrgState struct {
	TenantID uuid.UUID
	RoleID   uuid.UUID
}

func createOrGetUser(ctx context.Context, eng engine.Engine, id Identity) (engine.User, error) {
	u, err := eng.CreateUser(ctx, engine.NewUser{Email: id.Email, Password: id.Password, IsVerified: true, IsActive: true})
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, engine.ErrAlreadyExists) {
		return engine.User{}, err
	}
	return eng.UserByEmail(ctx, id.Email)
}

// BootstrapUsers creates every demo identity, reusing existing accounts.
func (h *Harness) BootstrapUsers(ctx context.Context) (map[string]engine.User, error) {
	users := make(map[string]engine.User, len(DemoUsers))
	for _, id := range DemoUsers {
		u, err := createOrGetUser(ctx, h.Engine, id)
		if err != nil {
			return nil, fmt.Errorf("bootstrap %s: %w", id.Email, err)
		}
		users[id.Key] = u
		h.report().Info("User ready: %s (%s)", id.Display, id.Email)
	}
	return users, nil
}

// SetupTenantsAndRoles creates each org's tenant and role and adds its members.
func (h *Harness) SetupTenantsAndRoles(ctx context.Context, users map[string]engine.User) (map[string]OrgState, error) {
	out := make(map[string]OrgState, len(Orgs))
	for _, org := range Orgs {
		owner, ok := users[org.Owner]
		if !ok {
			return nil, fmt.Errorf("org %s: owner %s not bootstrapped", org.Key, org.Owner)
		}
		tenant, err := h.Engine.CreateTenant(ctx, org.Tenant, owner.ID)
		if errors.Is(err, engine.ErrAlreadyExists) {
			tenant, err = h.Engine.TenantByName(ctx, org.Tenant)
		}
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", org.Tenant, err)
		}
		role, err := h.Engine.CreateRole(ctx, org.Role, owner.ID)
		if errors.Is(err, engine.ErrAlreadyExists) {
			role, err = h.Engine.RoleByName(ctx, org.Role, owner.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", org.Role, err)
		}

		for _, key := range org.Members {
			member, ok := users[key]
			if !ok {
				return nil, fmt.Errorf("org %s: member %s not bootstrapped", org.Key, key)
			}
			joinedTenant, err := created(h.Engine.AddUserToTenant(ctx, member.ID, tenant.ID, owner.ID))
			if err != nil {
				return nil, fmt.Errorf("add %s to %s: %w", member.Email, org.Tenant, err)
			}
			joinedRole, err := created(h.Engine.AddUserToRole(ctx, member.ID, role.ID, owner.ID))
			if err != nil {
				return nil, fmt.Errorf("add %s to %s: %w", member.Email, org.Role, err)
			}
			if !joinedTenant && !joinedRole {
				continue
			}
			_ = audit.LogEvent(audit.WithActor(ctx, owner.Email), audit.EventMembership, map[string]any{
				"member": member.Email,
				"tenant": org.Tenant,
				"role":   org.Role,
			})
		}
		out[org.Key] = OrgState{TenantID: tenant.ID, RoleID: role.ID}
	}
	h.report().Info("Tenants and roles configured.")
	return out, nil
}

func ignoreExists(err error) error {
	if errors.Is(err, engine.ErrAlreadyExists) {
		return nil
	}
	return err
}

// created reports whether a write took effect. Already-exists is not an error.
func created(err error) (bool, error) {
	if errors.Is(err, engine.ErrAlreadyExists) {
		return false, nil
	}
	return err == nil, err
}
