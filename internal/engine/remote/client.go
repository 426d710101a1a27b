// Package remote implements engine.Engine against a Cognee-style REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kgrbac.org/internal/engine"
)

// tokenSkew refreshes tokens shortly before they expire.
const tokenSkew = 30 * time.Second

type credential struct {
	email    string
	password string
	token    string
	expires  time.Time
}

// Client talks to the engine over HTTP. Users created or looked up through the
// client are remembered so later calls can act on their behalf.
type Client struct {
	base string
	http *http.Client
	now  func() time.Time

	mu      sync.Mutex
	byEmail map[string]*credential
	byID    map[uuid.UUID]*credential
	tenants map[string]engine.Tenant
	roles   map[string]engine.Role
}

var _ engine.Engine = (*Client)(nil)

// New returns a client for baseURL (for example http://localhost:8000).
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		now:     time.Now,
		byEmail: map[string]*credential{},
		byID:    map[uuid.UUID]*credential{},
		tenants: map[string]engine.Tenant{},
		roles:   map[string]engine.Role{},
	}
}

type userDTO struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"is_verified"`
	IsActive   bool      `json:"is_active"`
}

func (u userDTO) user() engine.User {
	return engine.User{ID: u.ID, Email: u.Email, IsVerified: u.IsVerified, IsActive: u.IsActive}
}

func (c *Client) CreateUser(ctx context.Context, in engine.NewUser) (engine.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	c.remember(email, in.Password)

	var out userDTO
	err := c.do(ctx, "create_user", http.MethodPost, "/api/v1/auth/register", "", jsonBody(map[string]any{
		"email":       email,
		"password":    in.Password,
		"is_verified": in.IsVerified,
		"is_active":   in.IsActive,
	}), &out)
	if err != nil {
		return engine.User{}, err
	}
	c.bind(email, out.ID)
	return out.user(), nil
}

func (c *Client) UserByEmail(ctx context.Context, email string) (engine.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	token, err := c.tokenFor(ctx, email)
	if err != nil {
		return engine.User{}, err
	}
	var out userDTO
	if err := c.do(ctx, "user_by_email", http.MethodGet, "/api/v1/auth/me", token, nil, &out); err != nil {
		return engine.User{}, err
	}
	c.bind(email, out.ID)
	return out.user(), nil
}

func (c *Client) CreateTenant(ctx context.Context, name string, ownerID uuid.UUID) (engine.Tenant, error) {
	token, err := c.tokenForID(ctx, "create_tenant", ownerID)
	if err != nil {
		return engine.Tenant{}, err
	}
	var out struct {
		TenantID uuid.UUID `json:"tenant_id"`
	}
	path := "/api/v1/permissions/tenants?" + url.Values{"tenant_name": {name}}.Encode()
	if err := c.do(ctx, "create_tenant", http.MethodPost, path, token, nil, &out); err != nil {
		return engine.Tenant{}, err
	}
	t := engine.Tenant{ID: out.TenantID, Name: name, OwnerID: ownerID}
	c.mu.Lock()
	c.tenants[name] = t
	c.mu.Unlock()
	return t, nil
}

// TenantByName only knows tenants created through this client; the API has no lookup.
func (c *Client) TenantByName(_ context.Context, name string) (engine.Tenant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tenants[name]
	if !ok {
		return engine.Tenant{}, engine.E("tenant_by_name", engine.KindNotFound, fmt.Errorf("tenant %s unknown to this client", name))
	}
	return t, nil
}

func (c *Client) AddUserToTenant(ctx context.Context, userID, tenantID, ownerID uuid.UUID) error {
	token, err := c.tokenForID(ctx, "add_user_to_tenant", ownerID)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/api/v1/permissions/users/%s/tenants?%s", userID, url.Values{"tenant_id": {tenantID.String()}}.Encode())
	return c.do(ctx, "add_user_to_tenant", http.MethodPost, path, token, nil, nil)
}

func (c *Client) CreateRole(ctx context.Context, name string, ownerID uuid.UUID) (engine.Role, error) {
	token, err := c.tokenForID(ctx, "create_role", ownerID)
	if err != nil {
		return engine.Role{}, err
	}
	var out struct {
		RoleID uuid.UUID `json:"role_id"`
	}
	path := "/api/v1/permissions/roles?" + url.Values{"role_name": {name}}.Encode()
	if err := c.do(ctx, "create_role", http.MethodPost, path, token, nil, &out); err != nil {
		return engine.Role{}, err
	}
	r := engine.Role{ID: out.RoleID, Name: name, OwnerID: ownerID}
	c.mu.Lock()
	c.roles[roleKey(name, ownerID)] = r
	c.mu.Unlock()
	return r, nil
}

// RoleByName only knows roles created through this client.
func (c *Client) RoleByName(_ context.Context, name string, ownerID uuid.UUID) (engine.Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.roles[roleKey(name, ownerID)]
	if !ok {
		return engine.Role{}, engine.E("role_by_name", engine.KindNotFound, fmt.Errorf("role %s unknown to this client", name))
	}
	return r, nil
}

func roleKey(name string, owner uuid.UUID) string { return owner.String() + "/" + name }

func (c *Client) AddUserToRole(ctx context.Context, userID, roleID, ownerID uuid.UUID) error {
	token, err := c.tokenForID(ctx, "add_user_to_role", ownerID)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/api/v1/permissions/users/%s/roles?%s", userID, url.Values{"role_id": {roleID.String()}}.Encode())
	return c.do(ctx, "add_user_to_role", http.MethodPost, path, token, nil, nil)
}

func (c *Client) Add(ctx context.Context, user engine.User, dataset string, docs []string) error {
	token, err := c.tokenForID(ctx, "add", user.ID)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, doc := range docs {
		fw, err := mw.CreateFormFile("data", fmt.Sprintf("%s_%d.txt", dataset, i+1))
		if err != nil {
			return engine.E("add", engine.KindUnknown, err)
		}
		if _, err := io.WriteString(fw, doc); err != nil {
			return engine.E("add", engine.KindUnknown, err)
		}
	}
	if err := mw.WriteField("datasetName", dataset); err != nil {
		return engine.E("add", engine.KindUnknown, err)
	}
	if err := mw.Close(); err != nil {
		return engine.E("add", engine.KindUnknown, err)
	}
	return c.do(ctx, "add", http.MethodPost, "/api/v1/add", token, &body{r: &buf, contentType: mw.FormDataContentType()}, nil)
}

func (c *Client) Cognify(ctx context.Context, user engine.User, datasets []string) (engine.CognifyResult, error) {
	token, err := c.tokenForID(ctx, "cognify", user.ID)
	if err != nil {
		return engine.CognifyResult{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, "cognify", http.MethodPost, "/api/v1/cognify", token, jsonBody(map[string]any{"datasets": datasets}), &raw); err != nil {
		return engine.CognifyResult{}, err
	}
	return engine.DecodeCognifyResult(raw)
}

func (c *Client) GivePermissionOnDataset(ctx context.Context, principalID, datasetID uuid.UUID, perm engine.Permission) error {
	// The API only exposes owner-authorized grants, so the principal acts for itself.
	return c.grant(ctx, "give_permission", principalID, []uuid.UUID{datasetID}, perm, principalID)
}

func (c *Client) AuthorizedGivePermissionOnDatasets(ctx context.Context, principalID uuid.UUID, datasetIDs []uuid.UUID, perm engine.Permission, ownerID uuid.UUID) error {
	return c.grant(ctx, "authorized_give_permission", principalID, datasetIDs, perm, ownerID)
}

func (c *Client) grant(ctx context.Context, op string, principalID uuid.UUID, datasetIDs []uuid.UUID, perm engine.Permission, actor uuid.UUID) error {
	perm, err := engine.ParsePermission(string(perm))
	if err != nil {
		return err
	}
	token, err := c.tokenForID(ctx, op, actor)
	if err != nil {
		return err
	}
	ids := make([]string, len(datasetIDs))
	for i, id := range datasetIDs {
		ids[i] = id.String()
	}
	path := fmt.Sprintf("/api/v1/permissions/datasets/%s?%s", principalID, url.Values{"permission_name": {string(perm)}}.Encode())
	return c.do(ctx, op, http.MethodPost, path, token, jsonBody(ids), nil)
}

func (c *Client) Search(ctx context.Context, user engine.User, req engine.SearchRequest) ([]engine.SearchResult, error) {
	token, err := c.tokenForID(ctx, "search", user.ID)
	if err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = engine.SearchGraphCompletion
	}
	payload := map[string]any{
		"searchType": string(req.Type),
		"query":      req.Query,
	}
	if len(req.DatasetIDs) > 0 {
		payload["datasetIds"] = req.DatasetIDs
	}
	if req.TopK > 0 {
		payload["topK"] = req.TopK
	}
	var out []engine.SearchResult
	if err := c.do(ctx, "search", http.MethodPost, "/api/v1/search", token, jsonBody(payload), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Prune deletes every dataset visible to the users known to this client.
func (c *Client) Prune(ctx context.Context) error {
	c.mu.Lock()
	ids := make([]uuid.UUID, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, uid := range ids {
		token, err := c.tokenForID(ctx, "prune", uid)
		if err != nil {
			return err
		}
		var datasets []engine.Dataset
		if err := c.do(ctx, "prune", http.MethodGet, "/api/v1/datasets", token, nil, &datasets); err != nil {
			return err
		}
		for _, ds := range datasets {
			if ds.OwnerID != uuid.Nil && ds.OwnerID != uid {
				continue
			}
			err := c.do(ctx, "prune", http.MethodDelete, "/api/v1/datasets/"+ds.ID.String(), token, nil, nil)
			if err != nil && !errors.Is(err, engine.ErrNotFound) {
				return err
			}
		}
	}
	c.mu.Lock()
	c.tenants = map[string]engine.Tenant{}
	c.roles = map[string]engine.Role{}
	c.mu.Unlock()
	return nil
}
