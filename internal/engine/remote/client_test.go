package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgrbac.org/internal/engine"
)

type fakeAPI struct {
	userID   uuid.UUID
	logins   atomic.Int32
	tokenTTL time.Duration
	lastAuth atomic.Value
	search   func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeAPI) token(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   f.userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(f.tokenTTL)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["email"] == "taken@demo" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"REGISTER_USER_ALREADY_EXISTS"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": f.userID, "email": in["email"], "is_verified": true, "is_active": true})
	})
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		if r.FormValue("password") != "pw" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"LOGIN_BAD_CREDENTIALS"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": f.token(t), "token_type": "bearer"})
	})
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": f.userID, "email": "alice@demo"})
	})
	mux.HandleFunc("POST /api/v1/permissions/tenants", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth.Store(r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "Tenant created.", "tenant_id": uuid.New()})
	})
	mux.HandleFunc("POST /api/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if f.search != nil {
			f.search(w, r)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"no read permission"}`))
	})
	mux.HandleFunc("POST /api/v1/cognify", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"b2f1c0de-0000-4000-8000-000000000002":{"status":"completed"},"a1f1c0de-0000-4000-8000-000000000001":{"status":"completed"}}`))
	})
	return mux
}

func newFake(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	f := &fakeAPI{userID: uuid.New(), tokenTTL: time.Hour}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client()), f
}

func TestCreateUserThenCachesToken(t *testing.T) {
	c, f := newFake(t)
	ctx := context.Background()

	u, err := c.CreateUser(ctx, engine.NewUser{Email: "Alice@Demo", Password: "pw", IsVerified: true, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, f.userID, u.ID)
	assert.Equal(t, "alice@demo", u.Email)

	_, err = c.CreateTenant(ctx, "AlphaCapital", u.ID)
	require.NoError(t, err)
	_, err = c.CreateTenant(ctx, "Other", u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.logins.Load())
	assert.Contains(t, f.lastAuth.Load(), "Bearer ")

	tenant, err := c.TenantByName(ctx, "AlphaCapital")
	require.NoError(t, err)
	assert.Equal(t, "AlphaCapital", tenant.Name)
}

func TestExpiredTokenTriggersLogin(t *testing.T) {
	c, f := newFake(t)
	f.tokenTTL = 10 * time.Second // inside the refresh skew
	ctx := context.Background()

	u, err := c.CreateUser(ctx, engine.NewUser{Email: "alice@demo", Password: "pw"})
	require.NoError(t, err)
	_, err = c.CreateTenant(ctx, "A", u.ID)
	require.NoError(t, err)
	_, err = c.CreateTenant(ctx, "B", u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.logins.Load())
}

func TestStatusMapping(t *testing.T) {
	c, _ := newFake(t)
	ctx := context.Background()

	_, err := c.CreateUser(ctx, engine.NewUser{Email: "taken@demo", Password: "pw"})
	assert.ErrorIs(t, err, engine.ErrAlreadyExists)

	u, err := c.CreateUser(ctx, engine.NewUser{Email: "alice@demo", Password: "pw"})
	require.NoError(t, err)
	_, err = c.Search(ctx, u, engine.SearchRequest{Query: "q", DatasetIDs: []uuid.UUID{uuid.New()}})
	assert.ErrorIs(t, err, engine.ErrPermissionDenied)

	_, err = c.TenantByName(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = c.Search(ctx, engine.User{ID: uuid.New()}, engine.SearchRequest{Query: "q"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestBadPasswordIsInvalidInput(t *testing.T) {
	c, _ := newFake(t)
	c.remember("alice@demo", "wrong")
	_, err := c.UserByEmail(context.Background(), "alice@demo")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestSearchSendsCamelCaseBody(t *testing.T) {
	c, f := newFake(t)
	ds := uuid.New()
	var got map[string]any
	f.search = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"dataset_id":    ds,
			"dataset_name":  "ALPHA_DDQ",
			"search_result": []string{"Phishing remediation completed."},
		}})
	}
	ctx := context.Background()
	u, err := c.CreateUser(ctx, engine.NewUser{Email: "alice@demo", Password: "pw"})
	require.NoError(t, err)

	res, err := c.Search(ctx, u, engine.SearchRequest{Query: "phishing", DatasetIDs: []uuid.UUID{ds}, TopK: 5})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "ALPHA_DDQ", res[0].DatasetName)
	assert.Equal(t, "GRAPH_COMPLETION", got["searchType"])
	assert.EqualValues(t, 5, got["topK"])
	assert.Equal(t, []any{ds.String()}, got["datasetIds"])
}

func TestCognifyKeepsKeyOrder(t *testing.T) {
	c, _ := newFake(t)
	ctx := context.Background()
	u, err := c.CreateUser(ctx, engine.NewUser{Email: "alice@demo", Password: "pw"})
	require.NoError(t, err)

	res, err := c.Cognify(ctx, u, []string{"ALPHA_DDQ"})
	require.NoError(t, err)
	id, ok := res.FirstDatasetID()
	require.True(t, ok)
	assert.Equal(t, "b2f1c0de-0000-4000-8000-000000000002", id.String())
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(srv.URL, nil)
	_, err := c.CreateUser(context.Background(), engine.NewUser{Email: "a@demo", Password: "pw"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrUnavailable))
}
