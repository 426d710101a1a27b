package local

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"kgrbac.org/internal/engine"
)

type fixture struct {
	eng   *Engine
	alice engine.User
	bob   engine.User
	alpha engine.Role
	beta  engine.Role
	aDS   uuid.UUID
	bDS   uuid.UUID
}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	opts.BcryptCost = bcrypt.MinCost
	return New(NewMemoryStore(), opts)
}

func mustUser(t *testing.T, eng *Engine, email string) engine.User {
	t.Helper()
	u, err := eng.CreateUser(context.Background(), engine.NewUser{Email: email, Password: "pw", IsVerified: true, IsActive: true})
	require.NoError(t, err)
	return u
}

func ingest(t *testing.T, eng *Engine, owner engine.User, name, text string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, eng.Add(ctx, owner, name, []string{text}))
	res, err := eng.Cognify(ctx, owner, []string{name})
	require.NoError(t, err)
	id, ok := res.FirstDatasetID()
	require.True(t, ok)
	require.NoError(t, eng.GivePermissionOnDataset(ctx, owner.ID, id, engine.PermShare))
	return id
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	eng := newEngine(t, Options{AccessControl: true})
	f := fixture{eng: eng}
	f.alice = mustUser(t, eng, "alice@alpha.test")
	f.bob = mustUser(t, eng, "bob@beta.test")

	var err error
	f.alpha, err = eng.CreateRole(ctx, "AlphaDueDiligence", f.alice.ID)
	require.NoError(t, err)
	f.beta, err = eng.CreateRole(ctx, "BetaDueDiligence", f.bob.ID)
	require.NoError(t, err)
	require.NoError(t, eng.AddUserToRole(ctx, f.alice.ID, f.alpha.ID, f.alice.ID))
	require.NoError(t, eng.AddUserToRole(ctx, f.bob.ID, f.beta.ID, f.bob.ID))

	f.aDS = ingest(t, eng, f.alice, "ALPHA_DDQ", "Alpha Fund remediation: phishing training was rolled out after the Q2 incident.")
	f.bDS = ingest(t, eng, f.bob, "BETA_DDQ", "Beta Partners privacy oversight is owned by the chief compliance officer.")

	require.NoError(t, eng.AuthorizedGivePermissionOnDatasets(ctx, f.alpha.ID, []uuid.UUID{f.aDS}, engine.PermRead, f.alice.ID))
	require.NoError(t, eng.AuthorizedGivePermissionOnDatasets(ctx, f.beta.ID, []uuid.UUID{f.bDS}, engine.PermRead, f.bob.ID))
	return f
}

func search(f fixture, user engine.User, ids ...uuid.UUID) ([]engine.SearchResult, error) {
	return f.eng.Search(context.Background(), user, engine.SearchRequest{
		Type:       engine.SearchGraphCompletion,
		Query:      "Who handles privacy oversight and phishing remediation?",
		DatasetIDs: ids,
	})
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	eng := newEngine(t, Options{})
	u := mustUser(t, eng, "Alice@Alpha.test")

	_, err := eng.CreateUser(context.Background(), engine.NewUser{Email: "alice@alpha.test", Password: "x"})
	require.ErrorIs(t, err, engine.ErrAlreadyExists)

	got, err := eng.UserByEmail(context.Background(), "ALICE@alpha.test")
	require.NoError(t, err)
	require.Equal(t, u, got)

	_, err = eng.UserByEmail(context.Background(), "nobody@alpha.test")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestMembershipsAreIdempotentAndOwnerChecked(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, Options{})
	owner := mustUser(t, eng, "owner@alpha.test")
	member := mustUser(t, eng, "member@alpha.test")

	tenant, err := eng.CreateTenant(ctx, "AlphaCapital", owner.ID)
	require.NoError(t, err)
	_, err = eng.CreateTenant(ctx, "AlphaCapital", owner.ID)
	require.ErrorIs(t, err, engine.ErrAlreadyExists)
	reused, err := eng.TenantByName(ctx, "AlphaCapital")
	require.NoError(t, err)
	require.Equal(t, tenant, reused)

	require.ErrorIs(t, eng.AddUserToTenant(ctx, owner.ID, tenant.ID, owner.ID), engine.ErrAlreadyExists)
	require.NoError(t, eng.AddUserToTenant(ctx, member.ID, tenant.ID, owner.ID))
	require.ErrorIs(t, eng.AddUserToTenant(ctx, member.ID, tenant.ID, owner.ID), engine.ErrAlreadyExists)

	role, err := eng.CreateRole(ctx, "AlphaDueDiligence", owner.ID)
	require.NoError(t, err)
	require.ErrorIs(t, eng.AddUserToRole(ctx, member.ID, role.ID, member.ID), engine.ErrPermissionDenied)
	require.NoError(t, eng.AddUserToRole(ctx, member.ID, role.ID, owner.ID))
	require.ErrorIs(t, eng.AddUserToRole(ctx, member.ID, role.ID, owner.ID), engine.ErrAlreadyExists)
}

func TestSearchDeniedWithoutReadGrant(t *testing.T) {
	f := newFixture(t)

	res, err := search(f, f.alice, f.bDS)
	require.ErrorIs(t, err, engine.ErrPermissionDenied)
	require.Empty(t, res)
	require.Contains(t, err.Error(), f.bDS.String())

	// Unknown datasets are indistinguishable from unreadable ones.
	_, err = search(f, f.alice, uuid.New())
	require.ErrorIs(t, err, engine.ErrPermissionDenied)
}

func TestSearchOwnDataset(t *testing.T) {
	f := newFixture(t)

	res, err := search(f, f.alice, f.aDS)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "ALPHA_DDQ", res[0].DatasetName)
	require.Contains(t, res[0].SearchResult[0], "phishing training")
}

func TestShareGrantsAccessAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := search(f, f.alice, f.aDS, f.bDS)
	require.ErrorIs(t, err, engine.ErrPermissionDenied)

	require.NoError(t, f.eng.AuthorizedGivePermissionOnDatasets(ctx, f.alpha.ID, []uuid.UUID{f.bDS}, engine.PermRead, f.bob.ID))
	err = f.eng.AuthorizedGivePermissionOnDatasets(ctx, f.alpha.ID, []uuid.UUID{f.bDS}, engine.PermRead, f.bob.ID)
	require.ErrorIs(t, err, engine.ErrAlreadyExists)

	res, err := search(f, f.alice, f.aDS, f.bDS)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, f.aDS, res[0].DatasetID)
	require.Equal(t, f.bDS, res[1].DatasetID)
}

func TestAuthorizedGrantRequiresShare(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Alice cannot re-share Beta's dataset: she holds no share grant on it.
	err := f.eng.AuthorizedGivePermissionOnDatasets(ctx, f.alpha.ID, []uuid.UUID{f.bDS}, engine.PermRead, f.alice.ID)
	require.ErrorIs(t, err, engine.ErrPermissionDenied)

	err = f.eng.AuthorizedGivePermissionOnDatasets(ctx, f.alpha.ID, []uuid.UUID{f.aDS}, engine.Permission("admin"), f.alice.ID)
	require.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestSearchDefaultScopeIsReadableDatasets(t *testing.T) {
	f := newFixture(t)

	res, err := search(f, f.bob)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, f.bDS, res[0].DatasetID)
}

func TestSearchWithoutAccessControl(t *testing.T) {
	f := newFixture(t)
	f.eng.opts.AccessControl = false

	res, err := search(f, f.alice, f.bDS)
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestSearchNoMatchReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	res, err := f.eng.Search(context.Background(), f.alice, engine.SearchRequest{Query: "zebra xylophone", DatasetIDs: []uuid.UUID{f.aDS}})
	require.NoError(t, err)
	require.Empty(t, res)
}

type stubCompleter struct {
	prompt string
	err    error
}

func (s *stubCompleter) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return " generated answer ", s.err
}

func TestSearchUsesCompleter(t *testing.T) {
	f := newFixture(t)
	stub := &stubCompleter{}
	f.eng.opts.Completer = stub

	res, err := search(f, f.alice, f.aDS)
	require.NoError(t, err)
	require.Equal(t, []string{"generated answer"}, res[0].SearchResult)
	require.True(t, strings.Contains(stub.prompt, "Question:"))

	stub.err = errors.New("quota")
	_, err = search(f, f.alice, f.aDS)
	require.ErrorIs(t, err, engine.ErrUnavailable)
}

func TestAddRejectsEmptyAndForeignWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.ErrorIs(t, f.eng.Add(ctx, f.alice, "ALPHA_DDQ", []string{"  "}), engine.ErrInvalidInput)
	// Bob writing a dataset named ALPHA_DDQ creates his own, separate dataset.
	require.NoError(t, f.eng.Add(ctx, f.bob, "ALPHA_DDQ", []string{"bob text"}))
	res, err := f.eng.Cognify(ctx, f.bob, []string{"ALPHA_DDQ"})
	require.NoError(t, err)
	id, ok := res.FirstDatasetID()
	require.True(t, ok)
	require.NotEqual(t, f.aDS, id)
}

func TestAddSkipsStoredDocuments(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	eng := New(store, Options{AccessControl: true, BcryptCost: bcrypt.MinCost})
	alice := mustUser(t, eng, "alice@alpha.test")

	id := ingest(t, eng, alice, "ALPHA_DDQ", "The Chief Compliance Officer owns privacy oversight.")
	passages, err := store.Passages(ctx, id)
	require.NoError(t, err)

	require.NoError(t, eng.Add(ctx, alice, "ALPHA_DDQ", []string{"The Chief Compliance Officer owns privacy oversight.", "MFA is enforced."}))
	_, err = eng.Cognify(ctx, alice, []string{"ALPHA_DDQ"})
	require.NoError(t, err)

	docs, err := store.Documents(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{"The Chief Compliance Officer owns privacy oversight.", "MFA is enforced."}, docs)
	again, err := store.Passages(ctx, id)
	require.NoError(t, err)
	require.Len(t, again, len(passages)+1)
}

func TestPruneClearsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.eng.Prune(ctx))
	_, err := f.eng.UserByEmail(ctx, f.alice.Email)
	require.ErrorIs(t, err, engine.ErrNotFound)
}
