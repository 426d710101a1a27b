// Package demo drives the two-organization RBAC walkthrough against an engine.
package demo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"kgrbac.org/internal/audit"
	"kgrbac.org/internal/engine"
	"kgrbac.org/internal/extract"
)

// Harness holds what the walkthrough needs to talk to an engine.
type Harness struct {
	Engine   engine.Engine
	Reporter Reporter
	// DataDir is the root that DatasetFiles are resolved against.
	DataDir string
	// LoadText reads a dataset source. Defaults to extract.PDFText.
	LoadText func(path string) (string, error)
}

func (h *Harness) report() Reporter {
	if h.Reporter == nil {
		return Discard{}
	}
	return h.Reporter
}

func (h *Harness) loadText(path string) (string, error) {
	if h.LoadText != nil {
		return h.LoadText(path)
	}
	return extract.PDFText(path)
}

// Options controls BuildState.
type Options struct {
	// Reset prunes engine storage before bootstrapping.
	Reset bool
	// RunPlaybook executes the scripted queries after setup.
	RunPlaybook bool
	// Question overrides PocPrompt for the playbook.
	Question string
}

// State is everything later queries need.
type State struct {
	Users      map[string]engine.User
	Orgs       map[string]OrgState
	Datasets   map[string]uuid.UUID
	QueryRuns  []Payload
	BetaShared bool
}

// User returns the engine user for a demo key.
func (s *State) User(key string) (engine.User, error) {
	u, ok := s.Users[key]
	if !ok {
		return engine.User{}, fmt.Errorf("unknown demo user %q", key)
	}
	return u, nil
}

// DatasetIDs resolves dataset names to engine ids in order.
func (s *State) DatasetIDs(names []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		id, ok := s.Datasets[name]
		if !ok {
			return nil, fmt.Errorf("unknown dataset %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// BuildState bootstraps identities, ingests both datasets and assigns
// org-level permissions, optionally running the playbook afterwards.
func (h *Harness) BuildState(ctx context.Context, opts Options) (*State, error) {
	if opts.Reset {
		h.report().Step("Resetting engine storage and user tables...")
		if err := h.Engine.Prune(ctx); err != nil {
			return nil, fmt.Errorf("reset: %w", err)
		}
		_ = audit.LogEvent(ctx, audit.EventReset, nil)
	}
	users, err := h.BootstrapUsers(ctx)
	if err != nil {
		return nil, err
	}
	orgs, err := h.SetupTenantsAndRoles(ctx, users)
	if err != nil {
		return nil, err
	}
	datasets, err := h.IngestDatasets(ctx, users)
	if err != nil {
		return nil, err
	}
	if err := h.AssignOrgPermissions(ctx, users, orgs, datasets); err != nil {
		return nil, err
	}
	st := &State{Users: users, Orgs: orgs, Datasets: datasets}
	if opts.RunPlaybook {
		question := opts.Question
		if question == "" {
			question = PocPrompt
		}
		if err := h.Playbook(ctx, st, question); err != nil {
			return st, err
		}
	}
	return st, nil
}

// EnsureShare runs EnsureBetaShare for st and records the result.
func (h *Harness) EnsureShare(ctx context.Context, st *State) error {
	if _, err := h.EnsureBetaShare(ctx, st.Users, st.Orgs, st.Datasets); err != nil {
		return err
	}
	st.BetaShared = true
	return nil
}

// Playbook runs the scripted queries, sharing Beta's dataset with Alpha
// after the unauthorized attempt. Payloads are appended to st.QueryRuns.
func (h *Harness) Playbook(ctx context.Context, st *State, question string) error {
	alphaScope := []uuid.UUID{st.Datasets[AlphaDDQ]}
	betaScope := []uuid.UUID{st.Datasets[BetaDDQ]}
	merged := append(append([]uuid.UUID{}, alphaScope...), betaScope...)

	run := func(userKey, label string, scope []uuid.UUID) error {
		u, err := st.User(userKey)
		if err != nil {
			return err
		}
		p, err := h.RunQuery(ctx, u, label, question, scope)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		st.QueryRuns = append(st.QueryRuns, p)
		return nil
	}

	if err := run(AlphaAnalyst, "Alpha analyst (isolated)", alphaScope); err != nil {
		return err
	}
	if err := run(BetaAnalyst, "Beta analyst (isolated)", betaScope); err != nil {
		return err
	}
	h.report().Step("Attempting to force Beta dataset as Alpha analyst (should fail)...")
	if err := run(AlphaAnalyst, "Alpha analyst unauthorized", betaScope); err != nil {
		return err
	}

	h.report().Step("Granting Beta DDQ read access to Alpha role (cross-org sharing)...")
	if err := h.EnsureShare(ctx, st); err != nil {
		return err
	}

	if err := run(AlphaAnalyst, "Alpha analyst on Beta after share", betaScope); err != nil {
		return err
	}
	if err := run(AlphaAnalyst, "Alpha analyst with shared Beta graph", merged); err != nil {
		return err
	}
	return run(AlphaCompliance, "Alpha compliance", merged)
}
