package demo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"kgrbac.org/internal/engine"
)

// Shared lets several front ends build state against one engine. Builds are
// serialized, and the engine is pruned at most once, on the first build,
// when Reset is set. Later builds reuse what is already stored, so states
// handed out earlier stay valid.
type Shared struct {
	Harness *Harness
	Reset   bool

	mu     sync.Mutex
	pruned bool
}

// BuildState builds a fresh State. opts.Reset is ignored.
func (s *Shared) BuildState(ctx context.Context, opts Options) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts.Reset = s.Reset && !s.pruned
	st, err := s.Harness.BuildState(ctx, opts)
	if err == nil {
		s.pruned = true
	}
	return st, err
}

// EnsureShare shares Beta's dataset with Alpha's role for st.
func (s *Shared) EnsureShare(ctx context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Harness.EnsureShare(ctx, st)
}

// RunQuery runs one query without taking the build lock.
func (s *Shared) RunQuery(ctx context.Context, user engine.User, label, question string, datasetIDs []uuid.UUID) (Payload, error) {
	return s.Harness.RunQuery(ctx, user, label, question, datasetIDs)
}
