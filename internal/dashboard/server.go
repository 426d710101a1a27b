// Package dashboard serves the interactive scenario picker over HTTP.
package dashboard

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"kgrbac.org/internal/audit"
	"kgrbac.org/internal/demo"
	"kgrbac.org/internal/engine"
	"kgrbac.org/internal/httpapi"
	"kgrbac.org/internal/obs"
	"kgrbac.org/internal/scenario"
)

// Backend is the part of demo.Shared the dashboard drives. Every session
// builds its own State; the backend decides whether a build prunes.
type Backend interface {
	BuildState(ctx context.Context, opts demo.Options) (*demo.State, error)
	EnsureShare(ctx context.Context, st *demo.State) error
	RunQuery(ctx context.Context, user engine.User, label, question string, datasetIDs []uuid.UUID) (demo.Payload, error)
}

// Config configures Server.
type Config struct {
	Version string
	// SessionSecret signs session cookies. Empty generates a per-process key.
	SessionSecret string
	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   int
}

// Server is the dashboard HTTP handler.
type Server struct {
	backend   Backend
	scenarios scenario.Set
	sessions  *sessionStore
	cfg       Config

	built sync.Once
	ready chan struct{}

	mux *http.ServeMux
}

// New wires the routes.
func New(backend Backend, scenarios scenario.Set, cfg Config) (*Server, error) {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("session secret: %w", err)
		}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	s := &Server{
		backend:   backend,
		scenarios: scenarios,
		sessions:  newSessionStore(secret),
		cfg:       cfg,
		ready:     make(chan struct{}),
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /share", s.handleShare)
	s.mux.HandleFunc("POST /query", s.handleQuery)
	s.mux.HandleFunc("POST /reset", s.handleReset)
	httpapi.Probes{Service: "kgrbac-dashboard", Version: cfg.Version, Ready: httpapi.ProbeFunc(s.checkReady)}.Mount(s.mux)
	return s, nil
}

// Handler returns the mux behind the standard middleware chain.
func (s *Server) Handler() http.Handler {
	return httpapi.Chain(s.mux, s.cfg.MaxBodyBytes, s.cfg.RateBurst, s.cfg.RatePerSec)
}

// Ready is closed once any session has built demo state.
func (s *Server) Ready() <-chan struct{} { return s.ready }

func (s *Server) checkReady(context.Context) error {
	select {
	case <-s.ready:
		return nil
	default:
		return errors.New("demo state not built yet")
	}
}

// ensureState builds the session's state on first use. Callers hold sess.mu.
func (s *Server) ensureState(ctx context.Context, sess *Session) (bool, error) {
	if sess.state != nil {
		return false, nil
	}
	st, err := s.backend.BuildState(ctx, demo.Options{})
	if err != nil {
		return false, err
	}
	sess.state = st
	s.built.Do(func() { close(s.ready) })
	obs.Info("session_state_built", map[string]any{"session_id": sess.ID})
	return true, nil
}

func (s *Server) selected(label string) scenario.Scenario {
	if sc, err := s.scenarios.Find(label); err == nil {
		return sc
	}
	return s.scenarios[0]
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, r.URL.Query().Get("scenario"), demo.PocPrompt, nil)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	s.act(w, r, r.PostFormValue("scenario"), r.PostFormValue("question"), func(ctx context.Context, sess *Session, sc scenario.Scenario, v *view) error {
		if !sess.state.BetaShared {
			if err := s.backend.EnsureShare(ctx, sess.state); err != nil {
				return err
			}
		}
		v.Banners = append(v.Banners, banner{Kind: "success", Text: "Beta DDQ is now shared with Alpha role."})
		return nil
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(r.PostFormValue("question"))
	s.act(w, r, r.PostFormValue("scenario"), question, func(ctx context.Context, sess *Session, sc scenario.Scenario, v *view) error {
		if question == "" {
			v.Banners = append(v.Banners, banner{Kind: "warning", Text: "Enter a question first."})
			return nil
		}
		user, err := sess.state.User(sc.User)
		if err != nil {
			return err
		}
		// Unknown dataset names are skipped, as the picker only offers known ones.
		var ids []uuid.UUID
		for _, name := range sc.Datasets {
			if id, ok := sess.state.Datasets[name]; ok {
				ids = append(ids, id)
			}
		}
		p, err := s.backend.RunQuery(ctx, user, sc.Label, question, ids)
		if err != nil {
			return err
		}
		sess.last = &p
		return nil
	})
}

// handleReset forgets the session's state and last result and rebuilds them.
// Engine data is shared with other sessions and is left alone.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	s.run(w, r, r.PostFormValue("scenario"), "", true, nil)
}

type action func(ctx context.Context, sess *Session, sc scenario.Scenario, v *view) error

func (s *Server) act(w http.ResponseWriter, r *http.Request, label, question string, fn action) {
	s.run(w, r, label, question, false, fn)
}

// run loads the session, builds state if needed, runs fn and renders the page.
func (s *Server) run(w http.ResponseWriter, r *http.Request, label, question string, reset bool, fn action) {
	sess, err := s.sessions.load(w, r)
	if err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	ctx := audit.WithSession(r.Context(), sess.ID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if reset {
		sess.state = nil
		sess.last = nil
		_ = audit.LogEvent(ctx, audit.EventReset, nil)
	}

	sc := s.selected(label)
	v := &view{Title: pageTitle, Scenarios: s.scenarios, Selected: sc, Question: question}
	if v.Question == "" {
		v.Question = demo.PocPrompt
	}

	status := http.StatusOK
	initialized, err := s.ensureState(ctx, sess)
	if initialized {
		v.Banners = append(v.Banners, banner{Kind: "info", Text: "Initializing engine backend and demo state..."})
	}
	if err == nil && fn != nil {
		err = fn(ctx, sess, sc, v)
	}
	if err != nil {
		status = http.StatusBadGateway
		v.Banners = append(v.Banners, banner{Kind: "error", Text: "Engine error: " + err.Error()})
		obs.Error("dashboard_action_failed", map[string]any{
			"session_id": sess.ID,
			"request_id": httpapi.RequestIDFrom(r.Context()),
			"scenario":   sc.Label,
			"error":      err,
		})
	}
	s.fill(v, sess)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, v); err != nil {
		obs.Error("dashboard_render_failed", map[string]any{"error": err})
	}
}

// fill adds the session-dependent parts of the page.
func (s *Server) fill(v *view, sess *Session) {
	if sess.state != nil {
		if u, err := sess.state.User(v.Selected.User); err == nil {
			v.RunningAs = u.Email
		}
		v.BetaShared = sess.state.BetaShared
	}
	if v.Selected.RequiresShare {
		v.Banners = append(v.Banners, banner{Kind: "warning", Text: "This scenario requires Beta to share its DDQ with Alpha."})
	}
	v.Result = resultFor(sess.last)
}
