package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"kgrbac.org/internal/obs"
)

// ReadyProbe reports whether the service can take traffic.
type ReadyProbe interface {
	Check(ctx context.Context) error
}

// ProbeFunc adapts a function to ReadyProbe.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Check(ctx context.Context) error { return f(ctx) }

// Probes serves /healthz, /readyz and /metrics.
type Probes struct {
	Service string
	Version string
	Ready   ReadyProbe
}

// Mount registers the probe routes on mux.
func (p Probes) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", p.Healthz)
	mux.HandleFunc("GET /readyz", p.Readyz)
	mux.Handle("GET /metrics", obs.Handler())
}

func (p Probes) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": p.Service,
		"version": p.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (p Probes) Readyz(w http.ResponseWriter, r *http.Request) {
	if p.Ready != nil {
		if err := p.Ready.Check(r.Context()); err != nil {
			obs.SetReady(false)
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	obs.SetReady(true)
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
