// Package audit records access-control decisions as JSON lines.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"

	"kgrbac.org/internal/obs"
)

// Events emitted by the demo harness.
const (
	EventMembership = "rbac.membership"
	EventGrant      = "rbac.grant"
	EventShare      = "rbac.share"
	EventQuery      = "rbac.query"
	EventDenied     = "rbac.denied"
	EventReset      = "rbac.reset"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	actorKey
)

// WithSession tags the context with a dashboard session or request id.
func WithSession(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, id)
}

// WithActor records who is acting, usually a demo user's email.
func WithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, actor)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// LogEvent writes one audit entry to the shared logger.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if sid := stringValue(ctx, sessionKey); sid != "" {
		entry["session_id"] = sid
	}
	if actor := stringValue(ctx, actorKey); actor != "" {
		entry["actor"] = actor
	}
	out := make(map[string]any, len(fields))
	maps.Copy(out, fields)
	for k, v := range out {
		if err, ok := v.(error); ok {
			out[k] = err.Error()
		}
	}
	entry["fields"] = out

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
