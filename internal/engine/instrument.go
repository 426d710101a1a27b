package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kgrbac.org/internal/obs"
)

const tracerName = "kgrbac.org/internal/engine"

// Instrument wraps next with a span and prometheus metrics per call.
func Instrument(next Engine) Engine {
	return &instrumented{next: next, tracer: otel.Tracer(tracerName)}
}

type instrumented struct {
	next   Engine
	tracer trace.Tracer
}

func (i *instrumented) observe(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := i.tracer.Start(ctx, "engine."+op, trace.WithAttributes(attrs...))
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	obs.ObserveEngineCall(op, outcome, time.Since(start))
	return err
}

func (i *instrumented) CreateUser(ctx context.Context, in NewUser) (u User, err error) {
	err = i.observe(ctx, "create_user", []attribute.KeyValue{attribute.String("user.email", in.Email)}, func(ctx context.Context) error {
		u, err = i.next.CreateUser(ctx, in)
		return err
	})
	return u, err
}

func (i *instrumented) UserByEmail(ctx context.Context, email string) (u User, err error) {
	err = i.observe(ctx, "user_by_email", nil, func(ctx context.Context) error {
		u, err = i.next.UserByEmail(ctx, email)
		return err
	})
	return u, err
}

func (i *instrumented) CreateTenant(ctx context.Context, name string, ownerID uuid.UUID) (t Tenant, err error) {
	err = i.observe(ctx, "create_tenant", []attribute.KeyValue{attribute.String("tenant.name", name)}, func(ctx context.Context) error {
		t, err = i.next.CreateTenant(ctx, name, ownerID)
		return err
	})
	return t, err
}

func (i *instrumented) TenantByName(ctx context.Context, name string) (t Tenant, err error) {
	err = i.observe(ctx, "tenant_by_name", nil, func(ctx context.Context) error {
		t, err = i.next.TenantByName(ctx, name)
		return err
	})
	return t, err
}

func (i *instrumented) AddUserToTenant(ctx context.Context, userID, tenantID, ownerID uuid.UUID) error {
	return i.observe(ctx, "add_user_to_tenant", nil, func(ctx context.Context) error {
		return i.next.AddUserToTenant(ctx, userID, tenantID, ownerID)
	})
}

func (i *instrumented) CreateRole(ctx context.Context, name string, ownerID uuid.UUID) (r Role, err error) {
	err = i.observe(ctx, "create_role", []attribute.KeyValue{attribute.String("role.name", name)}, func(ctx context.Context) error {
		r, err = i.next.CreateRole(ctx, name, ownerID)
		return err
	})
	return r, err
}

func (i *instrumented) RoleByName(ctx context.Context, name string, ownerID uuid.UUID) (r Role, err error) {
	err = i.observe(ctx, "role_by_name", nil, func(ctx context.Context) error {
		r, err = i.next.RoleByName(ctx, name, ownerID)
		return err
	})
	return r, err
}

func (i *instrumented) AddUserToRole(ctx context.Context, userID, roleID, ownerID uuid.UUID) error {
	return i.observe(ctx, "add_user_to_role", nil, func(ctx context.Context) error {
		return i.next.AddUserToRole(ctx, userID, roleID, ownerID)
	})
}

func (i *instrumented) Add(ctx context.Context, user User, dataset string, docs []string) error {
	attrs := []attribute.KeyValue{attribute.String("dataset.name", dataset), attribute.Int("docs", len(docs))}
	return i.observe(ctx, "add", attrs, func(ctx context.Context) error {
		return i.next.Add(ctx, user, dataset, docs)
	})
}

func (i *instrumented) Cognify(ctx context.Context, user User, datasets []string) (res CognifyResult, err error) {
	err = i.observe(ctx, "cognify", []attribute.KeyValue{attribute.StringSlice("dataset.names", datasets)}, func(ctx context.Context) error {
		res, err = i.next.Cognify(ctx, user, datasets)
		return err
	})
	return res, err
}

func (i *instrumented) GivePermissionOnDataset(ctx context.Context, principalID, datasetID uuid.UUID, perm Permission) error {
	attrs := []attribute.KeyValue{attribute.String("permission", string(perm)), attribute.String("dataset.id", datasetID.String())}
	return i.observe(ctx, "give_permission", attrs, func(ctx context.Context) error {
		return i.next.GivePermissionOnDataset(ctx, principalID, datasetID, perm)
	})
}

func (i *instrumented) AuthorizedGivePermissionOnDatasets(ctx context.Context, principalID uuid.UUID, datasetIDs []uuid.UUID, perm Permission, ownerID uuid.UUID) error {
	attrs := []attribute.KeyValue{attribute.String("permission", string(perm)), attribute.Int("datasets", len(datasetIDs))}
	return i.observe(ctx, "authorized_give_permission", attrs, func(ctx context.Context) error {
		return i.next.AuthorizedGivePermissionOnDatasets(ctx, principalID, datasetIDs, perm, ownerID)
	})
}

func (i *instrumented) Search(ctx context.Context, user User, req SearchRequest) (res []SearchResult, err error) {
	attrs := []attribute.KeyValue{attribute.String("search.type", string(req.Type)), attribute.Int("datasets", len(req.DatasetIDs))}
	err = i.observe(ctx, "search", attrs, func(ctx context.Context) error {
		res, err = i.next.Search(ctx, user, req)
		return err
	})
	return res, err
}

func (i *instrumented) Prune(ctx context.Context) error {
	return i.observe(ctx, "prune", nil, i.next.Prune)
}
