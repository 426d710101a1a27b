package demo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"kgrbac.org/internal/audit"
	"kgrbac.org/internal/engine"
)

// Dataset names.
const (
	AlphaDDQ = "ALPHA_DDQ"
	BetaDDQ  = "BETA_DDQ"
)

// DatasetFiles maps each dataset to its source under the data directory.
var DatasetFiles = map[string]string{
	AlphaDDQ: filepath.Join("alpha", "alpha_ddq.pdf"),
	BetaDDQ:  filepath.Join("beta", "BetaFund_DDQ.pdf"),
}

// ErrNoDatasetID is returned when cognify yields no dataset identifier.
var ErrNoDatasetID = errors.New("no dataset id in cognify result")

func orgByKey(key string) Org {
	for _, o := range Orgs {
		if o.Key == key {
			return o
		}
	}
	panic("demo: unknown org " + key)
}

// IngestDatasets loads, adds and cognifies each org's dataset as its owner,
// then has the owner grant itself share on the result.
func (h *Harness) IngestDatasets(ctx context.Context, users map[string]engine.User) (map[string]uuid.UUID, error) {
	registry := make(map[string]uuid.UUID, len(Orgs))
	for _, org := range Orgs {
		id, err := h.ingest(ctx, users[org.Owner], org.Dataset)
		if err != nil {
			return nil, err
		}
		registry[org.Dataset] = id
		h.report().Success("Ingested %s (id=%s).", org.Dataset, id)
	}
	return registry, nil
}

func (h *Harness) ingest(ctx context.Context, owner engine.User, dataset string) (uuid.UUID, error) {
	rel, ok := DatasetFiles[dataset]
	if !ok {
		return uuid.Nil, fmt.Errorf("ingest %s: no source file configured", dataset)
	}
	text, err := h.loadText(filepath.Join(h.DataDir, rel))
	if err != nil {
		return uuid.Nil, fmt.Errorf("ingest %s: %w", dataset, err)
	}
	if err := h.Engine.Add(ctx, owner, dataset, []string{text}); err != nil {
		return uuid.Nil, fmt.Errorf("ingest %s: %w", dataset, err)
	}
	res, err := h.Engine.Cognify(ctx, owner, []string{dataset})
	if err != nil {
		return uuid.Nil, fmt.Errorf("ingest %s: %w", dataset, err)
	}
	id, ok := res.FirstDatasetID()
	if !ok {
		return uuid.Nil, fmt.Errorf("ingest %s: %w", dataset, ErrNoDatasetID)
	}
	err = ignoreExists(h.Engine.GivePermissionOnDataset(ctx, owner.ID, id, engine.PermShare))
	if err != nil {
		return uuid.Nil, fmt.Errorf("ingest %s: share self-grant: %w", dataset, err)
	}
	return id, nil
}

// AssignOrgPermissions grants each org role read on its own dataset.
func (h *Harness) AssignOrgPermissions(ctx context.Context, users map[string]engine.User, orgs map[string]OrgState, datasets map[string]uuid.UUID) error {
	for _, org := range Orgs {
		owner := users[org.Owner]
		if err := h.grantRead(ctx, owner, orgs[org.Key].RoleID, org.Role, org.Dataset, datasets[org.Dataset]); err != nil {
			return err
		}
	}
	h.report().Info("Org-level read permissions assigned.")
	return nil
}

// EnsureBetaShare grants the Alpha role read on the Beta dataset. It reports
// whether this call created the grant; an existing grant is not an error.
func (h *Harness) EnsureBetaShare(ctx context.Context, users map[string]engine.User, orgs map[string]OrgState, datasets map[string]uuid.UUID) (bool, error) {
	alpha, beta := orgByKey(OrgAlpha), orgByKey(OrgBeta)
	owner := users[beta.Owner]
	err := h.Engine.AuthorizedGivePermissionOnDatasets(ctx, orgs[alpha.Key].RoleID, []uuid.UUID{datasets[beta.Dataset]}, engine.PermRead, owner.ID)
	if errors.Is(err, engine.ErrAlreadyExists) {
		h.report().Info("Sharing already configured; skipping.")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("share %s with %s: %w", beta.Dataset, alpha.Role, err)
	}
	_ = audit.LogEvent(audit.WithActor(ctx, owner.Email), audit.EventShare, map[string]any{
		"dataset":   beta.Dataset,
		"recipient": alpha.Role,
	})
	h.report().Success("Beta DDQ shared with Alpha role.")
	return true, nil
}

func (h *Harness) grantRead(ctx context.Context, owner engine.User, principal uuid.UUID, principalName, dataset string, datasetID uuid.UUID) error {
	granted, err := created(h.Engine.AuthorizedGivePermissionOnDatasets(ctx, principal, []uuid.UUID{datasetID}, engine.PermRead, owner.ID))
	if err != nil {
		return fmt.Errorf("grant read on %s to %s: %w", dataset, principalName, err)
	}
	if !granted {
		return nil
	}
	_ = audit.LogEvent(audit.WithActor(ctx, owner.Email), audit.EventGrant, map[string]any{
		"dataset":    dataset,
		"principal":  principalName,
		"permission": string(engine.PermRead),
	})
	return nil
}
