package pg

import (
	"context"

	"github.com/google/uuid"

	"kgrbac.org/internal/engine"
	"kgrbac.org/internal/engine/local"
)

func (s *Store) InsertDataset(ctx context.Context, d engine.Dataset) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into engine_datasets (id, name, owner_id)
		values ($1, $2, $3)
	`, d.ID, d.Name, d.OwnerID)
	return classify("insert_dataset", err)
}

func (s *Store) DatasetByName(ctx context.Context, ownerID uuid.UUID, name string) (engine.Dataset, error) {
	if err := s.ready(); err != nil {
		return engine.Dataset{}, err
	}
	var d engine.Dataset
	err := s.db.QueryRowContext(ctx, `
		select id, name, owner_id
		from engine_datasets
		where owner_id = $1 and name = $2
	`, ownerID, name).Scan(&d.ID, &d.Name, &d.OwnerID)
	if err != nil {
		return engine.Dataset{}, classify("dataset_by_name", err)
	}
	return d, nil
}

func (s *Store) DatasetByID(ctx context.Context, id uuid.UUID) (engine.Dataset, error) {
	if err := s.ready(); err != nil {
		return engine.Dataset{}, err
	}
	var d engine.Dataset
	err := s.db.QueryRowContext(ctx, `select id, name, owner_id from engine_datasets where id = $1`, id).Scan(&d.ID, &d.Name, &d.OwnerID)
	if err != nil {
		return engine.Dataset{}, classify("dataset_by_id", err)
	}
	return d, nil
}

func (s *Store) AppendDocuments(ctx context.Context, datasetID uuid.UUID, docs []string) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("append_documents", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, doc := range docs {
		_, err := tx.ExecContext(ctx, `
			insert into engine_documents (dataset_id, body, content_hash) values ($1, $2, $3)
			on conflict (dataset_id, content_hash) do nothing`, datasetID, doc, local.ContentHash(doc))
		if err != nil {
			return classify("append_documents", err)
		}
	}
	return classify("append_documents", tx.Commit())
}

func (s *Store) Documents(ctx context.Context, datasetID uuid.UUID) ([]string, error) {
	return s.texts(ctx, "documents", `select body from engine_documents where dataset_id = $1 order by id`, datasetID)
}

func (s *Store) ReplacePassages(ctx context.Context, datasetID uuid.UUID, passages []string) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("replace_passages", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `delete from engine_passages where dataset_id = $1`, datasetID); err != nil {
		return classify("replace_passages", err)
	}
	for i, p := range passages {
		if _, err := tx.ExecContext(ctx, `
			insert into engine_passages (dataset_id, position, body)
			values ($1, $2, $3)
		`, datasetID, i, p); err != nil {
			return classify("replace_passages", err)
		}
	}
	return classify("replace_passages", tx.Commit())
}

func (s *Store) Passages(ctx context.Context, datasetID uuid.UUID) ([]string, error) {
	return s.texts(ctx, "passages", `select body from engine_passages where dataset_id = $1 order by position`, datasetID)
}

func (s *Store) texts(ctx context.Context, op, query string, datasetID uuid.UUID) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, datasetID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, classify(op, err)
		}
		out = append(out, body)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (s *Store) InsertGrant(ctx context.Context, g local.Grant) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into engine_grants (principal_id, dataset_id, permission)
		values ($1, $2, $3)
	`, g.PrincipalID, g.DatasetID, string(g.Permission))
	return classify("insert_grant", err)
}

func (s *Store) GrantsFor(ctx context.Context, principalIDs []uuid.UUID) ([]local.Grant, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(principalIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(principalIDs))
	for i, id := range principalIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		select principal_id, dataset_id, permission
		from engine_grants
		where principal_id in (`+placeholders(1, len(args))+`)
		order by id
	`, args...)
	if err != nil {
		return nil, classify("grants_for", err)
	}
	defer rows.Close()
	var out []local.Grant
	for rows.Next() {
		var (
			g    local.Grant
			perm string
		)
		if err := rows.Scan(&g.PrincipalID, &g.DatasetID, &perm); err != nil {
			return nil, classify("grants_for", err)
		}
		g.Permission = engine.Permission(perm)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("grants_for", err)
	}
	return out, nil
}

func (s *Store) Reset(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		truncate engine_grants, engine_passages, engine_documents, engine_datasets,
			engine_role_members, engine_roles, engine_tenant_members, engine_tenants, engine_users
	`)
	return classify("reset", err)
}
