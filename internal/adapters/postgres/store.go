package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
)

// Store implements the domain.Store contract over a single JSONB documents
// table. Entities of every collection share the table; filters are evaluated
// with JSONB containment so the repository layer stays engine-agnostic.
// Errors other than "no rows" are returned raw — classification happens in
// the caller via Classify.
type Store struct {
	pool   *pgxpool.Pool
	logger domain.Logger
}

// NewStore creates a Store over an established connection pool.
func NewStore(pool *pgxpool.Pool, logger domain.Logger) *Store {
	if pool == nil {
		panic("pgx pool cannot be nil in NewStore")
	}
	if logger == nil {
		panic("logger cannot be nil in NewStore")
	}
	return &Store{pool: pool, logger: logger}
}

// EnsureSchema creates the documents table and the per-collection uniqueness
// indexes. Safe to run on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id bigserial PRIMARY KEY,
			collection text NOT NULL,
			doc jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS documents_doc_idx ON documents USING gin (doc jsonb_path_ops)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS documents_guilds_key
			ON documents ((doc->>'guild_id')) WHERE collection = 'guilds'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS documents_users_key
			ON documents ((doc->>'user_id')) WHERE collection = 'users'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS documents_sessions_key
			ON documents ((doc->>'session_id')) WHERE collection = 'sessions'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS documents_members_key
			ON documents ((doc->>'guild_id'), (doc->>'user_id')) WHERE collection = 'members'`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure documents schema: %w", err)
		}
	}
	return nil
}

// Insert persists a new document and decodes the stored form into out.
func (s *Store) Insert(ctx context.Context, collection string, doc any, out any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document for collection '%s': %w", collection, err)
	}

	var stored []byte
	err = s.pool.QueryRow(ctx,
		`INSERT INTO documents (collection, doc) VALUES ($1, $2) RETURNING doc`,
		collection, payload,
	).Scan(&stored)
	if err != nil {
		return err
	}
	return decode(stored, out)
}

// FindOne decodes the first matching document into out, or returns domain.ErrNotFound.
func (s *Store) FindOne(ctx context.Context, collection string, filter domain.Filter, out any) error {
	cond, err := marshalFilter(filter)
	if err != nil {
		return err
	}

	var stored []byte
	err = s.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND doc @> $2 ORDER BY id LIMIT 1`,
		collection, cond,
	).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return decode(stored, out)
}

// Find decodes up to limit matching documents into out (a pointer to a slice).
func (s *Store) Find(ctx context.Context, collection string, filter domain.Filter, limit int, out any) error {
	cond, err := marshalFilter(filter)
	if err != nil {
		return err
	}

	query := `SELECT doc FROM documents WHERE collection = $1 AND doc @> $2 ORDER BY id`
	args := []any{collection, cond}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var stored []byte
		if err := rows.Scan(&stored); err != nil {
			return err
		}
		docs = append(docs, json.RawMessage(stored))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Decode through a JSON array so out can be any *[]T.
	combined, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to combine documents for collection '%s': %w", collection, err)
	}
	return decode(combined, out)
}

// UpdateOne applies patch to the first matching document and decodes the
// result into out. With upsert, a missing document is created from the filter
// merged with the patch.
func (s *Store) UpdateOne(ctx context.Context, collection string, filter domain.Filter, patch domain.Update, upsert bool, out any) error {
	cond, err := marshalFilter(filter)
	if err != nil {
		return err
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal patch for collection '%s': %w", collection, err)
	}

	var stored []byte
	err = s.pool.QueryRow(ctx,
		`UPDATE documents SET doc = doc || $3
		 WHERE id = (SELECT id FROM documents WHERE collection = $1 AND doc @> $2 ORDER BY id LIMIT 1)
		 RETURNING doc`,
		collection, cond, patchJSON,
	).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		if !upsert {
			return domain.ErrNotFound
		}
		// Seed the new document from the filter so the natural key is present.
		seed := make(map[string]any, len(filter)+len(patch))
		for k, v := range filter {
			seed[k] = v
		}
		for k, v := range patch {
			seed[k] = v
		}
		return s.Insert(ctx, collection, seed, out)
	}
	if err != nil {
		return err
	}
	return decode(stored, out)
}

// DeleteOne removes the first matching document, returning the number deleted.
func (s *Store) DeleteOne(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	cond, err := marshalFilter(filter)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents
		 WHERE id = (SELECT id FROM documents WHERE collection = $1 AND doc @> $2 ORDER BY id LIMIT 1)`,
		collection, cond,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of matching documents.
func (s *Store) Count(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	cond, err := marshalFilter(filter)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE collection = $1 AND doc @> $2`,
		collection, cond,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func marshalFilter(filter domain.Filter) ([]byte, error) {
	if filter == nil {
		filter = domain.Filter{}
	}
	cond, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}
	return cond, nil
}

func decode(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}
