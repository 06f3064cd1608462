// Package postgres provides a replicant.PersistentStore implementation
// backed by a PostgreSQL table, using an upsert to persist each
// Replicant's current value and revision.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements replicant.PersistentStore over a PostgreSQL table.
//
// Expected schema:
//
//	CREATE TABLE replicant_values (
//	    namespace TEXT NOT NULL,
//	    name      TEXT NOT NULL,
//	    value     JSONB NOT NULL,
//	    revision  BIGINT NOT NULL,
//	    PRIMARY KEY (namespace, name)
//	);
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// Option configures a Store.
type Option func(*Store)

// WithTable overrides the default "replicant_values" table name.
func WithTable(table string) Option {
	return func(s *Store) { s.table = table }
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, table: "replicant_values"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load implements replicant.PersistentStore.
func (s *Store) Load(ctx context.Context, namespace, name string) (any, bool, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE namespace = $1 AND name = $2", s.table)
	var raw []byte
	err := s.pool.QueryRow(ctx, query, namespace, name).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgres: load %s/%s: %w", namespace, name, err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("postgres: decode %s/%s: %w", namespace, name, err)
	}
	return value, true, nil
}

// Save implements replicant.PersistentStore, upserting the row keyed by
// namespace/name.
func (s *Store) Save(ctx context.Context, namespace, name string, value any, revision int64) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("postgres: encode %s/%s: %w", namespace, name, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (namespace, name, value, revision)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, name) DO UPDATE
		SET value = EXCLUDED.value, revision = EXCLUDED.revision
		WHERE %s.revision <= EXCLUDED.revision
	`, s.table, s.table)
	if _, err := s.pool.Exec(ctx, query, namespace, name, raw, revision); err != nil {
		return fmt.Errorf("postgres: save %s/%s: %w", namespace, name, err)
	}
	return nil
}
