// Package postgres implements storage.Repository backed by PostgreSQL, for
// deployments that keep the durable regions in a shared database.
//
// The records table is keyed by (region, record_type, record_id), the same
// key space used by the BBolt and in-memory backends.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/suilink/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Put(region storage.Region, recordType, recordID string, envelope *storage.Envelope) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO records (region, record_type, record_id, ver, scheme, nonce, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (region, record_type, record_id)
		 DO UPDATE SET ver = $4, scheme = $5, nonce = $6, payload = $7, updated_at = now()`,
		string(region), recordType, recordID,
		envelope.Ver, envelope.Scheme, envelope.Nonce, envelope.Payload)
	return err
}

func (s *Store) Get(region storage.Region, recordType, recordID string) (*storage.Envelope, error) {
	var env storage.Envelope
	err := s.pool.QueryRow(context.Background(),
		`SELECT ver, scheme, nonce, payload
		 FROM records WHERE region = $1 AND record_type = $2 AND record_id = $3`,
		string(region), recordType, recordID).Scan(&env.Ver, &env.Scheme, &env.Nonce, &env.Payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.notFound(context.Background(), region, recordType, recordID)
	}
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *Store) List(region storage.Region, recordType string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT record_id FROM records WHERE region = $1 AND record_type = $2 ORDER BY record_id`,
		string(region), recordType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Delete(region storage.Region, recordType, recordID string) error {
	tag, err := s.pool.Exec(context.Background(),
		`DELETE FROM records WHERE region = $1 AND record_type = $2 AND record_id = $3`,
		string(region), recordType, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.notFound(context.Background(), region, recordType, recordID)
	}
	return nil
}

// notFound distinguishes a region that was never written from a missing
// record, matching the BBolt backend.
func (s *Store) notFound(ctx context.Context, region storage.Region, recordType, recordID string) error {
	var exists bool
	_ = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM records WHERE region = $1 LIMIT 1)`,
		string(region)).Scan(&exists)
	if !exists {
		return fmt.Errorf("%s: %w", region, storage.ErrRegionNotFound)
	}
	return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
}
