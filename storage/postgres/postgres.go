// Package postgres implements storage.Repository backed by PostgreSQL.
//
// The credentials table has a unique (user_id, name) constraint that mirrors
// the key space used by the BBolt and in-memory backends. Envelope fields are
// stored as TEXT columns holding base64, the same shape the hosted row store
// used before this service existed.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerkeep/ledgerkeep/storage"
)

const uniqueViolation = "23505"

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, applies
// pending migrations, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Create(ctx context.Context, rec *storage.CredentialRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (id, user_id, name, encrypted_value, salt, iv, auth_tag, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.UserID, rec.Name,
		rec.EncryptedValue, rec.Salt, rec.IV, rec.AuthTag,
		int64(rec.Version), rec.CreatedAt, rec.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", rec.Name, storage.ErrAlreadyExists)
	}
	return err
}

func (s *Store) Get(ctx context.Context, userID, name string) (*storage.CredentialRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, encrypted_value, salt, iv, auth_tag, version, created_at, updated_at
		 FROM credentials WHERE user_id = $1 AND name = $2`,
		userID, name)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]*storage.CredentialRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, encrypted_value, salt, iv, auth_tag, version, created_at, updated_at
		 FROM credentials WHERE user_id = $1 ORDER BY name COLLATE "C"`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []*storage.CredentialRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) UpdateCAS(ctx context.Context, expectedVersion uint64, rec *storage.CredentialRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT version FROM credentials WHERE user_id = $1 AND name = $2 FOR UPDATE`,
		rec.UserID, rec.Name).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", rec.Name, storage.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if uint64(current) != expectedVersion {
		return storage.ErrCASFailed
	}

	_, err = tx.Exec(ctx,
		`UPDATE credentials
		 SET encrypted_value = $3, salt = $4, iv = $5, auth_tag = $6, version = $7, updated_at = $8
		 WHERE user_id = $1 AND name = $2`,
		rec.UserID, rec.Name,
		rec.EncryptedValue, rec.Salt, rec.IV, rec.AuthTag,
		int64(rec.Version), rec.UpdatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, userID, name string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM credentials WHERE user_id = $1 AND name = $2`,
		userID, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", name, storage.ErrNotFound)
	}
	return nil
}

func scanRecord(row pgx.Row) (*storage.CredentialRecord, error) {
	var (
		rec     storage.CredentialRecord
		version int64
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Name,
		&rec.EncryptedValue, &rec.Salt, &rec.IV, &rec.AuthTag,
		&version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Version = uint64(version)
	return &rec, nil
}
