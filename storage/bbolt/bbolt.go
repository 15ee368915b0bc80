// Package bbolt provides a BBolt-backed storage repository.
//
// Each user gets a bucket named after their user id; credential names are the
// keys inside it and rows are stored as JSON.
package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/ledgerkeep/ledgerkeep/storage"
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// DefaultOpenTimeout bounds how long NewRepositoryFromFile waits for another
// process to release the file lock.
const DefaultOpenTimeout = 2 * time.Second

// ErrDatabaseInUse is returned when the file lock could not be taken in time,
// usually because a running server holds the database open.
var ErrDatabaseInUse = errors.New("database is in use by another process")

// NewRepositoryFromFile opens a BBolt database at the given path and returns a
// new Repository. A zero options.Timeout is replaced with DefaultOpenTimeout;
// bbolt would otherwise wait for the lock forever.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	opts := *bbolt.DefaultOptions
	if options != nil {
		opts = *options
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultOpenTimeout
	}

	db, err := bbolt.Open(path, 0600, &opts)
	if errors.Is(err, berrors.ErrTimeout) {
		return nil, fmt.Errorf("opening bbolt db %s: %w", path, ErrDatabaseInUse)
	}
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(_ context.Context, rec *storage.CredentialRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(rec.UserID))
		if err != nil {
			return err
		}
		if b.Get([]byte(rec.Name)) != nil {
			return fmt.Errorf("%s: %w", rec.Name, storage.ErrAlreadyExists)
		}
		return putRecord(b, rec)
	})
}

func (s *Store) Get(_ context.Context, userID, name string) (*storage.CredentialRecord, error) {
	var rec *storage.CredentialRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getRecord(tx.Bucket([]byte(userID)), name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) List(_ context.Context, userID string) ([]*storage.CredentialRecord, error) {
	recs := []*storage.CredentialRecord{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		// Bucket keys iterate in byte order, which is name order.
		return b.ForEach(func(_, v []byte) error {
			var rec storage.CredentialRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	return recs, err
}

func (s *Store) UpdateCAS(_ context.Context, expectedVersion uint64, rec *storage.CredentialRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(rec.UserID))
		existing, err := getRecord(b, rec.Name)
		if err != nil {
			return err
		}
		if existing.Version != expectedVersion {
			return storage.ErrCASFailed
		}
		updated := rec.Clone()
		updated.ID = existing.ID
		updated.CreatedAt = existing.CreatedAt
		return putRecord(b, updated)
	})
}

func (s *Store) Delete(_ context.Context, userID, name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(userID))
		if b == nil || b.Get([]byte(name)) == nil {
			return fmt.Errorf("%s: %w", name, storage.ErrNotFound)
		}
		return b.Delete([]byte(name))
	})
}

func getRecord(b *bbolt.Bucket, name string) (*storage.CredentialRecord, error) {
	if b == nil {
		return nil, fmt.Errorf("%s: %w", name, storage.ErrNotFound)
	}
	data := b.Get([]byte(name))
	if data == nil {
		return nil, fmt.Errorf("%s: %w", name, storage.ErrNotFound)
	}
	var rec storage.CredentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return &rec, nil
}

func putRecord(b *bbolt.Bucket, rec *storage.CredentialRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(rec.Name), data)
}
