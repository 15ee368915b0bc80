// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ledgerkeep/ledgerkeep/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.CredentialRecord
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.CredentialRecord)}
}

func (r *Repository) Create(_ context.Context, rec *storage.CredentialRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userData, ok := r.data[rec.UserID]
	if !ok {
		userData = make(map[string]*storage.CredentialRecord)
		r.data[rec.UserID] = userData
	}
	if _, exists := userData[rec.Name]; exists {
		return fmt.Errorf("%s: %w", rec.Name, storage.ErrAlreadyExists)
	}
	userData[rec.Name] = rec.Clone()
	return nil
}

func (r *Repository) Get(_ context.Context, userID, name string) (*storage.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(userID, name)
}

func (r *Repository) getLocked(userID, name string) (*storage.CredentialRecord, error) {
	rec, ok := r.data[userID][name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, storage.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (r *Repository) List(_ context.Context, userID string) ([]*storage.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]*storage.CredentialRecord, 0, len(r.data[userID]))
	for _, rec := range r.data[userID] {
		recs = append(recs, rec.Clone())
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
	return recs, nil
}

func (r *Repository) UpdateCAS(_ context.Context, expectedVersion uint64, rec *storage.CredentialRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.getLocked(rec.UserID, rec.Name)
	if err != nil {
		return err
	}
	if existing.Version != expectedVersion {
		return storage.ErrCASFailed
	}
	updated := rec.Clone()
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	r.data[rec.UserID][rec.Name] = updated
	return nil
}

func (r *Repository) Delete(_ context.Context, userID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userData := r.data[userID]
	if _, ok := userData[name]; !ok {
		return fmt.Errorf("%s: %w", name, storage.ErrNotFound)
	}
	delete(userData, name)
	if len(userData) == 0 {
		delete(r.data, userID)
	}
	return nil
}
