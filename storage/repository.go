// Package storage provides the storage abstraction layer for sealed credentials.
//
// Rows are keyed by (user id, credential name). Every method takes the owning
// user id explicitly; a backend never returns another user's row.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no credential exists for (user, name).
	ErrNotFound = errors.New("credential not found")
	// ErrAlreadyExists is returned by Create when (user, name) is taken.
	ErrAlreadyExists = errors.New("credential already exists")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// CredentialRecord is one persisted credential. The four envelope fields are
// base64 text so that any text-oriented store can hold them.
type CredentialRecord struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	EncryptedValue string    `json:"encrypted_value"`
	Salt           string    `json:"salt"`
	IV             string    `json:"iv"`
	AuthTag        string    `json:"auth_tag"`
	Version        uint64    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *CredentialRecord) Clone() *CredentialRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Repository defines the interface for credential storage.
type Repository interface {
	// Create inserts rec. It fails with ErrAlreadyExists when the user
	// already has a credential with the same name.
	Create(ctx context.Context, rec *CredentialRecord) error
	Get(ctx context.Context, userID, name string) (*CredentialRecord, error)
	// List returns the user's credentials ordered by name.
	List(ctx context.Context, userID string) ([]*CredentialRecord, error)
	// UpdateCAS replaces the envelope fields of an existing credential if its
	// stored version equals expectedVersion.
	UpdateCAS(ctx context.Context, expectedVersion uint64, rec *CredentialRecord) error
	Delete(ctx context.Context, userID, name string) error
}
