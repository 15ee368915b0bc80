// Package credentials stores users' third-party API keys, sealed with a key
// derived from the caller's identity. Every operation is scoped to that
// identity; one user can never name, read or overwrite another user's rows.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerkeep/ledgerkeep/internal/util"
	"github.com/ledgerkeep/ledgerkeep/storage"
	"github.com/ledgerkeep/ledgerkeep/vault"
)

const aadLabel = "ledgerkeep/credential/v1"

// Summary describes a stored credential without its value.
type Summary struct {
	Name      string
	Version   uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Secret is a revealed credential.
type Secret struct {
	Summary
	Value string
}

// Service implements credential CRUD over a storage.Repository.
type Service struct {
	repo   storage.Repository
	codec  *vault.Codec
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used to record failures that are hidden from callers.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService returns a Service that persists to repo and seals with codec.
func NewService(repo storage.Repository, codec *vault.Codec, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		codec:  codec,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "credentials")
	return s
}

// Create seals value and stores it under name. It fails with
// storage.ErrAlreadyExists if the user already has a credential called name.
func (s *Service) Create(ctx context.Context, id vault.Identity, name, value string) (*Summary, error) {
	if err := validateInput(id, name, value); err != nil {
		return nil, err
	}

	rec, err := s.seal(id, name, value)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rec.ID = uuid.NewString()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "storing credential", "user_id", id.UserID, "name", name, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return summarize(rec), nil
}

// Reveal loads and opens the credential called name.
func (s *Service) Reveal(ctx context.Context, id vault.Identity, name string) (*Secret, error) {
	if err := validateLookup(id, name); err != nil {
		return nil, err
	}

	rec, err := s.repo.Get(ctx, id.UserID, name)
	if err != nil {
		return nil, err
	}

	value, err := s.open(id, rec)
	if err != nil {
		// The cause is logged but never returned, so callers cannot tell a
		// corrupted row from a key mismatch.
		s.logger.WarnContext(ctx, "opening credential",
			"user_id", id.UserID, "name", name, "cause", decryptCause(err), "error", err)
		return nil, ErrRetrieveFailed
	}
	return &Secret{Summary: *summarize(rec), Value: value}, nil
}

// List returns the user's credentials ordered by name.
func (s *Service) List(ctx context.Context, id vault.Identity) ([]Summary, error) {
	if id.UserID == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", vault.ErrInvalidIdentity)
	}
	recs, err := s.repo.List(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *summarize(rec))
	}
	return out, nil
}

// Rotate replaces the value of an existing credential. The new value is
// sealed with a fresh salt and IV.
func (s *Service) Rotate(ctx context.Context, id vault.Identity, name, value string) (*Summary, error) {
	if err := validateInput(id, name, value); err != nil {
		return nil, err
	}

	existing, err := s.repo.Get(ctx, id.UserID, name)
	if err != nil {
		return nil, err
	}

	rec, err := s.seal(id, name, value)
	if err != nil {
		return nil, err
	}
	rec.ID = existing.ID
	rec.Version = existing.Version + 1
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateCAS(ctx, existing.Version, rec); err != nil {
		if errors.Is(err, storage.ErrCASFailed) || errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "updating credential", "user_id", id.UserID, "name", name, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return summarize(rec), nil
}

// Delete removes the credential called name.
func (s *Service) Delete(ctx context.Context, id vault.Identity, name string) error {
	if err := validateLookup(id, name); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id.UserID, name)
}

// CheckResult is the outcome of opening one stored credential.
type CheckResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Cause string `json:"cause,omitempty"`
}

// Check opens every credential the user owns and reports which ones fail,
// without returning any value. Operators use it to confirm the configured
// master secret still opens existing rows.
func (s *Service) Check(ctx context.Context, id vault.Identity) ([]CheckResult, error) {
	if id.UserID == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", vault.ErrInvalidIdentity)
	}
	recs, err := s.repo.List(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	results := make([]CheckResult, 0, len(recs))
	for _, rec := range recs {
		res := CheckResult{Name: rec.Name, OK: true}
		if _, err := s.open(id, rec); err != nil {
			res.OK = false
			res.Cause = decryptCause(err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) seal(id vault.Identity, name, value string) (*storage.CredentialRecord, error) {
	env, err := s.codec.Seal(id, value, associatedData(id, name))
	if err != nil {
		s.logger.Error("sealing credential", "user_id", id.UserID, "name", name, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	enc := env.Encode()
	return &storage.CredentialRecord{
		UserID:         id.UserID,
		Name:           name,
		EncryptedValue: enc.EncryptedValue,
		Salt:           enc.Salt,
		IV:             enc.IV,
		AuthTag:        enc.AuthTag,
	}, nil
}

func (s *Service) open(id vault.Identity, rec *storage.CredentialRecord) (string, error) {
	env, err := vault.EncodedEnvelope{
		EncryptedValue: rec.EncryptedValue,
		Salt:           rec.Salt,
		IV:             rec.IV,
		AuthTag:        rec.AuthTag,
	}.Decode()
	if err != nil {
		return "", err
	}
	return s.codec.Open(id, env, associatedData(id, rec.Name))
}

// associatedData binds a sealed value to its owner and name so a row's
// envelope cannot be copied under another name.
func associatedData(id vault.Identity, name string) []byte {
	return util.LengthPrefixed(aadLabel, id.UserID, name)
}

func decryptCause(err error) string {
	switch {
	case errors.Is(err, vault.ErrMalformedEnvelope):
		return "malformed_envelope"
	case errors.Is(err, vault.ErrIntegrity):
		return "integrity"
	case errors.Is(err, vault.ErrConfiguration):
		return "configuration"
	default:
		return "unknown"
	}
}

func validateInput(id vault.Identity, name, value string) error {
	if err := validateLookup(id, name); err != nil {
		return err
	}
	return ValidateValue(value)
}

func validateLookup(id vault.Identity, name string) error {
	if id.UserID == "" {
		return fmt.Errorf("%w: user id must not be empty", vault.ErrInvalidIdentity)
	}
	return ValidateName(name)
}

func summarize(rec *storage.CredentialRecord) *Summary {
	return &Summary{
		Name:      rec.Name,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
