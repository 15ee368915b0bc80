package credentials

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkeep/ledgerkeep/storage"
	"github.com/ledgerkeep/ledgerkeep/storage/memory"
	"github.com/ledgerkeep/ledgerkeep/vault"
)

var (
	alice = vault.Identity{UserID: "user-42"}
	bob   = vault.Identity{UserID: "user-43"}
)

func newTestService(t *testing.T, repo storage.Repository, opts ...Option) *Service {
	t.Helper()
	codec, err := vault.New(vault.Config{MasterSecret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)
	return NewService(repo, codec, opts...)
}

func TestCreateAndReveal(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	svc := newTestService(t, repo)

	sum, err := svc.Create(ctx, alice, "plaid", "sk-test-1234567890")
	require.NoError(t, err)
	assert.Equal(t, "plaid", sum.Name)
	assert.Equal(t, uint64(1), sum.Version)

	rec, err := repo.Get(ctx, alice.UserID, "plaid")
	require.NoError(t, err)
	assert.NotContains(t, rec.EncryptedValue, "sk-test")
	assert.NotEmpty(t, rec.Salt)
	assert.NotEmpty(t, rec.IV)
	assert.NotEmpty(t, rec.AuthTag)
	assert.NotEmpty(t, rec.ID)

	secret, err := svc.Reveal(ctx, alice, "plaid")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890", secret.Value)
	assert.Equal(t, "plaid", secret.Name)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memory.NewRepository())

	_, err := svc.Create(ctx, alice, "plaid", "first")
	require.NoError(t, err)

	_, err = svc.Create(ctx, alice, "plaid", "second")
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	// Names are per user.
	_, err = svc.Create(ctx, bob, "plaid", "bobs")
	assert.NoError(t, err)

	secret, err := svc.Reveal(ctx, alice, "plaid")
	require.NoError(t, err)
	assert.Equal(t, "first", secret.Value)
}

func TestCreateValidates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memory.NewRepository())

	_, err := svc.Create(ctx, alice, "bad name", "value")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, alice, "plaid", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, vault.Identity{}, "plaid", "value")
	assert.ErrorIs(t, err, vault.ErrInvalidIdentity)
}

func TestRevealIsScopedToUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memory.NewRepository())

	_, err := svc.Create(ctx, alice, "plaid", "sk-test-1234567890")
	require.NoError(t, err)

	_, err = svc.Reveal(ctx, bob, "plaid")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memory.NewRepository())

	for _, name := range []string{"zillow", "alpaca", "plaid"} {
		_, err := svc.Create(ctx, alice, name, "value-"+name)
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, bob, "other", "value")
	require.NoError(t, err)

	list, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"alpaca", "plaid", "zillow"}, []string{list[0].Name, list[1].Name, list[2].Name})

	empty, err := svc.List(ctx, vault.Identity{UserID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRotate(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := created
	svc := newTestService(t, repo, WithClock(func() time.Time { return clock }))

	_, err := svc.Create(ctx, alice, "plaid", "old-value")
	require.NoError(t, err)
	before, err := repo.Get(ctx, alice.UserID, "plaid")
	require.NoError(t, err)

	clock = created.Add(time.Hour)
	sum, err := svc.Rotate(ctx, alice, "plaid", "new-value")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sum.Version)
	assert.Equal(t, created, sum.CreatedAt)
	assert.Equal(t, clock, sum.UpdatedAt)

	after, err := repo.Get(ctx, alice.UserID, "plaid")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.NotEqual(t, before.Salt, after.Salt)
	assert.NotEqual(t, before.IV, after.IV)

	secret, err := svc.Reveal(ctx, alice, "plaid")
	require.NoError(t, err)
	assert.Equal(t, "new-value", secret.Value)

	_, err = svc.Rotate(ctx, alice, "missing", "value")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memory.NewRepository())

	_, err := svc.Create(ctx, alice, "plaid", "value")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, bob, "plaid"), storage.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, alice, "plaid"))

	_, err = svc.Reveal(ctx, alice, "plaid")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRevealFailuresAreGeneric(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		corrupt   func(t *testing.T, repo *memory.Repository)
		wantCause string
	}{
		{
			name: "tampered ciphertext",
			corrupt: func(t *testing.T, repo *memory.Repository) {
				rec, err := repo.Get(ctx, alice.UserID, "plaid")
				require.NoError(t, err)
				raw := []byte(rec.EncryptedValue)
				// Swap the first base64 character for another valid one.
				if raw[0] == 'A' {
					raw[0] = 'B'
				} else {
					raw[0] = 'A'
				}
				rec.EncryptedValue = string(raw)
				require.NoError(t, repo.UpdateCAS(ctx, rec.Version, rec))
			},
			wantCause: "cause=integrity",
		},
		{
			name: "missing auth tag",
			corrupt: func(t *testing.T, repo *memory.Repository) {
				rec, err := repo.Get(ctx, alice.UserID, "plaid")
				require.NoError(t, err)
				rec.AuthTag = ""
				require.NoError(t, repo.UpdateCAS(ctx, rec.Version, rec))
			},
			wantCause: "cause=malformed_envelope",
		},
		{
			name: "envelope copied from another name",
			corrupt: func(t *testing.T, repo *memory.Repository) {
				other, err := repo.Get(ctx, alice.UserID, "alpaca")
				require.NoError(t, err)
				rec, err := repo.Get(ctx, alice.UserID, "plaid")
				require.NoError(t, err)
				rec.EncryptedValue, rec.Salt, rec.IV, rec.AuthTag = other.EncryptedValue, other.Salt, other.IV, other.AuthTag
				require.NoError(t, repo.UpdateCAS(ctx, rec.Version, rec))
			},
			wantCause: "cause=integrity",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var logs bytes.Buffer
			repo := memory.NewRepository()
			svc := newTestService(t, repo, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

			_, err := svc.Create(ctx, alice, "plaid", "sk-test-1234567890")
			require.NoError(t, err)
			_, err = svc.Create(ctx, alice, "alpaca", "another-key")
			require.NoError(t, err)

			tc.corrupt(t, repo)

			secret, err := svc.Reveal(ctx, alice, "plaid")
			assert.Nil(t, secret)
			assert.ErrorIs(t, err, ErrRetrieveFailed)
			assert.NotErrorIs(t, err, vault.ErrDecryptionFailed)
			assert.Contains(t, logs.String(), tc.wantCause)
			assert.NotContains(t, logs.String(), "sk-test")
		})
	}
}

type failingRepo struct {
	*memory.Repository
	err error
}

func (f *failingRepo) Create(context.Context, *storage.CredentialRecord) error {
	return f.err
}

func TestCreateStorageFailure(t *testing.T) {
	repo := &failingRepo{Repository: memory.NewRepository(), err: errors.New("connection reset")}
	svc := newTestService(t, repo)

	_, err := svc.Create(context.Background(), alice, "plaid", "value")
	assert.ErrorIs(t, err, ErrStoreFailed)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	svc := newTestService(t, repo)

	_, err := svc.Create(ctx, alice, "alpaca", "pk-1")
	require.NoError(t, err)
	_, err = svc.Create(ctx, alice, "plaid", "sk-2")
	require.NoError(t, err)
	_, err = svc.Create(ctx, alice, "tiingo", "tk-3")
	require.NoError(t, err)

	rec, err := repo.Get(ctx, alice.UserID, "plaid")
	require.NoError(t, err)
	rec.Salt = "!!"
	require.NoError(t, repo.UpdateCAS(ctx, rec.Version, rec))

	rec, err = repo.Get(ctx, alice.UserID, "tiingo")
	require.NoError(t, err)
	other, err := repo.Get(ctx, alice.UserID, "alpaca")
	require.NoError(t, err)
	rec.EncryptedValue, rec.Salt, rec.IV, rec.AuthTag = other.EncryptedValue, other.Salt, other.IV, other.AuthTag
	require.NoError(t, repo.UpdateCAS(ctx, rec.Version, rec))

	results, err := svc.Check(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []CheckResult{
		{Name: "alpaca", OK: true},
		{Name: "plaid", OK: false, Cause: "malformed_envelope"},
		{Name: "tiingo", OK: false, Cause: "integrity"},
	}, results)

	// A user with no rows checks clean.
	results, err = svc.Check(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = svc.Check(ctx, vault.Identity{})
	assert.ErrorIs(t, err, vault.ErrInvalidIdentity)
}
