// Package storagetest holds the behaviour every storage.Repository backend
// must share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkeep/ledgerkeep/storage"
)

// NewRecord returns a record with plausible envelope fields.
func NewRecord(userID, name string) *storage.CredentialRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &storage.CredentialRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           name,
		EncryptedValue: "Y2lwaGVy",
		Salt:           "AAAAAAAAAAAAAAAAAAAAAA==",
		IV:             "AAAAAAAAAAAAAAAA",
		AuthTag:        "AAAAAAAAAAAAAAAAAAAAAA==",
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Run exercises repo against the storage.Repository contract. newRepo must
// return an empty repository each time it is called.
func Run(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	t.Run("CreateGet", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := NewRecord("user-42", "plaid")

		require.NoError(t, repo.Create(ctx, rec))

		got, err := repo.Get(ctx, "user-42", "plaid")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.EncryptedValue, got.EncryptedValue)
		assert.Equal(t, rec.Salt, got.Salt)
		assert.Equal(t, rec.IV, got.IV)
		assert.Equal(t, rec.AuthTag, got.AuthTag)
		assert.Equal(t, rec.Version, got.Version)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("ReturnedRecordIsACopy", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, NewRecord("user-42", "plaid")))

		got, err := repo.Get(ctx, "user-42", "plaid")
		require.NoError(t, err)
		got.EncryptedValue = "changed"

		again, err := repo.Get(ctx, "user-42", "plaid")
		require.NoError(t, err)
		assert.Equal(t, "Y2lwaGVy", again.EncryptedValue)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, NewRecord("user-42", "plaid")))

		err := repo.Create(ctx, NewRecord("user-42", "plaid"))
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)

		// The same name under another user is a different row.
		assert.NoError(t, repo.Create(ctx, NewRecord("user-43", "plaid")))
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, NewRecord("user-42", "plaid")))

		_, err := repo.Get(ctx, "user-42", "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = repo.Get(ctx, "user-43", "plaid")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListIsScopedAndOrdered", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for _, name := range []string{"zeta", "alpha", "mid", "Beta", "a_b", "a-b"} {
			require.NoError(t, repo.Create(ctx, NewRecord("user-42", name)))
		}
		require.NoError(t, repo.Create(ctx, NewRecord("user-43", "other")))

		recs, err := repo.List(ctx, "user-42")
		require.NoError(t, err)
		names := make([]string, 0, len(recs))
		for _, rec := range recs {
			names = append(names, rec.Name)
		}
		// Byte order: '-' < uppercase < '_' < lowercase.
		assert.Equal(t, []string{"Beta", "a-b", "a_b", "alpha", "mid", "zeta"}, names)

		recs, err = repo.List(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("UpdateCAS", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := NewRecord("user-42", "plaid")
		require.NoError(t, repo.Create(ctx, rec))

		next := rec.Clone()
		next.EncryptedValue = "bmV3"
		next.Version = 2
		next.UpdatedAt = rec.UpdatedAt.Add(time.Minute)
		require.NoError(t, repo.UpdateCAS(ctx, 1, next))

		got, err := repo.Get(ctx, "user-42", "plaid")
		require.NoError(t, err)
		assert.Equal(t, "bmV3", got.EncryptedValue)
		assert.Equal(t, uint64(2), got.Version)
		assert.Equal(t, rec.ID, got.ID)

		stale := rec.Clone()
		stale.Version = 2
		assert.ErrorIs(t, repo.UpdateCAS(ctx, 1, stale), storage.ErrCASFailed)

		missing := NewRecord("user-42", "missing")
		assert.ErrorIs(t, repo.UpdateCAS(ctx, 1, missing), storage.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, NewRecord("user-42", "plaid")))

		assert.ErrorIs(t, repo.Delete(ctx, "user-43", "plaid"), storage.ErrNotFound)
		require.NoError(t, repo.Delete(ctx, "user-42", "plaid"))

		_, err := repo.Get(ctx, "user-42", "plaid")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "user-42", "plaid"), storage.ErrNotFound)

		// The name is free again.
		assert.NoError(t, repo.Create(ctx, NewRecord("user-42", "plaid")))
	})

	t.Run("ConcurrentCreate", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		results := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- repo.Create(ctx, NewRecord("user-42", "race"))
			}()
		}
		wg.Wait()
		close(results)

		created := 0
		for err := range results {
			if err == nil {
				created++
				continue
			}
			assert.ErrorIs(t, err, storage.ErrAlreadyExists)
		}
		assert.Equal(t, 1, created)
	})
}
