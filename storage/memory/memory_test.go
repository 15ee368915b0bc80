package memory

import (
	"context"
	"testing"

	"github.com/ledgerkeep/ledgerkeep/storage"
	"github.com/ledgerkeep/ledgerkeep/storage/storagetest"
)

func TestMemoryRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return NewRepository()
	})
}

func TestMemoryRepositoryDropsEmptyUsers(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, storagetest.NewRecord("user-42", "plaid")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Delete(ctx, "user-42", "plaid"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := repo.data["user-42"]; ok {
		t.Error("expected user bucket to be removed after last delete")
	}
}
