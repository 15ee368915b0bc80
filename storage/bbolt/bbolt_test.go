package bbolt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ledgerkeep/ledgerkeep/storage"
	"github.com/ledgerkeep/ledgerkeep/storage/storagetest"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "credentials-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBBoltStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return NewRepository(newTestDB(t))
	})
}

func TestBBoltStoragePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")

	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewRepositoryFromFile failed: %v", err)
	}
	if err := s.Create(t.Context(), storagetest.NewRecord("user-42", "plaid")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.Get(t.Context(), "user-42", "plaid")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.Name != "plaid" {
		t.Errorf("expected name plaid, got %q", got.Name)
	}
}

func TestNewRepositoryFromFileFailsWhileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")

	holder, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewRepositoryFromFile failed: %v", err)
	}
	defer holder.Close()

	tests := []struct {
		name    string
		options *bbolt.Options
		within  time.Duration
	}{
		{"default timeout", nil, DefaultOpenTimeout + 2*time.Second},
		{"explicit timeout", &bbolt.Options{Timeout: 100 * time.Millisecond}, 2 * time.Second},
		{"read only", &bbolt.Options{ReadOnly: true, Timeout: 100 * time.Millisecond}, 2 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			type result struct {
				store *Store
				err   error
			}
			done := make(chan result, 1)
			go func() {
				s, err := NewRepositoryFromFile(path, tc.options)
				done <- result{s, err}
			}()

			select {
			case r := <-done:
				if r.err == nil {
					r.store.Close()
					t.Fatal("expected second open to fail while the file is locked")
				}
				if !errors.Is(r.err, ErrDatabaseInUse) {
					t.Fatalf("expected ErrDatabaseInUse, got %v", r.err)
				}
			case <-time.After(tc.within):
				t.Fatalf("second open still blocked after %s", tc.within)
			}
		})
	}
}

func TestNewRepositoryFromFileReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")

	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewRepositoryFromFile failed: %v", err)
	}
	if err := s.Create(t.Context(), storagetest.NewRecord("user-42", "plaid")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	s.Close()

	ro, err := NewRepositoryFromFile(path, &bbolt.Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("read-only open failed: %v", err)
	}
	defer ro.Close()

	recs, err := ro.List(t.Context(), "user-42")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "plaid" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if err := ro.Create(t.Context(), storagetest.NewRecord("user-42", "other")); err == nil {
		t.Fatal("expected write to a read-only database to fail")
	}
}
