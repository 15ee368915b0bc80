package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/ledgerkeep/ledgerkeep/credentials"
	"github.com/ledgerkeep/ledgerkeep/internal/config"
	"github.com/ledgerkeep/ledgerkeep/internal/util"
	"github.com/ledgerkeep/ledgerkeep/storage"
	bboltstorage "github.com/ledgerkeep/ledgerkeep/storage/bbolt"
	"github.com/ledgerkeep/ledgerkeep/storage/memory"
	"github.com/ledgerkeep/ledgerkeep/storage/postgres"
	"github.com/ledgerkeep/ledgerkeep/vault"
)

// openRepository opens the configured storage backend. The returned close
// function releases it. readOnly opens the bbolt file with a shared lock;
// while a server holds the file the open fails with ErrDatabaseInUse.
func openRepository(ctx context.Context, c *config.Config, logger *slog.Logger, readOnly bool) (storage.Repository, func(), error) {
	switch c.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; credentials are lost on restart")
		return memory.NewRepository(), func() {}, nil

	case config.StorageBBolt:
		opts := &bbolt.Options{Timeout: bboltstorage.DefaultOpenTimeout, ReadOnly: readOnly}
		if !readOnly {
			if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
				return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(c.DataDir, "credentials.db"), opts)
		if errors.Is(err, bboltstorage.ErrDatabaseInUse) {
			return nil, nil, fmt.Errorf("credential storage in %s is in use; stop the server or use a postgres backend: %w", c.DataDir, err)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil

	case config.StoragePostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, c.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return repo, repo.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", c.Storage)
	}
}

// newCodec builds the vault codec from the configured master secret.
func newCodec(c *config.Config) (*vault.Codec, error) {
	secret, err := c.MasterSecretBytes()
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(secret)
	return vault.New(vault.Config{MasterSecret: secret})
}

// newService wires codec and storage into a credentials service.
func newService(ctx context.Context, c *config.Config, logger *slog.Logger, readOnly bool) (*credentials.Service, func(), error) {
	codec, err := newCodec(c)
	if err != nil {
		return nil, nil, err
	}
	repo, closeRepo, err := openRepository(ctx, c, logger, readOnly)
	if err != nil {
		return nil, nil, err
	}
	svc := credentials.NewService(repo, codec, credentials.WithLogger(logger.With("component", "credentials")))
	return svc, closeRepo, nil
}
