package server

import (
	"context"
	"fmt"
	"os"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/config"
	"github.com/rcookie777/pizza-api/pkg/rollup"
	"github.com/rcookie777/pizza-api/pkg/storage"
	"github.com/rcookie777/pizza-api/pkg/storage/badger"
	"github.com/rcookie777/pizza-api/pkg/storage/memory"
	"github.com/rcookie777/pizza-api/pkg/storage/postgres"
	"github.com/rcookie777/pizza-api/pkg/storage/supabase"
)

// Backend is a measurement store plus the rollup store that lives beside it.
type Backend struct {
	Name    string
	Store   storage.Storage
	Rollups rollup.Store
}

// OpenBackend initializes the storage backend selected by cfg.StoreBackend.
func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		return &Backend{
			Name:    cfg.StoreBackend,
			Store:   memory.New(),
			Rollups: rollup.NewMemoryStore(),
		}, nil

	case config.BackendBadger:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		log.WithField("path", cfg.DataDir).Info("initializing BadgerDB storage")
		store, err := badger.New(badger.Config{
			Path:        cfg.DataDir,
			MaxMemoryMB: cfg.MaxMemoryMB,
		})
		if err != nil {
			return nil, err
		}
		return &Backend{Name: cfg.StoreBackend, Store: store, Rollups: store}, nil

	case config.BackendPostgres:
		log.Info("connecting to PostgreSQL")
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		return &Backend{Name: cfg.StoreBackend, Store: store, Rollups: store}, nil

	case config.BackendSupabase:
		log.WithField("url", cfg.SupabaseURL).Info("using Supabase REST storage")
		store, err := supabase.New(supabase.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		})
		if err != nil {
			return nil, err
		}
		return &Backend{Name: cfg.StoreBackend, Store: store, Rollups: store}, nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.StoreBackend)
}

// LoadCatalog returns the catalog from cfg.CatalogFile, or the built-in list.
func LoadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogFile == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	log.WithField("file", cfg.CatalogFile).WithField("restaurants", cat.Len()).Info("catalog loaded")
	return cat, nil
}
