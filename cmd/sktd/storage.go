package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sktvault/config"
	"sktvault/storage"
)

// openDatabase opens the configured state backend. Bolt keeps a single file
// inside Path; LevelDB uses Path as its directory.
func openDatabase(cfg config.StorageConfig) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb", "":
		return storage.NewLevelDB(cfg.Path)
	case "bolt":
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.Path, "state.db"), nil)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
