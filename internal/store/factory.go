package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// Open returns the checkpoint store for backend rooted at dataDir.
// The SQLite database is <dataDir>/metagen.db.
func Open(ctx context.Context, backend, dataDir string) (Store, error) {
	switch backend {
	case "", BackendFS:
		return NewFSStore(dataDir)
	case BackendSQLite:
		if _, err := NewFSStore(dataDir); err != nil {
			return nil, err
		}
		s := NewSQLiteStore(filepath.Join(dataDir, "metagen.db"))
		if err := s.Init(ctx); err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}

// CloseIfSupported closes stores that hold resources.
func CloseIfSupported(s Store) error {
	closer, ok := s.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
