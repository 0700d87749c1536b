package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/playperu/storyline/internal/database"
	"github.com/playperu/storyline/internal/migrations"
	"github.com/playperu/storyline/internal/storyline"
)

// Registry opens and caches one local database per device under dir. An
// empty dir keeps every device database in memory.
type Registry struct {
	dir    string
	mu     sync.RWMutex
	stores map[string]*Local
}

func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:    dir,
		stores: make(map[string]*Local),
	}
}

// Local returns the store of device, opening and migrating it on first use.
func (r *Registry) Local(ctx context.Context, device string) (*Local, error) {
	if err := uuid.Validate(device); err != nil {
		return nil, storyline.Newf(storyline.CodeNotFound, "device %q not found", device)
	}

	r.mu.RLock()
	s, ok := r.stores[device]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock.
	if s, ok := r.stores[device]; ok {
		return s, nil
	}

	s, err := r.open(ctx, device)
	if err != nil {
		return nil, err
	}
	r.stores[device] = s
	return s, nil
}

func (r *Registry) open(ctx context.Context, device string) (*Local, error) {
	path := database.Memory
	if r.dir != "" {
		path = filepath.Join(r.dir, device+".db")
	}
	db, err := database.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening device db %q: %w", device, err)
	}
	if err := migrations.Run(ctx, db, migrations.Device); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating device db %q: %w", device, err)
	}
	return NewLocal(db), nil
}

// Open reports how many device databases are currently open.
func (r *Registry) Open() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for device, s := range r.stores {
		s.db.Close()
		delete(r.stores, device)
	}
	return nil
}

// IndexDB opens the shared device index database under dir.
func IndexDB(ctx context.Context, dir string) (*sql.DB, error) {
	path := database.Memory
	if dir != "" {
		path = filepath.Join(dir, "devices.db")
	}
	db, err := database.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening device index: %w", err)
	}
	if err := migrations.Run(ctx, db, migrations.Index); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating device index: %w", err)
	}
	return db, nil
}
