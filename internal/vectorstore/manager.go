package vectorstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/isolation"
)

// ManagerConfig holds settings shared by every per-tenant store.
type ManagerConfig struct {
	// BasePath is the root directory for all stores. The shared store
	// lives at {BasePath}/shared, tenant stores at
	// {BasePath}/isolated/{key}.
	BasePath string

	// Compress enables gzip compression of persisted vectors.
	Compress bool

	// VectorSize is the embedding dimension every store enforces.
	VectorSize int
}

// Manager hands out per-isolation-key stores, opening them lazily and
// caching at most one live handle per key.
type Manager struct {
	config ManagerConfig
	logger *zap.Logger

	mu     sync.RWMutex
	stores map[string]*ChromemStore
	closed bool
}

// NewManager creates a store manager rooted at config.BasePath.
func NewManager(config ManagerConfig, logger *zap.Logger) (*Manager, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("%w: base path required", ErrInvalidConfig)
	}
	if config.VectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		config: config,
		logger: logger,
		stores: make(map[string]*ChromemStore),
	}, nil
}

// cacheKey distinguishes the shared store from tenant stores.
func cacheKey(isolationKey string) string {
	if isolationKey == "" {
		return "shared"
	}
	return "isolated:" + isolationKey
}

// GetStore returns the store for the isolation key, opening it on first
// use. An empty key addresses the shared store. Concurrent callers for the
// same key receive the same handle; a failed open is not cached, so the
// next caller retries.
func (m *Manager) GetStore(ctx context.Context, isolationKey string) (Store, error) {
	key := cacheKey(isolationKey)

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	if store, ok := m.stores[key]; ok {
		m.mu.RUnlock()
		return store, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	// Re-check: another goroutine may have opened it while we waited.
	if store, ok := m.stores[key]; ok {
		return store, nil
	}

	dir := isolation.IsolatedPath(m.config.BasePath, isolationKey)
	store, err := NewChromemStore(dir, m.config.Compress, m.config.VectorSize, m.logger)
	if err != nil {
		return nil, fmt.Errorf("opening store for key %q: %w", isolationKey, err)
	}

	m.stores[key] = store
	m.logger.Info("opened vector store",
		zap.String("dir", dir),
		zap.Bool("isolated", isolationKey != ""),
	)
	return store, nil
}

// Clear empties the store for the isolation key, keeping the handle alive.
func (m *Manager) Clear(ctx context.Context, isolationKey string) error {
	store, err := m.GetStore(ctx, isolationKey)
	if err != nil {
		return err
	}
	return store.Clear(ctx)
}

// Drop closes the store for the isolation key and removes its directory.
// Dropping a key with no open handle still removes any on-disk residue.
func (m *Manager) Drop(ctx context.Context, isolationKey string) error {
	key := cacheKey(isolationKey)

	m.mu.Lock()
	store, ok := m.stores[key]
	delete(m.stores, key)
	m.mu.Unlock()

	if ok {
		if err := store.Close(); err != nil {
			return fmt.Errorf("closing store for key %q: %w", isolationKey, err)
		}
	}

	dir := isolation.IsolatedPath(m.config.BasePath, isolationKey)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing store dir %s: %w", dir, err)
	}

	m.logger.Info("dropped vector store", zap.String("dir", dir))
	return nil
}

// Close releases every open store. The manager is unusable afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for key, store := range m.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing store %s: %w", key, err)
		}
	}
	m.stores = nil
	return firstErr
}
