package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// HotSwapDB wraps a DB with thread-safe hot-swap capability.
// Queries hold a read lock, so they run concurrently with each other and
// finish before Swap replaces the underlying catalogue.
type HotSwapDB struct {
	mu        sync.RWMutex
	current   *DB
	localCity string
	metrics   MetricsRecorder
}

// NewHotSwapDB opens the initial catalogue at dbPath.
func NewHotSwapDB(ctx context.Context, dbPath, localCity string) (*HotSwapDB, error) {
	db, err := New(ctx, dbPath, localCity)
	if err != nil {
		return nil, fmt.Errorf("hotswap: create initial db: %w", err)
	}

	return &HotSwapDB{
		current:   db,
		localCity: localCity,
	}, nil
}

// Swap replaces the current catalogue with the one at newDBPath.
//
// Swap process:
//  1. Open and validate the new database
//  2. Acquire write lock (waits for in-flight queries)
//  3. Swap the database pointer
//  4. Release write lock
//  5. Close the old database and remove its files if the path changed
func (h *HotSwapDB) Swap(ctx context.Context, newDBPath string) error {
	newDB, err := New(ctx, newDBPath, h.localCity)
	if err != nil {
		return fmt.Errorf("hotswap: open new db: %w", err)
	}

	if _, err := newDB.CountUniversities(ctx); err != nil {
		_ = newDB.Close()
		return fmt.Errorf("hotswap: validate new db: %w", err)
	}

	h.mu.Lock()
	old := h.current
	newDB.SetMetrics(h.metrics)
	h.current = newDB
	h.mu.Unlock()

	oldPath := old.Path()
	if err := old.Close(); err != nil {
		return fmt.Errorf("hotswap: close old db: %w", err)
	}

	if oldPath != newDBPath && !isMemoryPath(oldPath) {
		_ = os.Remove(oldPath)
		_ = os.Remove(oldPath + "-wal")
		_ = os.Remove(oldPath + "-shm")
	}

	return nil
}

// SetMetrics sets the query recorder on the current and every future catalogue.
func (h *HotSwapDB) SetMetrics(recorder MetricsRecorder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = recorder
	h.current.SetMetrics(recorder)
}

// Path returns the current database file path.
func (h *HotSwapDB) Path() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Path()
}

// Close closes the current database.
func (h *HotSwapDB) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		return h.current.Close()
	}
	return nil
}

// Ping checks if the current database is accessible.
func (h *HotSwapDB) Ping(ctx context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Ping(ctx)
}

// ListSpecialties delegates to the current catalogue.
func (h *HotSwapDB) ListSpecialties(ctx context.Context) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.ListSpecialties(ctx)
}

// CountSpecialties delegates to the current catalogue.
func (h *HotSwapDB) CountSpecialties(ctx context.Context) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.CountSpecialties(ctx)
}

// CountUniversities delegates to the current catalogue.
func (h *HotSwapDB) CountUniversities(ctx context.Context) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.CountUniversities(ctx)
}

// UniversitiesFor delegates to the current catalogue.
func (h *HotSwapDB) UniversitiesFor(ctx context.Context, specialty string, limit int) ([]University, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.UniversitiesFor(ctx, specialty, limit)
}

// Stats delegates to the current catalogue.
func (h *HotSwapDB) Stats(ctx context.Context) (Stats, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Stats(ctx)
}
