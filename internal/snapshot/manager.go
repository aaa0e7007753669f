// Package snapshot distributes the catalogue database through R2.
// Publishers upload a zstd-compressed copy under a distributed lock; servers
// download it at startup and poll its ETag, hot-swapping the store when a
// new snapshot appears.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/garyellow/unibot-go/internal/logger"
	"github.com/garyellow/unibot-go/internal/metrics"
	"github.com/garyellow/unibot-go/internal/r2client"
	"github.com/garyellow/unibot-go/internal/retry"
)

var (
	// ErrNotFound indicates no snapshot exists in R2.
	ErrNotFound = errors.New("snapshot: not found")
	// ErrLocked indicates another publisher holds the lock.
	ErrLocked = errors.New("snapshot: publish lock held by another instance")
)

// Sync outcomes, also used as metric labels.
const (
	StatusSwapped   = "swapped"
	StatusUnchanged = "unchanged"
	StatusMissing   = "missing"
	StatusError     = "error"
)

// Swapper replaces the live catalogue with the database at path.
// *storage.HotSwapDB implements it.
type Swapper interface {
	Swap(ctx context.Context, path string) error
}

// Config holds snapshot manager configuration.
type Config struct {
	SnapshotKey  string        // Object key of the compressed snapshot
	LockKey      string        // Object key of the publish lock
	LockTTL      time.Duration // Lock expiry for crashed publishers
	PollInterval time.Duration
	DataDir      string // Directory for downloaded databases

	// BootstrapRetries retries transient R2 failures at startup; 0 tries once.
	BootstrapRetries int
}

// bootstrapRetryDelay is the first backoff step of Bootstrap retries.
const bootstrapRetryDelay = time.Second

// Manager synchronizes the catalogue database with R2.
type Manager struct {
	store   r2client.ObjectStore
	config  Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	sf      singleflight.Group

	retryDelay time.Duration

	mu          sync.RWMutex
	currentETag string

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a new snapshot manager. m may be nil (CLI use).
func New(store r2client.ObjectStore, cfg Config, log *logger.Logger, m *metrics.Metrics) *Manager {
	if cfg.DataDir == "" {
		cfg.DataDir = os.TempDir()
	}
	return &Manager{
		store:   store,
		config:  cfg,
		logger:  log.WithModule("snapshot"),
		metrics: m,

		retryDelay: bootstrapRetryDelay,
	}
}

// Bootstrap makes dbPath hold the latest snapshot before the store opens.
// The ETag of a downloaded snapshot is kept next to the database so a
// restart skips the download when nothing changed. Returns ErrNotFound if
// no snapshot was ever published.
func (m *Manager) Bootstrap(ctx context.Context, dbPath string) error {
	var remoteETag string
	err := retry.Do(ctx, m.config.BootstrapRetries, m.retryDelay, func() error {
		etag, err := m.store.HeadObject(ctx, m.config.SnapshotKey)
		if errors.Is(err, r2client.ErrNotFound) {
			return retry.Permanent(ErrNotFound)
		}
		remoteETag = etag
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("head snapshot: %w", err)
	}

	if localETag := readETag(dbPath); localETag == remoteETag && fileExists(dbPath) {
		m.setETag(remoteETag)
		m.logger.WithField("etag", remoteETag).Info("Local catalogue matches snapshot")
		return nil
	}

	var etag string
	err = retry.Do(ctx, m.config.BootstrapRetries, m.retryDelay, func() error {
		var err error
		etag, err = m.download(ctx, dbPath)
		if errors.Is(err, ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return err
	}
	// The old WAL belongs to the replaced file.
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	if err := writeETag(dbPath, etag); err != nil {
		m.logger.WithError(err).Warn("Failed to record snapshot ETag")
	}
	m.setETag(etag)
	m.logger.WithField("etag", etag).Info("Catalogue snapshot downloaded")
	return nil
}

// Sync swaps in the remote snapshot if its ETag changed. Concurrent calls
// share one download.
func (m *Manager) Sync(ctx context.Context, db Swapper) (string, error) {
	v, err, _ := m.sf.Do("sync", func() (any, error) {
		status, err := m.sync(ctx, db)
		if m.metrics != nil {
			m.metrics.RecordSnapshotSync(status)
		}
		return status, err
	})
	status, _ := v.(string)
	return status, err
}

func (m *Manager) sync(ctx context.Context, db Swapper) (string, error) {
	remoteETag, err := m.store.HeadObject(ctx, m.config.SnapshotKey)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			return StatusMissing, nil
		}
		return StatusError, fmt.Errorf("head snapshot: %w", err)
	}
	current := m.CurrentETag()
	if remoteETag == current {
		return StatusUnchanged, nil
	}

	m.logger.WithField("old_etag", current).
		WithField("new_etag", remoteETag).
		Info("New snapshot detected, initiating hot-swap")

	newPath := filepath.Join(m.config.DataDir, fmt.Sprintf("catalogue_%d.db", time.Now().UnixNano()))
	etag, err := m.download(ctx, newPath)
	if err != nil {
		return StatusError, err
	}

	if err := db.Swap(ctx, newPath); err != nil {
		removeDB(newPath)
		return StatusError, fmt.Errorf("hot-swap: %w", err)
	}

	m.setETag(etag)
	m.logger.WithField("etag", etag).Info("Hot-swap completed successfully")
	return StatusSwapped, nil
}

// download streams the snapshot into dstPath and returns its ETag.
func (m *Manager) download(ctx context.Context, dstPath string) (string, error) {
	body, etag, err := m.store.Download(ctx, m.config.SnapshotKey)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("download snapshot: %w", err)
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := r2client.DecompressStream(body, dstPath); err != nil {
		return "", fmt.Errorf("decompress snapshot: %w", err)
	}
	return etag, nil
}

// Publish compresses srcPath and uploads it as the new snapshot. The
// database must be checkpointed so the main file is self-contained.
func (m *Manager) Publish(ctx context.Context, srcPath string) (string, error) {
	lock := r2client.NewDistributedLock(m.store, m.config.LockKey, m.config.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire publish lock: %w", err)
	}
	if !acquired {
		return "", ErrLocked
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			m.logger.WithError(err).Warn("Failed to release publish lock")
		}
	}()

	compressedPath := filepath.Join(os.TempDir(), fmt.Sprintf("catalogue_%d.db.zst", time.Now().UnixNano()))
	if err := r2client.CompressFile(srcPath, compressedPath); err != nil {
		return "", fmt.Errorf("compress database: %w", err)
	}
	defer os.Remove(compressedPath)

	f, err := os.Open(compressedPath)
	if err != nil {
		return "", fmt.Errorf("open compressed file: %w", err)
	}
	defer f.Close()

	etag, err := m.store.Upload(ctx, m.config.SnapshotKey, f, "application/zstd")
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	m.logger.WithField("etag", etag).
		WithField("owner", lock.OwnerID()).
		Info("Catalogue snapshot published")
	return etag, nil
}

// StartPolling syncs every PollInterval until StopPolling is called.
func (m *Manager) StartPolling(ctx context.Context, db Swapper) {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()
	if m.pollCancel != nil {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.pollCancel = cancel
	m.pollDone = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(m.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				m.logger.Info("Snapshot polling stopped")
				return
			case <-ticker.C:
				if _, err := m.Sync(pollCtx, db); err != nil && pollCtx.Err() == nil {
					m.logger.WithError(err).Error("Snapshot sync failed")
				}
			}
		}
	}()

	m.logger.WithField("interval", m.config.PollInterval.String()).
		WithField("snapshot_key", m.config.SnapshotKey).
		Info("Snapshot polling started")
}

// StopPolling stops the background polling goroutine and waits for it.
func (m *Manager) StopPolling() {
	m.pollMu.Lock()
	cancel, done := m.pollCancel, m.pollDone
	m.pollCancel, m.pollDone = nil, nil
	m.pollMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// CurrentETag returns the ETag of the currently loaded snapshot.
func (m *Manager) CurrentETag() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentETag
}

func (m *Manager) setETag(etag string) {
	m.mu.Lock()
	m.currentETag = etag
	m.mu.Unlock()
}

func etagPath(dbPath string) string {
	return dbPath + ".etag"
}

func readETag(dbPath string) string {
	data, err := os.ReadFile(etagPath(dbPath))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writeETag(dbPath, etag string) error {
	return os.WriteFile(etagPath(dbPath), []byte(etag+"\n"), 0o644)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func removeDB(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
}
