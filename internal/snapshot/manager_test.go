package snapshot

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/garyellow/unibot-go/internal/logger"
	"github.com/garyellow/unibot-go/internal/metrics"
	"github.com/garyellow/unibot-go/internal/r2client"
	"github.com/garyellow/unibot-go/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is an in-memory r2client.ObjectStore.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	downloads int
	headErr   error
	headFails int // transient failures before HeadObject succeeds
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (m *memStore) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return etagOf(data), nil
}

func (m *memStore) Download(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, "", r2client.ErrNotFound
	}
	m.downloads++
	return io.NopCloser(bytes.NewReader(data)), etagOf(data), nil
}

func (m *memStore) HeadObject(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headErr != nil {
		return "", m.headErr
	}
	if m.headFails > 0 {
		m.headFails--
		return "", errors.New("connection reset")
	}
	data, ok := m.objects[key]
	if !ok {
		return "", r2client.ErrNotFound
	}
	return etagOf(data), nil
}

func (m *memStore) PutObjectIfNotExists(_ context.Context, key string, body io.Reader, _ string) (bool, string, error) {
	data, _ := io.ReadAll(body)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return false, "", nil
	}
	m.objects[key] = data
	return true, etagOf(data), nil
}

func (m *memStore) PutObjectIfMatch(_ context.Context, key string, body io.Reader, etag, _ string) (bool, string, error) {
	data, _ := io.ReadAll(body)
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.objects[key]; !ok || etagOf(current) != etag {
		return false, "", nil
	}
	m.objects[key] = data
	return true, etagOf(data), nil
}

func (m *memStore) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) downloadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloads
}

var medicine = []storage.University{
	{Name: "Первый МГМУ", City: "Москва", PassingScore: 290, Link: "https://sechenov.ru", Specialty: "Медицина"},
	{Name: "СПбГМУ", City: "Санкт-Петербург", PassingScore: 285, Specialty: "Медицина"},
}

var law = []storage.University{
	{Name: "МГЮА", City: "Москва", PassingScore: 280, Specialty: "Право"},
}

func newTestManager(t *testing.T, store *memStore) (*Manager, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	mgr := New(store, Config{
		SnapshotKey:  "snapshots/catalogue.db.zst",
		LockKey:      "locks/catalogue.lock",
		LockTTL:      time.Minute,
		PollInterval: 20 * time.Millisecond,
		DataDir:      t.TempDir(),
	}, logger.NewWithWriter("error", io.Discard), m)
	return mgr, m
}

// buildCatalogue writes a checkpointed catalogue database and returns its path.
func buildCatalogue(t *testing.T, rows []storage.University) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "source.db")
	db, err := storage.New(ctx, path, "Москва")
	require.NoError(t, err)
	require.NoError(t, db.ReplaceUniversities(ctx, rows))
	require.NoError(t, db.Checkpoint(ctx))
	require.NoError(t, db.Close())
	return path
}

func publish(t *testing.T, mgr *Manager, rows []storage.University) string {
	t.Helper()
	etag, err := mgr.Publish(context.Background(), buildCatalogue(t, rows))
	require.NoError(t, err)
	return etag
}

func countUniversities(t *testing.T, path string) int {
	t.Helper()
	db, err := storage.New(context.Background(), path, "Москва")
	require.NoError(t, err)
	defer db.Close()
	n, err := db.CountUniversities(context.Background())
	require.NoError(t, err)
	return n
}

func TestBootstrap_NoSnapshot(t *testing.T) {
	mgr, _ := newTestManager(t, newMemStore())

	err := mgr.Bootstrap(context.Background(), filepath.Join(t.TempDir(), "catalogue.db"))

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBootstrap_RetriesTransientErrors(t *testing.T) {
	store := newMemStore()
	mgr, _ := newTestManager(t, store)
	publish(t, mgr, medicine)
	store.headFails = 2
	dbPath := filepath.Join(t.TempDir(), "catalogue.db")

	mgr.config.BootstrapRetries = 1
	mgr.retryDelay = time.Millisecond
	require.Error(t, mgr.Bootstrap(context.Background(), dbPath), "one retry is not enough")

	store.headFails = 2
	mgr.config.BootstrapRetries = 3
	require.NoError(t, mgr.Bootstrap(context.Background(), dbPath))
	assert.Equal(t, 2, countUniversities(t, dbPath))
}

func TestPublishAndBootstrap(t *testing.T) {
	store := newMemStore()
	mgr, _ := newTestManager(t, store)
	etag := publish(t, mgr, medicine)
	dbPath := filepath.Join(t.TempDir(), "data", "catalogue.db")

	require.NoError(t, mgr.Bootstrap(context.Background(), dbPath))

	assert.Equal(t, 2, countUniversities(t, dbPath))
	assert.Equal(t, etag, mgr.CurrentETag())
	assert.Equal(t, 1, store.downloadCount())

	// Unchanged snapshot is not downloaded again.
	other, _ := newTestManager(t, store)
	require.NoError(t, other.Bootstrap(context.Background(), dbPath))
	assert.Equal(t, 1, store.downloadCount())
	assert.Equal(t, etag, other.CurrentETag())

	// A new snapshot replaces the local file.
	publish(t, mgr, law)
	require.NoError(t, other.Bootstrap(context.Background(), dbPath))
	assert.Equal(t, 2, store.downloadCount())
	assert.Equal(t, 1, countUniversities(t, dbPath))
}

func TestPublish_LockHeld(t *testing.T) {
	store := newMemStore()
	mgr, _ := newTestManager(t, store)
	holder := r2client.NewDistributedLock(store, mgr.config.LockKey, time.Minute)
	acquired, err := holder.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = mgr.Publish(context.Background(), buildCatalogue(t, medicine))

	assert.ErrorIs(t, err, ErrLocked)
	_, err = store.HeadObject(context.Background(), mgr.config.SnapshotKey)
	assert.ErrorIs(t, err, r2client.ErrNotFound, "nothing uploaded")
}

func TestPublish_ReleasesLock(t *testing.T) {
	store := newMemStore()
	mgr, _ := newTestManager(t, store)

	publish(t, mgr, medicine)

	_, err := store.HeadObject(context.Background(), mgr.config.LockKey)
	assert.ErrorIs(t, err, r2client.ErrNotFound)
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	mgr, m := newTestManager(t, store)

	status, err := mgr.Sync(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, status)

	publish(t, mgr, law)
	livePath := filepath.Join(t.TempDir(), "catalogue.db")
	require.NoError(t, mgr.Bootstrap(ctx, livePath))
	live, err := storage.NewHotSwapDB(ctx, livePath, "Москва")
	require.NoError(t, err)
	t.Cleanup(func() { _ = live.Close() })

	status, err = mgr.Sync(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, status)

	etag := publish(t, mgr, medicine)
	status, err = mgr.Sync(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, StatusSwapped, status)
	assert.Equal(t, etag, mgr.CurrentETag())

	n, err := live.CountUniversities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotEqual(t, livePath, live.Path())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotSyncTotal.WithLabelValues(StatusSwapped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotSyncTotal.WithLabelValues(StatusUnchanged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotSyncTotal.WithLabelValues(StatusMissing)))
}

type failingSwapper struct{ path string }

func (f *failingSwapper) Swap(_ context.Context, path string) error {
	f.path = path
	return errors.New("validation failed")
}

func TestSync_SwapFailureCleansUp(t *testing.T) {
	store := newMemStore()
	mgr, m := newTestManager(t, store)
	publish(t, mgr, medicine)
	swapper := &failingSwapper{}

	status, err := mgr.Sync(context.Background(), swapper)

	require.Error(t, err)
	assert.Equal(t, StatusError, status)
	assert.Empty(t, mgr.CurrentETag(), "ETag only advances after a successful swap")
	_, statErr := os.Stat(swapper.path)
	assert.True(t, os.IsNotExist(statErr), "downloaded file removed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotSyncTotal.WithLabelValues(StatusError)))
}

func TestSync_HeadError(t *testing.T) {
	store := newMemStore()
	store.headErr = errors.New("network down")
	mgr, _ := newTestManager(t, store)

	status, err := mgr.Sync(context.Background(), &failingSwapper{})

	require.Error(t, err)
	assert.Equal(t, StatusError, status)
}

func TestPolling_SwapsNewSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	mgr, _ := newTestManager(t, store)
	publish(t, mgr, law)
	livePath := filepath.Join(t.TempDir(), "catalogue.db")
	require.NoError(t, mgr.Bootstrap(ctx, livePath))
	live, err := storage.NewHotSwapDB(ctx, livePath, "Москва")
	require.NoError(t, err)
	t.Cleanup(func() { _ = live.Close() })

	mgr.StartPolling(ctx, live)
	mgr.StartPolling(ctx, live) // second start is a no-op
	publish(t, mgr, medicine)

	assert.Eventually(t, func() bool {
		n, err := live.CountUniversities(ctx)
		return err == nil && n == 2
	}, 5*time.Second, 10*time.Millisecond)

	mgr.StopPolling()
	mgr.StopPolling()
}
