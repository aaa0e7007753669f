package r2client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// LockInfo is the JSON body of a lock object.
type LockInfo struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DistributedLock serializes snapshot publishers through a lock object.
// An expired lock may be taken over with an If-Match write.
type DistributedLock struct {
	store   ObjectStore
	key     string
	ttl     time.Duration
	ownerID string
	now     func() time.Time
}

// NewDistributedLock creates a lock with a fresh owner ID.
func NewDistributedLock(store ObjectStore, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		store:   store,
		key:     key,
		ttl:     ttl,
		ownerID: uuid.NewString(),
		now:     time.Now,
	}
}

// Acquire attempts to take the lock.
// Returns (false, nil) if another owner holds an unexpired lock.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	body, err := l.body()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	created, _, err := l.store.PutObjectIfNotExists(ctx, l.key, bytes.NewReader(body), "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if created {
		return true, nil
	}

	info, etag, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		// Released between our write and read; next attempt can create it.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if info != nil && l.now().Before(info.ExpiresAt) {
		return false, nil
	}

	stolen, _, err := l.store.PutObjectIfMatch(ctx, l.key, bytes.NewReader(body), etag, "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: take over: %w", err)
	}
	return stolen, nil
}

// Release deletes the lock if this instance still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	info, _, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if info != nil && info.Owner != l.ownerID {
		return nil
	}
	return l.store.DeleteObject(ctx, l.key)
}

// OwnerID returns the unique identifier of this lock instance.
func (l *DistributedLock) OwnerID() string {
	return l.ownerID
}

func (l *DistributedLock) body() ([]byte, error) {
	return json.Marshal(LockInfo{
		Owner:     l.ownerID,
		ExpiresAt: l.now().Add(l.ttl),
	})
}

// read returns the current lock. Unparseable lock data yields a nil info,
// which callers treat as expired.
func (l *DistributedLock) read(ctx context.Context) (*LockInfo, string, error) {
	body, etag, err := l.store.Download(ctx, l.key)
	if err != nil {
		return nil, "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read lock: %w", err)
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, etag, nil
	}
	return &info, etag, nil
}
