package r2client

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sync"
)

// memStore is an in-memory ObjectStore with S3 conditional write semantics.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
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
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), etagOf(data), nil
}

func (m *memStore) HeadObject(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return "", ErrNotFound
	}
	return etagOf(data), nil
}

func (m *memStore) PutObjectIfNotExists(_ context.Context, key string, body io.Reader, _ string) (bool, string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return false, "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return false, "", nil
	}
	m.objects[key] = data
	return true, etagOf(data), nil
}

func (m *memStore) PutObjectIfMatch(_ context.Context, key string, body io.Reader, etag, _ string) (bool, string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return false, "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.objects[key]
	if !ok || etagOf(current) != etag {
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

var _ ObjectStore = (*memStore)(nil)
