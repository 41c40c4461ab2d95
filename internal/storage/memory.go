package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process ObjectStore. Listing is lexical by key, the
// same order S3 returns.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte

	// ListErr and GetErr, when set, are returned by the matching call.
	ListErr error
	GetErr  error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: map[string]map[string][]byte{}}
}

func (m *MemoryStore) Put(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = map[string][]byte{}
	}
	m.buckets[bucket][key] = body
}

func (m *MemoryStore) ListObjects(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ObjectInfo
	for key, body := range m.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(body))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	body, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("no such key: %s/%s", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}
