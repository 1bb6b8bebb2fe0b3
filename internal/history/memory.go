package history

import (
	"context"
	"sync"
)

// MemoryStore はプロセス内に履歴を保持します。Redis 未設定時とテストで使います。
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]Entry
}

// NewMemoryStore は空の MemoryStore を返します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]Entry)}
}

func (m *MemoryStore) Load(_ context.Context, key string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.data[key]...), nil
}

func (m *MemoryStore) Update(_ context.Context, key string, mutate func([]Entry) []Entry) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := mutate(append([]Entry(nil), m.data[key]...))
	if len(next) == 0 {
		delete(m.data, key)
		return []Entry{}, nil
	}
	m.data[key] = next
	return append([]Entry(nil), next...), nil
}
