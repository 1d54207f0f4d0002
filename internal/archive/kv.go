package archive

import (
	"context"
	"strings"
	"sync"
)

// CollectionKey is the fixed key holding the JSON array of saved videos.
const CollectionKey = "face-tracking-videos"

// KV is the blob store behind the archive. Get returns nil without error for a missing key.
// Backends must round-trip values byte for byte.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open selects a backend from dsn: postgres:// and postgresql:// use Postgres, sqlite://path uses
// SQLite, :memory: keeps everything in process, and anything else is a directory of JSON files.
func Open(ctx context.Context, dsn string) (KV, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(ctx, dsn)
	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"))
	case dsn == ":memory:":
		return NewMemoryStore(), nil
	default:
		return NewFileStore(dsn)
	}
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
