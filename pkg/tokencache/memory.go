package tokencache

import (
	"context"
	"time"

	"github.com/conduit-ucpi/webapp-sub000/pkg/cache"
)

// MemoryStore is a process-local Store. Entries fall out after MaxAge.
type MemoryStore struct {
	entries *cache.Cache[Record]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: cache.New[Record]("auth_token_store", cache.Options{TTL: MaxAge, MaxEntries: 1024}, cache.MetricsHooks{}),
	}
}

func (s *MemoryStore) Load(_ context.Context, key string) (Record, error) {
	rec, ok := s.entries.Peek(key)
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, rec Record) error {
	ttl := MaxAge - time.Since(rec.IssuedAt())
	if ttl <= 0 {
		// already stale; keep it briefly so the caller's validity check sees and drops it
		ttl = time.Minute
	}
	s.entries.Set(key, rec, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
