package relay

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SessionStore remembers the approved session topic so a later Connect can
// resume without showing a new pairing URI.
type SessionStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, topic string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the topic for the life of the process.
type MemoryStore struct {
	mu    sync.Mutex
	topic string
}

func (s *MemoryStore) Load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic, nil
}

func (s *MemoryStore) Save(_ context.Context, topic string) error {
	s.mu.Lock()
	s.topic = topic
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	return s.Save(context.Background(), "")
}

// FileStore persists the topic as a small JSON document.
type FileStore struct {
	Path string
}

type storedSession struct {
	Topic   string    `json:"topic"`
	SavedAt time.Time `json:"savedAt"`
}

func (s FileStore) Load(context.Context) (string, error) {
	raw, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return "", err
	}
	return stored.Topic, nil
}

func (s FileStore) Save(_ context.Context, topic string) error {
	raw, err := json.Marshal(storedSession{Topic: topic, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, raw, 0o600)
}

func (s FileStore) Clear(context.Context) error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
