package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore хранит записи в памяти процесса. Для тестов и локального запуска без Redis/Postgres.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, token string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.data[token]
	if !ok {
		return nil, ErrMiss
	}
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, token string, _ uuid.UUID, _ string, output []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[token]; !ok {
		s.data[token] = output
	}
	return nil
}

// Len - число записей.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
