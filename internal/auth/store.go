package auth

import (
	"context"
	"sync"

	"github.com/desertthunder/pulsemix/internal/models"
)

// TokenStore persists one [models.TokenRecord] per user.
type TokenStore interface {
	// Get returns the record for userID. The boolean is false when no record exists.
	Get(ctx context.Context, userID string) (models.TokenRecord, bool, error)
	Put(ctx context.Context, userID string, record models.TokenRecord) error
	Reset(ctx context.Context) error
}

// MemoryStore is a process-lifetime [TokenStore].
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.TokenRecord
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.TokenRecord)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (models.TokenRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[userID]
	return record, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, userID string, record models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = record
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]models.TokenRecord)
	return nil
}
