package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	apperrors "github.com/popuplink/popuplink/internal/errors"
)

// inMemory implements StorefrontStore using an in-memory map. It backs the
// "memory" store backend and the unit tests.
type inMemory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewInMemoryStore creates a new instance of StorefrontStore.
func NewInMemoryStore() StorefrontStore {
	return &inMemory{
		entries: make(map[string][]byte),
	}
}

// Save persists the record, replacing any prior value under the same key.
func (s *inMemory) Save(_ context.Context, record StorefrontRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode storefront record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[record.Key()] = value
	return nil
}

// FindByID retrieves a storefront by its identifier.
func (s *inMemory) FindByID(_ context.Context, id string) (*StorefrontRecord, error) {
	key := StorefrontKeyPrefix + id
	s.mu.RLock()
	value, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrStorefrontNotFound
	}
	return DecodeRecord(key, value)
}

// FindAll retrieves all stored storefronts in no guaranteed order.
func (s *inMemory) FindAll(_ context.Context) ([]StorefrontRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]StorefrontRecord, 0, len(s.entries))
	for key, value := range s.entries {
		if !strings.HasPrefix(key, StorefrontKeyPrefix) {
			continue
		}
		rec, err := DecodeRecord(key, value)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// DeleteByID removes a storefront by its identifier. Deleting an absent id is
// not an error.
func (s *inMemory) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, StorefrontKeyPrefix+id)
	return nil
}

// SaveCredential stores the payment provider credential in its singleton entry.
func (s *inMemory) SaveCredential(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[CredentialKey] = []byte(key)
	return nil
}

// FindCredential returns the stored credential, or an empty string when none
// has been saved.
func (s *inMemory) FindCredential(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return string(s.entries[CredentialKey]), nil
}
