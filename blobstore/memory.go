package blobstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores data and returns its reference
func (s *MemoryStore) Put(ctx context.Context, data []byte) (string, error) {
	ref := Reference(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		s.blobs[ref] = slices.Clone(data)
	}
	return ref, nil
}

// Get returns the bytes stored under ref
func (s *MemoryStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if _, err := parseReference(ref); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return slices.Clone(data), nil
}

// Len returns the number of stored blobs
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
