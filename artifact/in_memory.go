package artifact

import (
	"fmt"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// InMemoryStore is an in‑process PayloadStore. Payloads are kept zstd
// compressed in a map guarded by an RWMutex. Data is copied on save and
// retrieval, so callers never share buffers with the store.
//
// Quota bounds the sum of compressed sizes; zero means unbounded.
type InMemoryStore struct {
	mu       sync.RWMutex
	payloads map[string][]byte // agentID -> compressed data
	used     int
	quota    int

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewInMemoryStore returns an empty store with the given byte quota.
func NewInMemoryStore(quota int) *InMemoryStore {
	// nil writer/reader: only EncodeAll/DecodeAll are used
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	dec, _ := zstd.NewReader(nil)
	return &InMemoryStore{payloads: make(map[string][]byte), quota: quota, enc: enc, dec: dec}
}

// Save stores (or overwrites) the payload of an agent.
func (s *InMemoryStore) Save(agentID string, data []byte) error {
	packed := s.enc.EncodeAll(data, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	used := s.used - len(s.payloads[agentID]) + len(packed)
	if s.quota > 0 && used > s.quota {
		return fmt.Errorf("%w: %d of %d bytes", ErrQuotaExceeded, used, s.quota)
	}
	s.payloads[agentID] = packed
	s.used = used
	return nil
}

// Get returns a copy of the stored payload or ErrNotFound.
func (s *InMemoryStore) Get(agentID string) ([]byte, error) {
	s.mu.RLock()
	packed, ok := s.payloads[agentID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	// DecodeAll allocates a fresh slice, so the caller owns the result
	return s.dec.DecodeAll(packed, nil)
}

// List returns the stored agent ids, sorted.
func (s *InMemoryStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.payloads))
	for id := range s.payloads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the payload if present or returns ErrNotFound.
func (s *InMemoryStore) Delete(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	packed, ok := s.payloads[agentID]
	if !ok {
		return ErrNotFound
	}
	s.used -= len(packed)
	delete(s.payloads, agentID)
	return nil
}

// Used returns the compressed bytes currently held.
func (s *InMemoryStore) Used() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}
