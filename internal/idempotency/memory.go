package idempotency

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	record  Record
	expires time.Time
}

// MemoryStore is process-local; use it for tests and single-instance runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memEntry), now: time.Now}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hashKey(key)
	now := s.now()
	e, ok := s.records[id]
	if !ok || !now.Before(e.expires) {
		rec := Record{Fingerprint: fingerprint}
		s.records[id] = memEntry{record: rec, expires: now.Add(ttl)}
		return Reservation{State: StateNew, Record: rec}, nil
	}
	if e.record.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if e.record.Completed {
		return Reservation{State: StateCompleted, Record: e.record}, nil
	}
	return Reservation{State: StatePending, Record: e.record}, nil
}

func (s *MemoryStore) Save(_ context.Context, key, fingerprint string, resp Response, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hashKey(key)
	if e, ok := s.records[id]; ok && e.record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[id] = memEntry{record: completedRecord(fingerprint, resp), expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, hashKey(key))
	return nil
}
