package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process for single-instance deployments and tests. Expired
// records are swept whenever a new key is reserved.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[id]; ok && now.Before(record.ExpiresAt) {
		return reservationFor(record, fingerprint)
	}

	for other, record := range s.records {
		if !now.Before(record.ExpiresAt) {
			delete(s.records, other)
		}
	}
	record := pendingRecord(key, fingerprint, now, ttlOrDefault(ttl))
	s.records[id] = record
	return Reservation{State: ReservationStateNew, Record: record}, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[id]
	if ok && existing.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[id] = completedRecord(key, fingerprint, resp, existing.CreatedAt, now.UTC(), ttlOrDefault(ttl))
	return nil
}

// Release drops the reservation held by fingerprint so the request can be retried.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[id]; ok && record.Fingerprint == fingerprint {
		delete(s.records, id)
	}
	return nil
}

// Len counts held records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
