package idempotency

import (
	"context"
	"sync"
	"time"
)

// memoryStore is an in-process Store for middleware tests.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]Record{}}
}

func (s *memoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := documentID(key)
	record, ok := s.records[id]
	if ok && now.Before(record.ExpiresAt) {
		switch {
		case record.Fingerprint != fingerprint:
			return Reservation{}, ErrFingerprintMismatch
		case record.Status == StatusCompleted:
			return Reservation{State: ReservationStateCompleted, Record: record}, nil
		default:
			return Reservation{State: ReservationStatePending, Record: record}, nil
		}
	}
	record = Record{
		Key: key, Fingerprint: fingerprint, Status: StatusPending,
		CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(ttl),
	}
	s.records[id] = record
	return Reservation{State: ReservationStateNew, Record: record}, nil
}

func (s *memoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := documentID(key)
	record, ok := s.records[id]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	}
	record.Status = StatusCompleted
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = storableHeaders(resp.Headers)
	record.ResponseBody = append([]byte(nil), resp.Body...)
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttl)
	s.records[id] = record
	return nil
}

func (s *memoryStore) Release(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID(key))
	return nil
}

func (s *memoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if !now.Before(record.ExpiresAt) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}
