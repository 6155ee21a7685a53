package otp

import (
	"context"
	"crypto/hmac"
	"sync"
	"time"
)

// MemoryStore keeps passcode records in process memory for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Replace(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].Phone == rec.Phone && !s.records[i].Used {
			s.records[i].Used = true
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, phone string, digest []byte, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	match := -1
	for i, rec := range s.records {
		if rec.Phone != phone || rec.Used || !hmac.Equal(rec.CodeDigest, digest) {
			continue
		}
		if match == -1 || !rec.CreatedAt.Before(s.records[match].CreatedAt) {
			match = i
		}
	}
	if match == -1 {
		return false, nil
	}
	if !s.records[match].ExpiresAt.After(now) {
		return false, nil
	}
	s.records[match].Used = true
	return true, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var removed int64
	for _, rec := range s.records {
		if rec.ExpiresAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, nil
}

// Records returns a copy of every record for phone, oldest first.
func (s *MemoryStore) Records(phone string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.records {
		if rec.Phone == phone {
			out = append(out, rec)
		}
	}
	return out
}
