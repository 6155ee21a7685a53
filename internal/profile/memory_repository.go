package profile

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewMemoryRepository builds an in-memory profile store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{profiles: make(map[string]Profile)}
}

func (r *memoryRepository) Upsert(_ context.Context, in UpsertInput) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at := in.At.UTC()
	p, exists := r.profiles[in.Phone]
	if !exists {
		p = Profile{ID: uuid.NewString(), Phone: in.Phone, CreatedAt: at}
	}
	p.Name = in.Name
	p.Email = in.Email
	p.IsVerified = true
	p.UpdatedAt = at
	r.profiles[in.Phone] = p
	return p, nil
}

func (r *memoryRepository) GetVerifiedByPhone(_ context.Context, phone string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[phone]
	if !ok || !p.IsVerified {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// Count reports the number of stored profiles. Only the in-memory store offers it.
func Count(repo Repository) int {
	mem, ok := repo.(*memoryRepository)
	if !ok {
		return -1
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return len(mem.profiles)
}
