package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory — блокировка внутри одного процесса с той же семантикой,
// что и Redis (токен владельца, TTL, compare-and-delete).
// Используется в тестах и при локальном запуске без Redis.
type Memory struct {
	mu   sync.Mutex
	now  func() time.Time
	held map[string]memoryEntry
}

type memoryEntry struct {
	owner     string
	expiresAt time.Time
}

// NewMemory создаёт пустую in-process блокировку.
func NewMemory() *Memory {
	return &Memory{now: time.Now, held: make(map[string]memoryEntry)}
}

// Acquire захватывает key на ttl, если он свободен или истёк.
func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{Key: key, TTL: ttl, backend: m}
	if key == "" {
		return lease, ErrEmptyKey
	}
	if ttl <= 0 {
		return lease, ErrInvalidTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.held[key]; ok && now.Before(e.expiresAt) {
		return lease, nil
	}

	owner := uuid.NewString()
	m.held[key] = memoryEntry{owner: owner, expiresAt: now.Add(ttl)}
	lease.Owner = owner
	lease.Acquired = true
	return lease, nil
}

func (m *Memory) release(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.held[key]
	if !ok || e.owner != owner {
		return false, nil
	}
	delete(m.held, key)
	return true, nil
}
