package locks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when no Redis URL is configured.
// It provides the same per-resource exclusion semantics for a single
// operator process.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

// NewMemoryStore constructs an empty in-memory lock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string]*Lock)}
}

func (s *MemoryStore) Acquire(ctx context.Context, resource, owner string, mode Mode, ttl time.Duration) (*Lock, bool, error) {
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return nil, false, errors.New("resource and owner required")
	}
	if mode != ModeShared {
		mode = ModeExclusive
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(now)

	lock, held := s.locks[resource]
	if !held {
		lock = &Lock{
			Resource:  resource,
			Mode:      mode,
			Owners:    map[string]int{owner: 1},
			UpdatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		s.locks[resource] = lock
		return copyLock(lock), true, nil
	}

	if lock.Mode == ModeExclusive {
		if lock.Owners[owner] == 0 {
			return nil, false, nil
		}
		lock.Owners[owner]++
		lock.UpdatedAt = now
		lock.ExpiresAt = now.Add(ttl)
		return copyLock(lock), true, nil
	}

	if mode == ModeShared {
		lock.Owners[owner]++
		lock.UpdatedAt = now
		lock.ExpiresAt = now.Add(ttl)
		return copyLock(lock), true, nil
	}

	// Exclusive upgrade is only possible when the caller is the sole owner.
	if len(lock.Owners) == 1 && lock.Owners[owner] > 0 {
		lock.Mode = ModeExclusive
		lock.Owners[owner]++
		lock.UpdatedAt = now
		lock.ExpiresAt = now.Add(ttl)
		return copyLock(lock), true, nil
	}
	return nil, false, nil
}

func (s *MemoryStore) Release(ctx context.Context, resource, owner string) (*Lock, bool, error) {
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return nil, false, errors.New("resource and owner required")
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(now)

	lock, held := s.locks[resource]
	if !held {
		return nil, true, nil
	}
	count, owns := lock.Owners[owner]
	if !owns {
		return copyLock(lock), true, nil
	}
	if count <= 1 {
		delete(lock.Owners, owner)
	} else {
		lock.Owners[owner] = count - 1
	}
	if len(lock.Owners) == 0 {
		delete(s.locks, resource)
		return nil, true, nil
	}
	lock.UpdatedAt = now
	return copyLock(lock), true, nil
}

func (s *MemoryStore) Renew(ctx context.Context, resource, owner string, ttl time.Duration) (*Lock, bool, error) {
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return nil, false, errors.New("resource and owner required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(now)

	lock, held := s.locks[resource]
	if !held || lock.Owners[owner] == 0 {
		return nil, false, nil
	}
	lock.UpdatedAt = now
	lock.ExpiresAt = now.Add(ttl)
	return copyLock(lock), true, nil
}

func (s *MemoryStore) Get(ctx context.Context, resource string) (*Lock, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, errors.New("resource required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(time.Now().UTC())
	lock, held := s.locks[resource]
	if !held {
		return nil, errors.New("lock not found")
	}
	return copyLock(lock), nil
}

func (s *MemoryStore) expireLocked(now time.Time) {
	for resource, lock := range s.locks {
		if lock.ExpiresAt.Before(now) {
			delete(s.locks, resource)
		}
	}
}

func copyLock(lock *Lock) *Lock {
	owners := make(map[string]int, len(lock.Owners))
	for owner, count := range lock.Owners {
		owners[owner] = count
	}
	out := *lock
	out.Owners = owners
	return &out
}
