package engine

import (
	"fmt"
	"sync"

	"launchpool/internal/model"
)

// PoolStore is the arena of pools keyed by asset identifier. Each pool carries
// its own lock; Update runs its callback inside that pool's exclusive section,
// so all mutations of one pool observe a single linear order.
type PoolStore struct {
	mu      sync.RWMutex
	entries map[string]*poolEntry
	order   []string
}

type poolEntry struct {
	mu   sync.Mutex
	pool model.Pool
}

func NewPoolStore() *PoolStore {
	return &PoolStore{entries: make(map[string]*poolEntry)}
}

// Create inserts a new pool. The prepare callback runs while the store lock is
// held and before the pool becomes visible; if it fails the pool is not
// created. Used to debit the creator's initial liquidity atomically with the
// existence check.
func (s *PoolStore) Create(pool model.Pool, prepare func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[pool.AssetID]; ok {
		return fmt.Errorf("%w: %s", ErrPoolAlreadyExists, pool.AssetID)
	}
	if prepare != nil {
		if err := prepare(); err != nil {
			return err
		}
	}

	s.entries[pool.AssetID] = &poolEntry{pool: pool}
	s.order = append(s.order, pool.AssetID)
	return nil
}

// Get returns a snapshot of one pool.
func (s *PoolStore) Get(assetID string) (model.Pool, error) {
	entry, err := s.entry(assetID)
	if err != nil {
		return model.Pool{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.pool, nil
}

// Update runs fn inside the pool's exclusive section. If fn returns an error
// the pool is left exactly as fn left it, so fn must not mutate before its
// last fallible step.
func (s *PoolStore) Update(assetID string, fn func(*model.Pool) error) error {
	entry, err := s.entry(assetID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(&entry.pool)
}

// List returns pool snapshots in creation order, paged by offset and limit.
func (s *PoolStore) List(offset, limit int) []model.Pool {
	s.mu.RLock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	pools := make([]model.Pool, 0, len(ids))
	for _, id := range ids {
		pool, err := s.Get(id)
		if err != nil {
			continue
		}
		pools = append(pools, pool)
	}
	return pools
}

// Len returns the number of pools ever created.
func (s *PoolStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *PoolStore) entry(assetID string) (*poolEntry, error) {
	s.mu.RLock()
	entry, ok := s.entries[assetID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, assetID)
	}
	return entry, nil
}
