package cache

import (
	"context"
	"sync"
	"time"

	"documind/models"
)

type memoryItem struct {
	entry   models.CacheEntry
	expires time.Time
}

type memoryFailure struct {
	reason  string
	expires time.Time
}

// MemoryStore is a process-local Store. Expired items are ignored on read
// and removed by Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	items    map[string]memoryItem
	failures map[string]memoryFailure
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]memoryItem),
		failures: make(map[string]memoryFailure),
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, fp string) (*models.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[fp]
	if !ok || m.now().After(it.expires) {
		return nil, nil
	}
	e := it.entry
	return &e, nil
}

func (m *MemoryStore) Claim(_ context.Context, fp, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if it, ok := m.items[fp]; ok && !now.After(it.expires) {
		return false, nil
	}
	m.items[fp] = memoryItem{
		entry:   models.CacheEntry{Fingerprint: fp, State: models.CacheInProgress, Owner: owner, CreatedAt: now.UTC()},
		expires: now.Add(ttl),
	}
	return true, nil
}

func (m *MemoryStore) Renew(_ context.Context, fp, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	it, ok := m.items[fp]
	if !ok || now.After(it.expires) || it.entry.State != models.CacheInProgress || it.entry.Owner != owner {
		return false, nil
	}
	it.expires = now.Add(ttl)
	m.items[fp] = it
	return true, nil
}

func (m *MemoryStore) Publish(_ context.Context, entry *models.CacheEntry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[entry.Fingerprint] = memoryItem{entry: *entry, expires: m.now().Add(ttl)}
	delete(m.failures, entry.Fingerprint)
	return nil
}

func (m *MemoryStore) Fail(_ context.Context, fp, reason string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, fp)
	m.failures[fp] = memoryFailure{reason: reason, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Failure(_ context.Context, fp string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.failures[fp]
	if !ok || m.now().After(f.expires) {
		return "", false, nil
	}
	return f.reason, true, nil
}

func (m *MemoryStore) Delete(_ context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, fp)
	return nil
}

// Sweep drops expired entries and failure records and returns how many
// were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for fp, it := range m.items {
		if now.After(it.expires) {
			delete(m.items, fp)
			removed++
		}
	}
	for fp, f := range m.failures {
		if now.After(f.expires) {
			delete(m.failures, fp)
			removed++
		}
	}
	return removed
}
