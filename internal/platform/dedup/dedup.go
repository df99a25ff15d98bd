// Package dedup remembers recently seen message ids so that redelivered
// webhooks are processed once.
package dedup

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is a bounded, TTL-expiring seen-set. Entries are kept in
// insertion order; the oldest is evicted first once the set is full.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	order   *list.List
	entries map[string]*list.Element
	now     func() time.Time
}

type entry struct {
	key  string
	seen time.Time
}

func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &Memory{
		ttl:     ttl,
		max:     maxEntries,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Mark records key and reports whether it was not already present.
func (m *Memory) Mark(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.expire(now)
	if _, ok := m.entries[key]; ok {
		return false, nil
	}
	for m.order.Len() >= m.max {
		m.remove(m.order.Front())
	}
	m.entries[key] = m.order.PushBack(&entry{key: key, seen: now})
	return true, nil
}

// Forget drops key so that a redelivery is processed again.
func (m *Memory) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		m.remove(el)
	}
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *Memory) expire(now time.Time) {
	for el := m.order.Front(); el != nil; el = m.order.Front() {
		if now.Sub(el.Value.(*entry).seen) < m.ttl {
			return
		}
		m.remove(el)
	}
}

func (m *Memory) remove(el *list.Element) {
	delete(m.entries, el.Value.(*entry).key)
	m.order.Remove(el)
}
