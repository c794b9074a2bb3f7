// Package dedupe remembers recently processed usage events.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/tokenledger/internal/clock"
)

const (
	DefaultRetention  = 24 * time.Hour
	DefaultMaxEntries = 100_000
)

type memoryEntry struct {
	key    string
	seenAt time.Time
}

// Memory is a bounded set ordered by insertion time. Keys leave the set
// once older than the retention window or when the set is over capacity;
// an evicted key is reported as new again.
type Memory struct {
	mu         sync.Mutex
	clock      clock.Clock
	retention  time.Duration
	maxEntries int
	order      *list.List
	index      map[string]*list.Element
}

func NewMemory(c clock.Clock, retention time.Duration, maxEntries int) *Memory {
	if c == nil {
		c = clock.New()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		clock:      c,
		retention:  retention,
		maxEntries: maxEntries,
		order:      list.New(),
		index:      make(map[string]*list.Element),
	}
}

func (m *Memory) IsNew(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictExpired(m.clock.Now())
	_, seen := m.index[key]
	return !seen, nil
}

func (m *Memory) MarkProcessed(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.evictExpired(now)

	if el, ok := m.index[key]; ok {
		el.Value.(*memoryEntry).seenAt = now
		m.order.MoveToBack(el)
		return nil
	}

	m.index[key] = m.order.PushBack(&memoryEntry{key: key, seenAt: now})
	for m.order.Len() > m.maxEntries {
		m.removeFront()
	}
	return nil
}

// Len reports the number of retained keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(m.clock.Now())
	return m.order.Len()
}

func (m *Memory) evictExpired(now time.Time) {
	cutoff := now.Add(-m.retention)
	for {
		front := m.order.Front()
		if front == nil {
			return
		}
		if front.Value.(*memoryEntry).seenAt.After(cutoff) {
			return
		}
		m.removeFront()
	}
}

func (m *Memory) removeFront() {
	front := m.order.Front()
	if front == nil {
		return
	}
	delete(m.index, front.Value.(*memoryEntry).key)
	m.order.Remove(front)
}
