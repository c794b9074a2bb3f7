package service

import (
	"sync"
	"time"

	"github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
)

const (
	defaultRetryBase        = time.Second
	defaultRetryMax         = 5 * time.Minute
	defaultRetryMaxAttempts = 10
	defaultRetryCapacity    = 10_000
)

type retryItem struct {
	req      domain.UsageRecordRequest
	attempts int
	nextAt   time.Time
}

// RetryQueue holds usage records whose post-commit write failed. Items
// wait with exponential backoff. Dropped items are still found by the
// reconciler's backfill scan.
type RetryQueue struct {
	mu          sync.Mutex
	items       []retryItem
	base        time.Duration
	max         time.Duration
	maxAttempts int
	capacity    int
}

func NewRetryQueue() *RetryQueue {
	return &RetryQueue{
		base:        defaultRetryBase,
		max:         defaultRetryMax,
		maxAttempts: defaultRetryMaxAttempts,
		capacity:    defaultRetryCapacity,
	}
}

// Enqueue schedules req for a first retry. It reports false when the
// queue is full.
func (q *RetryQueue) Enqueue(req domain.UsageRecordRequest, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, retryItem{req: req, attempts: 0, nextAt: now.Add(q.base)})
	return true
}

// Due removes and returns the items ready at now.
func (q *RetryQueue) Due(now time.Time) []retryItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []retryItem
	kept := q.items[:0]
	for _, item := range q.items {
		if !item.nextAt.After(now) {
			due = append(due, item)
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	return due
}

// Reschedule puts item back with a longer delay. It reports false once
// the item ran out of attempts.
func (q *RetryQueue) Reschedule(item retryItem, now time.Time) bool {
	item.attempts++
	if item.attempts >= q.maxAttempts {
		return false
	}
	delay := q.base << item.attempts
	if delay <= 0 || delay > q.max {
		delay = q.max
	}
	item.nextAt = now.Add(delay)

	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	return true
}

func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
