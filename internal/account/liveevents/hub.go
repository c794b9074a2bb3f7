// Package liveevents fans balance changes out to per-user subscribers.
package liveevents

import (
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	ReasonUsage  = "usage"
	ReasonCredit = "credit"
)

const (
	DefaultBacklogSize      = 50
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidUserID  = errors.New("invalid_user_id")
)

type BalanceChanged struct {
	UserID        string    `json:"user_id"`
	NewBalance    int64     `json:"new_balance"`
	Delta         int64     `json:"delta"`
	Reason        string    `json:"reason"`
	LedgerEntryID string    `json:"ledger_entry_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Hub keeps a short backlog per watched user. Slow subscribers miss events
// rather than block publishers.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	backlogSize      int
	subscriberBuffer int
}

type stream struct {
	mu      sync.Mutex
	backlog []BalanceChanged
	subs    map[uint64]chan BalanceChanged
	nextID  uint64
}

type Subscription struct {
	hub    *Hub
	userID string
	id     uint64
	ch     chan BalanceChanged
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		backlogSize:      DefaultBacklogSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish delivers event to current subscribers of event.UserID. Users with
// no subscribers keep no backlog.
func (h *Hub) Publish(event BalanceChanged) {
	if h == nil {
		return
	}
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		return
	}
	h.mu.RLock()
	s := h.streams[userID]
	h.mu.RUnlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	s.backlog = append(s.backlog, event)
	if len(s.backlog) > h.backlogSize {
		s.backlog = s.backlog[len(s.backlog)-h.backlogSize:]
	}
	subs := make([]chan BalanceChanged, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a subscription and the backlog retained for userID.
func (h *Hub) Subscribe(userID string) (*Subscription, []BalanceChanged, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil, ErrInvalidUserID
	}

	h.mu.Lock()
	s := h.streams[userID]
	if s == nil {
		s = &stream{subs: make(map[uint64]chan BalanceChanged)}
		h.streams[userID] = s
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan BalanceChanged, h.subscriberBuffer)
	s.subs[id] = ch
	backlog := append([]BalanceChanged(nil), s.backlog...)
	s.mu.Unlock()
	h.mu.Unlock()

	return &Subscription{hub: h, userID: userID, id: id, ch: ch}, backlog, nil
}

// Subscribers reports the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	s := h.streams[strings.TrimSpace(userID)]
	h.mu.RUnlock()
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (h *Hub) unsubscribe(userID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.streams[userID]
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.subs, id)
	empty := len(s.subs) == 0
	s.mu.Unlock()
	if empty {
		delete(h.streams, userID)
	}
}

func (s *Subscription) Events() <-chan BalanceChanged {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close detaches the subscription. The events channel is left open.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.userID, s.id)
	})
}
