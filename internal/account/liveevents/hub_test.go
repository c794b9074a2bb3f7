package liveevents

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishReachesOnlyMatchingUser(t *testing.T) {
	hub := NewHub()

	alice, _, err := hub.Subscribe("alice")
	require.NoError(t, err)
	defer alice.Close()
	bob, _, err := hub.Subscribe("bob")
	require.NoError(t, err)
	defer bob.Close()

	hub.Publish(BalanceChanged{UserID: "alice", NewBalance: 930, Delta: -70, Reason: ReasonUsage})

	select {
	case ev := <-alice.Events():
		assert.Equal(t, int64(930), ev.NewBalance)
		assert.Equal(t, int64(-70), ev.Delta)
	case <-time.After(time.Second):
		t.Fatal("alice did not receive event")
	}

	select {
	case ev := <-bob.Events():
		t.Fatalf("bob received %+v", ev)
	default:
	}
}

func TestSubscribeReturnsBoundedBacklog(t *testing.T) {
	hub := NewHub()
	first, _, err := hub.Subscribe("alice")
	require.NoError(t, err)
	defer first.Close()

	for i := 0; i < DefaultBacklogSize+10; i++ {
		hub.Publish(BalanceChanged{UserID: "alice", NewBalance: int64(i)})
	}

	second, backlog, err := hub.Subscribe("alice")
	require.NoError(t, err)
	defer second.Close()

	require.Len(t, backlog, DefaultBacklogSize)
	assert.Equal(t, int64(10), backlog[0].NewBalance)
	assert.Equal(t, int64(DefaultBacklogSize+9), backlog[len(backlog)-1].NewBalance)
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe("alice")
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < DefaultSubscriberBuffer*4; i++ {
			hub.Publish(BalanceChanged{UserID: "alice", NewBalance: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, sub.Events(), DefaultSubscriberBuffer)
}

func TestCloseRemovesStream(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers("alice"))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers("alice"))

	hub.Publish(BalanceChanged{UserID: "alice", NewBalance: 1})
	_, backlog, err := hub.Subscribe("alice")
	require.NoError(t, err)
	assert.Empty(t, backlog)
}

func TestSubscribeValidation(t *testing.T) {
	var nilHub *Hub
	_, _, err := nilHub.Subscribe("alice")
	assert.ErrorIs(t, err, ErrHubUnavailable)

	_, _, err = NewHub().Subscribe("  ")
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub, _, err := hub.Subscribe("alice")
			if err != nil {
				return
			}
			sub.Close()
		}()
		go func(n int) {
			defer wg.Done()
			hub.Publish(BalanceChanged{UserID: "alice", NewBalance: int64(n)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers("alice"))
}
