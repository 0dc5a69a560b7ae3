package messaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false, EnableMetrics: true})
}

func sampleEvent() shared.Event {
	return shared.NewEnrollmentCreatedEvent(
		"6f1c8a52-4a5e-4c1e-9d7b-2f0f2f6b8a11",
		"0b7d2f7e-3f55-4d8e-9a43-0e1f7b3c9d21",
		"9a3e6c1d-8b2f-4f7a-a1c5-6d4e2b8f0c33",
		shared.MustParseDate("2026-10-01"),
		"active",
	)
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var typed, all, other int
	require.NoError(t, bus.Subscribe(shared.EventEnrollmentCreated, func(shared.Event) error { typed++; return nil }))
	require.NoError(t, bus.Subscribe(shared.EventEnrollmentCancelled, func(shared.Event) error { other++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(sampleEvent()))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 1, all)
	assert.Equal(t, 0, other)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
}

func TestInMemoryEventBus_RecoversHandlerPanic(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var after bool
	require.NoError(t, bus.Subscribe(shared.EventEnrollmentCreated, func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.Subscribe(shared.EventEnrollmentCreated, func(shared.Event) error { after = true; return nil }))

	require.NoError(t, bus.Publish(sampleEvent()))
	assert.True(t, after)
	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.HandlerFailures)
	assert.Equal(t, int64(1), snap.FailuresByType[shared.EventEnrollmentCreated])
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 1e-9)
}

func TestInMemoryEventBus_AsyncWait(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, QueueSize: 2})

	var n atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(time.Millisecond)
		n.Add(1)
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(sampleEvent()))
	}
	bus.Wait()
	assert.Equal(t, int32(10), n.Load())

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(sampleEvent()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventCourseDeleted, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_AsyncKeepsPublishOrderPerSubscription(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	var mu sync.Mutex
	var seen []string
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(e.EventType())+"/"+e.AggregateID())
		return nil
	}))
	var typedSeen []string
	require.NoError(t, bus.Subscribe(shared.EventEnrollmentCancelled, func(e shared.Event) error {
		typedSeen = append(typedSeen, e.AggregateID())
		return nil
	}))

	var want, wantTyped []string
	for i := 0; i < 500; i++ {
		id := shared.EnrollmentID(fmt.Sprintf("e-%03d", i))
		created := shared.NewEnrollmentCreatedEvent(id, "s", "c", shared.MustParseDate("2026-10-01"), "active")
		cancelled := shared.NewEnrollmentCancelledEvent(id, "s", "c")
		require.NoError(t, bus.Publish(created))
		require.NoError(t, bus.Publish(cancelled))
		want = append(want,
			string(created.EventType())+"/"+created.AggregateID(),
			string(cancelled.EventType())+"/"+cancelled.AggregateID(),
		)
		wantTyped = append(wantTyped, cancelled.AggregateID())
	}
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, seen)
	assert.Equal(t, wantTyped, typedSeen)
}

// fakeBroker fans published messages out to every subscriber, like a
// single Redis channel.
type fakeBroker struct {
	mu   sync.Mutex
	subs []chan RedisMessage
}

type fakeRedisClient struct {
	broker *fakeBroker
}

func (c *fakeRedisClient) Publish(_ context.Context, channel string, message interface{}) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	for _, sub := range c.broker.subs {
		sub <- RedisMessage{Channel: channel, Payload: message.(string)}
	}
	return nil
}

func (c *fakeRedisClient) Subscribe(context.Context, ...string) (<-chan RedisMessage, error) {
	ch := make(chan RedisMessage, 16)
	c.broker.mu.Lock()
	c.broker.subs = append(c.broker.subs, ch)
	c.broker.mu.Unlock()
	return ch, nil
}

func (c *fakeRedisClient) Close() error { return nil }

func TestRedisEventBus_DeliversAcrossInstances(t *testing.T) {
	broker := &fakeBroker{}
	newBus := func(id string) *RedisEventBus {
		bus, err := NewRedisEventBus(RedisEventBusConfig{
			Client:         &fakeRedisClient{broker: broker},
			InstanceID:     id,
			LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
		})
		require.NoError(t, err)
		return bus
	}
	a, b := newBus("a"), newBus("b")
	defer a.Close()
	defer b.Close()

	var localHits atomic.Int32
	require.NoError(t, a.Subscribe(shared.EventEnrollmentCreated, func(shared.Event) error {
		localHits.Add(1)
		return nil
	}))

	received := make(chan shared.Event, 1)
	require.NoError(t, b.Subscribe(shared.EventEnrollmentCreated, func(e shared.Event) error {
		received <- e
		return nil
	}))

	require.NoError(t, a.Publish(sampleEvent()))

	select {
	case e := <-received:
		assert.Equal(t, shared.EventEnrollmentCreated, e.EventType())
		assert.Equal(t, "9a3e6c1d-8b2f-4f7a-a1c5-6d4e2b8f0c33", shared.PayloadString(e, "course_id"))
		assert.Equal(t, "2026-10-01", shared.PayloadString(e, "enrollment_date"))
	case <-time.After(2 * time.Second):
		t.Fatal("event did not reach the other instance")
	}

	// a handled its own event once, locally, and skipped the echo
	assert.Eventually(t, func() bool { return localHits.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), localHits.Load())
}

func TestDecodeEvent_RejectsUntypedMessages(t *testing.T) {
	_, err := decodeEvent([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrEventNotSupported)

	_, err = decodeEvent([]byte(`not json`))
	assert.Error(t, err)
}
