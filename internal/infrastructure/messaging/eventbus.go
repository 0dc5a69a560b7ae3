// Package messaging implements the event bus that carries student, course
// and enrollment changes to the read side. It provides an in-memory bus for
// a single process and a Redis Pub/Sub bus for several API instances.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/escola-hub/academic-records/internal/domain/shared"
	"github.com/escola-hub/academic-records/pkg/logger"
	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to handlers registered in this process.
// Handlers run either on the publisher's goroutine or, in AsyncMode, on one
// goroutine per subscription. Either way a subscription sees events in the
// order they were published.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[shared.EventType][]*subscription
	wildcard []*subscription
	closed   bool

	async     bool
	queueSize int
	workers   sync.WaitGroup
	pending   sync.WaitGroup

	log     *logger.Logger
	metrics *EventBusMetrics
}

// subscription is one registered handler. In AsyncMode it owns a queue
// drained by a single goroutine.
type subscription struct {
	handler shared.EventHandler
	queue   chan shared.Event
}

// InMemoryEventBusConfig configures an InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode moves handlers off the publisher's goroutine.
	AsyncMode bool

	// QueueSize is the per-subscription backlog in AsyncMode (default: 256).
	// Publish blocks while a subscription's queue is full.
	QueueSize int

	Logger        *logger.Logger
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig is async with metrics on.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{AsyncMode: true, QueueSize: 256, EnableMetrics: true}
}

// NewInMemoryEventBus creates an open bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	size := config.QueueSize
	if size <= 0 {
		size = 256
	}

	bus := &InMemoryEventBus{
		byType:    make(map[shared.EventType][]*subscription),
		async:     config.AsyncMode,
		queueSize: size,
		log:       log.With(logger.Component("eventbus")),
	}
	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}
	return bus
}

// Subscribe adds handler for events of eventType.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.register(handler, func(sub *subscription) {
		b.byType[eventType] = append(b.byType[eventType], sub)
		b.log.Debug("subscribed handler", logger.EventType(string(eventType)))
	})
}

// SubscribeAll adds handler for every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.register(handler, func(sub *subscription) {
		b.wildcard = append(b.wildcard, sub)
		b.log.Debug("subscribed wildcard handler")
	})
}

func (b *InMemoryEventBus) register(handler shared.EventHandler, add func(*subscription)) error {
	if handler == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}

	sub := &subscription{handler: handler}
	if b.async {
		sub.queue = make(chan shared.Event, b.queueSize)
		b.workers.Add(1)
		go b.drain(sub)
	}
	add(sub)
	return nil
}

// drain runs sub's handler for each queued event until the queue is closed.
func (b *InMemoryEventBus) drain(sub *subscription) {
	defer b.workers.Done()
	for event := range sub.queue {
		b.run(event, sub.handler)
		b.pending.Done()
	}
}

// Publish hands event to its handlers. Handler errors are logged and
// counted; they never reach the publisher.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	subs := slices.Concat(b.byType[event.EventType()], b.wildcard)
	if len(subs) == 0 {
		b.mu.RUnlock()
		b.log.Debug("no handlers for event", logger.EventType(string(event.EventType())))
		return nil
	}
	if b.metrics != nil {
		b.metrics.RecordPublish(event.EventType())
	}

	if b.async {
		// queues are closed only under the write lock
		for _, sub := range subs {
			b.pending.Add(1)
			sub.queue <- event
		}
		b.mu.RUnlock()
		return nil
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		b.run(event, sub.handler)
	}
	return nil
}

// run calls handler, turning a panic into ErrHandlerPanic.
func (b *InMemoryEventBus) run(event shared.Event, handler shared.EventHandler) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			}
		}()
		return handler(event)
	}()

	if b.metrics != nil {
		b.metrics.RecordHandlerExecution(event.EventType(), time.Since(start), err == nil)
	}
	if err != nil {
		b.log.Error("event handler failed",
			logger.EventType(string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Err(err),
		)
	}
}

// Wait blocks until every event queued so far has been handled.
func (b *InMemoryEventBus) Wait() {
	b.pending.Wait()
}

// Close refuses new events, lets the queued ones drain and stops the
// subscription goroutines. Closing twice is a no-op.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.async {
		for _, subs := range b.byType {
			for _, sub := range subs {
				close(sub.queue)
			}
		}
		for _, sub := range b.wildcard {
			close(sub.queue)
		}
	}
	b.mu.Unlock()

	b.workers.Wait()

	b.log.Info("event bus closed")
	return nil
}

// Metrics returns nil unless EnableMetrics was set.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBus is a Redis Pub/Sub based implementation of EventBus.
// Every instance handles its own events locally and the events of other
// instances as they arrive on the channel, so each instance's engagement
// view and report cache follow writes made anywhere.
type RedisEventBus struct {
	client      RedisClient
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	log         *logger.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// RedisClient defines the Pub/Sub operations the bus needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage represents a message received from Redis Pub/Sub.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName is the Redis channel for events (default: "academic-records:events")
	ChannelName string

	// InstanceID identifies this process so it can skip its own messages.
	InstanceID string

	// LocalBusConfig is the config for the local in-memory bus
	LocalBusConfig InMemoryEventBusConfig

	Logger *logger.Logger
}

// DefaultChannelName is the Pub/Sub channel used when none is configured.
const DefaultChannelName = "academic-records:events"

// NewRedisEventBus creates a new Redis-based event bus.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = DefaultChannelName
	}
	if config.InstanceID == "" {
		config.InstanceID = generateInstanceID()
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	bus := &RedisEventBus{
		client:      config.Client,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		log:         config.Logger.With(logger.Component("redis_eventbus")),
		ctx:         ctx,
		cancel:      cancel,
	}

	if err := bus.startSubscriber(); err != nil {
		cancel()
		return nil, fmt.Errorf("start subscriber: %w", err)
	}

	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish sends an event to Redis Pub/Sub and local handlers.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	b.mu.RUnlock()

	data, err := encodeEvent(b.instanceID, event)
	if err != nil {
		return err
	}

	if err := b.client.Publish(b.ctx, b.channelName, string(data)); err != nil {
		// other instances miss this one; local handlers still run
		b.log.Error("failed to publish to redis", logger.EventType(string(event.EventType())), logger.Err(err))
	}

	return b.localBus.Publish(event)
}

func (b *RedisEventBus) startSubscriber() error {
	messages, err := b.client.Subscribe(b.ctx, b.channelName)
	if err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.subscriptionLoop(messages)
	}()

	return nil
}

func (b *RedisEventBus) subscriptionLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.log.Error("redis subscription error", logger.Err(msg.Err))
				continue
			}

			b.handleRedisMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleRedisMessage(msg RedisMessage) {
	envelope, err := decodeEvent([]byte(msg.Payload))
	if err != nil {
		b.log.Error("failed to unmarshal event", logger.Err(err))
		return
	}

	// already handled locally
	if envelope.InstanceID == b.instanceID {
		return
	}

	if err := b.localBus.Publish(envelope.event()); err != nil {
		b.log.Error("failed to process remote event", logger.Err(err))
	}
}

// Wait blocks until local handlers dispatched so far have returned.
func (b *RedisEventBus) Wait() {
	b.localBus.Wait()
}

// Close gracefully shuts down the Redis event bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	if err := b.localBus.Close(); err != nil {
		b.log.Error("failed to close local bus", logger.Err(err))
	}
	if err := b.client.Close(); err != nil {
		b.log.Warn("failed to close redis subscription", logger.Err(err))
	}

	b.log.Info("redis event bus closed")
	return nil
}

// Metrics returns the current metrics from the local bus.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.localBus.Metrics()
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT ENVELOPE (for serialization)
// ══════════════════════════════════════════════════════════════════════════════

type eventEnvelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

func encodeEvent(instanceID string, event shared.Event) ([]byte, error) {
	data, err := json.Marshal(eventEnvelope{
		InstanceID:  instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (eventEnvelope, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return eventEnvelope{}, err
	}
	if env.EventType == "" {
		return eventEnvelope{}, ErrEventNotSupported
	}
	return env, nil
}

func (e eventEnvelope) event() shared.Event {
	return &reconstructedEvent{
		eventType:   e.EventType,
		aggregateID: e.AggregateID,
		occurredAt:  e.OccurredAt,
		payload:     e.Payload,
	}
}

// reconstructedEvent is an event received from another instance. Only the
// payload map survives the trip; handlers read it with shared.PayloadString.
type reconstructedEvent struct {
	eventType   shared.EventType
	aggregateID string
	occurredAt  time.Time
	payload     map[string]interface{}
}

func (e *reconstructedEvent) EventType() shared.EventType {
	return e.eventType
}

func (e *reconstructedEvent) AggregateID() string {
	return e.aggregateID
}

func (e *reconstructedEvent) OccurredAt() time.Time {
	return e.occurredAt
}

func (e *reconstructedEvent) Payload() map[string]interface{} {
	return e.payload
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts publishes and handler runs per event type.
type EventBusMetrics struct {
	mu     sync.Mutex
	byType map[shared.EventType]*typeCounters
}

type typeCounters struct {
	published int64
	runs      int64
	failures  int64
	busy      time.Duration
}

// NewEventBusMetrics creates an empty tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{byType: make(map[shared.EventType]*typeCounters)}
}

func (m *EventBusMetrics) counters(t shared.EventType) *typeCounters {
	c, ok := m.byType[t]
	if !ok {
		c = &typeCounters{}
		m.byType[t] = c
	}
	return c
}

// RecordPublish counts one published event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters(eventType).published++
}

// RecordHandlerExecution counts one handler run.
func (m *EventBusMetrics) RecordHandlerExecution(eventType shared.EventType, took time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters(eventType)
	c.runs++
	c.busy += took
	if !success {
		c.failures++
	}
}

// Snapshot totals the counters across event types.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := EventBusMetricsSnapshot{
		HandlerSuccessRate: 1,
		FailuresByType:     make(map[shared.EventType]int64),
	}
	var busy time.Duration
	for t, c := range m.byType {
		snap.TotalPublished += c.published
		snap.TotalHandlerExecs += c.runs
		snap.HandlerFailures += c.failures
		busy += c.busy
		if c.failures > 0 {
			snap.FailuresByType[t] = c.failures
		}
	}
	if snap.TotalHandlerExecs > 0 {
		snap.HandlerSuccessRate = float64(snap.TotalHandlerExecs-snap.HandlerFailures) / float64(snap.TotalHandlerExecs)
		snap.AverageHandlerDuration = busy / time.Duration(snap.TotalHandlerExecs)
	}
	return snap
}

// EventBusMetricsSnapshot is a point-in-time copy of the counters.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64                      `json:"total_published"`
	TotalHandlerExecs      int64                      `json:"total_handler_execs"`
	HandlerFailures        int64                      `json:"handler_failures"`
	HandlerSuccessRate     float64                    `json:"handler_success_rate"`
	AverageHandlerDuration time.Duration              `json:"average_handler_duration"`
	FailuresByType         map[shared.EventType]int64 `json:"failures_by_type,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrEventNotSupported is returned for messages without an event type.
	ErrEventNotSupported = errors.New("event type not supported")

	ErrNilHandler = errors.New("handler cannot be nil")
	ErrNilEvent   = errors.New("event cannot be nil")
)

func generateInstanceID() string {
	return "instance-" + uuid.NewString()
}
