package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarsy-bot/tarsy/pkg/metrics"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// enqueueTimeout bounds how long Trigger waits on a full subscriber queue
// before dropping the event.
const enqueueTimeout = 100 * time.Millisecond

// BusConfig holds hook bus tuning parameters.
type BusConfig struct {
	// QueueSize is the per-subscriber queue depth.
	QueueSize int

	// DispatchTimeout bounds a single Handle invocation.
	DispatchTimeout time.Duration

	// MaxConsecutiveFailures disables a subscriber once reached. The
	// counter resets on any successful dispatch.
	MaxConsecutiveFailures int
}

// DefaultBusConfig returns production defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		QueueSize:              256,
		DispatchTimeout:        30 * time.Second,
		MaxConsecutiveFailures: 5,
	}
}

// Delivery reports the enqueue outcome for one subscriber.
type Delivery struct {
	Subscriber string
	Enqueued   bool
	// Reason explains a false Enqueued: "disabled", "queue_full",
	// "canceled".
	Reason string
}

type dispatch struct {
	event   string
	payload *Payload
}

// subscription is one registered subscriber with its queue and goroutine.
// failures is only touched by the dispatch goroutine; disabled is read by
// Trigger and written by the dispatch goroutine.
type subscription struct {
	name     string
	sub      Subscriber
	queue    chan dispatch
	disabled atomic.Bool
	failures int
}

// Bus is the in-process hook dispatcher. Each subscriber gets a dedicated
// FIFO queue and goroutine; events delivered to a subscriber arrive in
// trigger order, and subscribers never observe each other's failures or
// latency.
type Bus struct {
	cfg BusConfig

	mu      sync.RWMutex
	subs    map[string]*subscription
	byEvent map[string][]*subscription
	closed  bool

	wg sync.WaitGroup
}

// NewBus creates a hook bus with the given configuration.
func NewBus(cfg BusConfig) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultBusConfig().QueueSize
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultBusConfig().DispatchTimeout
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultBusConfig().MaxConsecutiveFailures
	}
	return &Bus{
		cfg:     cfg,
		subs:    make(map[string]*subscription),
		byEvent: make(map[string][]*subscription),
	}
}

// Register adds a subscriber under the given name and starts its dispatch
// goroutine. Registering an existing name replaces the old subscription,
// which also clears its failure state: a disabled subscriber re-registers
// enabled.
func (b *Bus) Register(name string, sub Subscriber) error {
	if name == "" {
		return fmt.Errorf("subscriber name must not be empty")
	}
	if sub == nil {
		return fmt.Errorf("subscriber must not be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("hook bus is closed")
	}

	if old, exists := b.subs[name]; exists {
		b.removeLocked(old)
	}

	s := &subscription{
		name:  name,
		sub:   sub,
		queue: make(chan dispatch, b.cfg.QueueSize),
	}
	b.subs[name] = s
	b.rebuildIndexLocked()

	b.wg.Add(1)
	go b.run(s)

	slog.Info("Hook subscriber registered",
		"subscriber", name,
		"events", sub.EventNames())
	return nil
}

// Unregister removes a subscriber. Its queue is drained by the dispatch
// goroutine before it exits.
func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.subs[name]
	if !exists {
		return
	}
	b.removeLocked(s)
	b.rebuildIndexLocked()
}

// removeLocked drops a subscription from the map and closes its queue.
// Caller holds the write lock, so no Trigger can be mid-enqueue.
func (b *Bus) removeLocked(s *subscription) {
	delete(b.subs, s.name)
	close(s.queue)
}

func (b *Bus) rebuildIndexLocked() {
	index := make(map[string][]*subscription)
	for _, s := range b.subs {
		for _, event := range s.sub.EventNames() {
			index[event] = append(index[event], s)
		}
	}
	b.byEvent = index
}

// Trigger enqueues the event to every enabled subscriber registered for it
// and returns per-subscriber delivery metadata. The producer is never
// blocked beyond a bounded enqueue: a persistently full queue drops the
// event with a warning. A zero payload timestamp is stamped here.
func (b *Bus) Trigger(ctx context.Context, event string, payload *Payload) []Delivery {
	if payload != nil && payload.TimestampUs == 0 {
		payload.TimestampUs = models.NowUs()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	targets := b.byEvent[event]
	if len(targets) == 0 {
		return nil
	}

	deliveries := make([]Delivery, 0, len(targets))
	for _, s := range targets {
		if s.disabled.Load() {
			deliveries = append(deliveries, Delivery{Subscriber: s.name, Reason: "disabled"})
			continue
		}

		ok, reason := enqueue(ctx, s.queue, dispatch{event: event, payload: payload})
		if ok {
			metrics.HookDispatches.WithLabelValues(event).Inc()
			deliveries = append(deliveries, Delivery{Subscriber: s.name, Enqueued: true})
			continue
		}

		slog.Warn("Hook event dropped",
			"subscriber", s.name,
			"event", event,
			"reason", reason)
		deliveries = append(deliveries, Delivery{Subscriber: s.name, Reason: reason})
	}
	return deliveries
}

// enqueue attempts a non-blocking send, then waits up to enqueueTimeout.
// The caller holds the bus read lock, which keeps the queue open for the
// duration of the send.
func enqueue(ctx context.Context, queue chan<- dispatch, d dispatch) (bool, string) {
	select {
	case queue <- d:
		return true, ""
	default:
	}

	timer := time.NewTimer(enqueueTimeout)
	defer timer.Stop()

	select {
	case queue <- d:
		return true, ""
	case <-timer.C:
		return false, "queue_full"
	case <-ctx.Done():
		return false, "canceled"
	}
}

// Close drains all subscriber queues and stops their goroutines. The bus
// rejects further registrations and triggers afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.queue)
	}
	b.subs = make(map[string]*subscription)
	b.byEvent = make(map[string][]*subscription)
	b.mu.Unlock()

	b.wg.Wait()
}

// run is the per-subscriber dispatch loop. It exits when the queue is
// closed, after draining remaining items. The disabled gauge is settled
// here so a subscription disabled mid-drain is still accounted for.
func (b *Bus) run(s *subscription) {
	defer b.wg.Done()
	defer func() {
		if s.disabled.Load() {
			metrics.HookSubscribersDisabled.Dec()
		}
	}()
	for d := range s.queue {
		if s.disabled.Load() {
			continue
		}
		b.deliver(s, d)
	}
}

// deliver invokes the handler with the per-dispatch timeout and tracks the
// consecutive-failure count. Handler panics count as failures.
func (b *Bus) deliver(s *subscription, d dispatch) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.DispatchTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("hook handler panicked: %v", r)
			}
		}()
		return s.sub.Handle(ctx, d.event, d.payload)
	}()

	if err == nil {
		s.failures = 0
		return
	}

	s.failures++
	metrics.HookFailures.WithLabelValues(s.name).Inc()
	slog.Error("Hook handler failed",
		"subscriber", s.name,
		"event", d.event,
		"consecutive_failures", s.failures,
		"error", err)

	if s.failures >= b.cfg.MaxConsecutiveFailures {
		s.disabled.Store(true)
		metrics.HookSubscribersDisabled.Inc()
		slog.Error("Hook subscriber disabled after repeated failures",
			"subscriber", s.name,
			"failures", s.failures)
	}
}
