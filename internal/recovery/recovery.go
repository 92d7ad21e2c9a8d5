// SPDX-License-Identifier: Apache-2.0

// Package recovery broadcasts forced-recovery requests. Escalation is fire-and-forget:
// the component that detects an unrecoverable firmware state publishes an Event and
// carries on with local cleanup. A supervisor subscribed to the topic performs the
// restart.
package recovery

import (
	"sync"
	"sync/atomic"
	"time"

	ebus "github.com/asaskevich/EventBus"
	"github.com/automa-saga/logx"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/pkg/erx"
)

type Event struct {
	ID     string
	Reason string
	VdevID core.VdevID
	Err    error
	At     time.Time
}

// Notifier publishes forced-recovery events and remembers that one is outstanding until
// the driver has restarted.
type Notifier struct {
	bus      ebus.Bus
	pending  atomic.Bool
	count    atomic.Int64
	mu       sync.Mutex
	last     *Event
	logger   *zerolog.Logger
	observer func(Event)
}

type Option func(*Notifier)

func WithLogger(logger *zerolog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithObserver registers a synchronous callback invoked on every escalation.
func WithObserver(fn func(Event)) Option {
	return func(n *Notifier) {
		n.observer = fn
	}
}

func New(opts ...Option) *Notifier {
	n := &Notifier{
		bus:    ebus.New(),
		logger: logx.As(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Escalate flags the driver for recovery and publishes ev on TopicForcedRecovery.
func (n *Notifier) Escalate(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	n.pending.Store(true)
	n.count.Add(1)
	n.mu.Lock()
	n.last = &ev
	n.mu.Unlock()

	erx.MarkRecovery(n.logger, ev.Reason)
	n.logger.Error().
		Err(ev.Err).
		Str("recovery_id", ev.ID).
		Str("vdev_id", ev.VdevID.String()).
		Msg("Forced recovery requested")

	if n.observer != nil {
		n.observer(ev)
	}

	n.bus.Publish(TopicForcedRecovery, ev)
}

// Subscribe registers handler for forced-recovery events. Handlers run asynchronously.
// The returned function removes the subscription.
func (n *Notifier) Subscribe(handler func(Event)) (func(), error) {
	if err := n.bus.SubscribeAsync(TopicForcedRecovery, handler, false); err != nil {
		return nil, err
	}

	return func() {
		_ = n.bus.Unsubscribe(TopicForcedRecovery, handler)
	}, nil
}

// SubscribeRecovered registers handler for recovery completion.
func (n *Notifier) SubscribeRecovered(handler func(id string)) error {
	return n.bus.Subscribe(TopicRecovered, handler)
}

// Resolve clears the pending flag after the driver restarted.
func (n *Notifier) Resolve() {
	if !n.pending.CompareAndSwap(true, false) {
		return
	}

	id := ""
	n.mu.Lock()
	if n.last != nil {
		id = n.last.ID
	}
	n.mu.Unlock()

	n.logger.Info().Str("recovery_id", id).Msg("Forced recovery resolved")
	n.bus.Publish(TopicRecovered, id)
}

func (n *Notifier) Pending() bool {
	return n.pending.Load()
}

// Count returns how many escalations were published.
func (n *Notifier) Count() int64 {
	return n.count.Load()
}

// Last returns the most recent escalation.
func (n *Notifier) Last() (Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.last == nil {
		return Event{}, false
	}
	return *n.last, true
}

// Wait blocks until asynchronous handlers have returned.
func (n *Notifier) Wait() {
	n.bus.WaitAsync()
}
