// SPDX-License-Identifier: Apache-2.0

// Package idle powers the module down after a period without active interfaces.
//
// The timer is armed whenever the driver reports that nothing is active and disarmed as
// soon as something becomes active. An expiry that raced with a disarm is recognised by
// its generation and ignored.
package idle

import (
	"context"
	"sync"
	"time"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
	"github.com/wlanhost/hostd/internal/core"
)

const (
	DefaultInterval         = 5 * time.Second
	DefaultMaxBusyDeferrals = 10
)

// Outcome of an expiry, reported to the observer.
const (
	OutcomeClosed    = "closed"
	OutcomeSuspended = "suspended"
	OutcomeBusy      = "busy"
	OutcomeAborted   = "aborted"
	OutcomeUnloading = "unloading"
	OutcomeFailed    = "failed"
)

// CloseFunc powers the module down. It is called without any timer lock held.
type CloseFunc func(ctx context.Context) error

type Timer struct {
	mu               sync.Mutex
	interval         time.Duration
	closer           CloseFunc
	eligible         func() bool
	suspended        func() bool
	observer         func(outcome string)
	timer            *time.Timer
	deadline         time.Time
	gen              uint64
	stopped          bool
	busyDeferrals    int
	maxBusyDeferrals int
	logger           *zerolog.Logger
}

type Option func(*Timer)

func WithLogger(logger *zerolog.Logger) Option {
	return func(t *Timer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithEligibility sets the condition under which NotifyIdle arms the timer.
func WithEligibility(fn func() bool) Option {
	return func(t *Timer) {
		t.eligible = fn
	}
}

// WithSuspendProbe reports whether system suspend is in progress at expiry.
func WithSuspendProbe(fn func() bool) Option {
	return func(t *Timer) {
		t.suspended = fn
	}
}

func WithMaxBusyDeferrals(n int) Option {
	return func(t *Timer) {
		if n >= 0 {
			t.maxBusyDeferrals = n
		}
	}
}

func WithObserver(fn func(outcome string)) Option {
	return func(t *Timer) {
		t.observer = fn
	}
}

func New(interval time.Duration, closer CloseFunc, opts ...Option) *Timer {
	if interval <= 0 {
		interval = DefaultInterval
	}

	t := &Timer{
		interval:         interval,
		closer:           closer,
		eligible:         func() bool { return true },
		suspended:        func() bool { return false },
		maxBusyDeferrals: DefaultMaxBusyDeferrals,
		logger:           logx.As(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// NotifyActive cancels a pending expiry.
func (t *Timer) NotifyActive() {
	t.Disarm()
}

// NotifyIdle arms the timer if the eligibility condition holds and it is not armed yet.
// It reports whether the timer is armed afterwards.
func (t *Timer) NotifyIdle() bool {
	if !t.eligible() {
		return t.Armed()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}
	if t.timer == nil {
		t.armLocked()
	}
	return true
}

func (t *Timer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

// Stop disarms the timer permanently.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	t.disarmLocked()
}

func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Deadline returns when the armed timer expires.
func (t *Timer) Deadline() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline, t.timer != nil
}

func (t *Timer) BusyDeferrals() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busyDeferrals
}

func (t *Timer) armLocked() {
	t.gen++
	gen := t.gen
	t.deadline = time.Now().Add(t.interval)
	t.timer = time.AfterFunc(t.interval, func() { t.expire(gen) })

	t.logger.Debug().Time("deadline", t.deadline).Msg("Idle timer armed")
}

func (t *Timer) disarmLocked() {
	if t.timer == nil {
		return
	}

	t.timer.Stop()
	t.timer = nil
	t.gen++
	t.deadline = time.Time{}

	t.logger.Debug().Msg("Idle timer disarmed")
}

func (t *Timer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.timer == nil || t.stopped {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.deadline = time.Time{}

	if t.suspended() {
		t.armLocked()
		t.mu.Unlock()
		t.logger.Info().Msg("Idle timer expired during system suspend, rearmed")
		t.observe(OutcomeSuspended)
		return
	}
	t.mu.Unlock()

	err := t.closer(context.Background())
	t.handle(err)
}

func (t *Timer) handle(err error) {
	switch {
	case err == nil:
		t.mu.Lock()
		t.busyDeferrals = 0
		t.mu.Unlock()
		t.logger.Info().Msg("Module powered down after idle interval")
		t.observe(OutcomeClosed)

	case errorx.IsOfType(err, core.Busy):
		t.mu.Lock()
		t.busyDeferrals++
		n := t.busyDeferrals
		if !t.stopped && t.timer == nil && t.eligible() {
			t.armLocked()
		}
		t.mu.Unlock()

		ev := t.logger.Info()
		if n > t.maxBusyDeferrals {
			ev = t.logger.Warn()
		}
		ev.Err(err).Int("deferrals", n).Msg("Idle power-down deferred, module busy")
		t.observe(OutcomeBusy)

	case errorx.IsOfType(err, core.IdleAborted):
		t.logger.Debug().Err(err).Msg("Idle power-down aborted, interface became active")
		t.observe(OutcomeAborted)

	case errorx.IsOfType(err, core.DriverUnloading):
		t.logger.Debug().Msg("Idle power-down skipped, driver unloading")
		t.observe(OutcomeUnloading)

	default:
		t.logger.Error().Err(err).Msg("Idle power-down failed")
		t.observe(OutcomeFailed)
	}
}

func (t *Timer) observe(outcome string) {
	if t.observer != nil {
		t.observer(outcome)
	}
}
