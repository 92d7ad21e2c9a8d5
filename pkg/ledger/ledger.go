// SPDX-License-Identifier: Apache-2.0

// Package ledger tracks reason-tagged borrows of an object so that its owner can verify,
// before freeing it, that nobody still holds a reference.
//
// A Ledger never frees anything itself. Close stops new borrows and reports the holds
// that are still outstanding once the retry budget is spent; the owner decides whether
// a leak is fatal.
package ledger

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultLeakRetries    = 10
	DefaultLeakRetryDelay = 10 * time.Millisecond
)

// Reason names why a reference is held. Holds are counted per reason so that leaks
// can be attributed.
type Reason string

type Ledger struct {
	name       string
	mu         sync.Mutex
	counts     map[Reason]int
	closed     bool
	retries    int
	retryDelay time.Duration
}

type Option func(*Ledger)

// WithRetryPolicy sets how many times Close re-checks the counts and how long it waits between checks.
func WithRetryPolicy(retries int, delay time.Duration) Option {
	return func(l *Ledger) {
		if retries >= 0 {
			l.retries = retries
		}
		if delay >= 0 {
			l.retryDelay = delay
		}
	}
}

func New(name string, opts ...Option) *Ledger {
	l := &Ledger{
		name:       name,
		counts:     make(map[Reason]int),
		retries:    DefaultLeakRetries,
		retryDelay: DefaultLeakRetryDelay,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Ledger) Name() string {
	return l.name
}

// Acquire records a hold for reason. It fails once the ledger is closed.
func (l *Ledger) Acquire(reason Reason) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Closed.New("ledger %s is closed, cannot hold for %q", l.name, reason)
	}

	l.counts[reason]++
	return nil
}

// Release drops a hold previously recorded with Acquire.
// Releasing a reason that has no outstanding hold is a programming error and panics.
func (l *Ledger) Release(reason Reason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.counts[reason]
	if n <= 0 {
		panic(ReleaseWithoutHold.New("ledger %s: release of %q without a matching hold", l.name, reason))
	}

	if n == 1 {
		delete(l.counts, reason)
		return
	}
	l.counts[reason] = n - 1
}

// Hold records a hold and returns a token that releases exactly that hold.
func (l *Ledger) Hold(reason Reason) (*Hold, error) {
	if err := l.Acquire(reason); err != nil {
		return nil, err
	}

	return &Hold{ledger: l, reason: reason}, nil
}

func (l *Ledger) Count(reason Reason) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[reason]
}

func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalLocked()
}

func (l *Ledger) totalLocked() int {
	total := 0
	for _, n := range l.counts {
		total += n
	}
	return total
}

// Snapshot returns a copy of the outstanding holds per reason.
func (l *Ledger) Snapshot() map[Reason]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[Reason]int, len(l.counts))
	for r, n := range l.counts {
		out[r] = n
	}
	return out
}

func (l *Ledger) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close rejects new holds and waits, within the retry budget, for the outstanding ones
// to be released. If holds remain it returns a ReferenceLeak error that lists them.
// Close may be called more than once.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if l.Total() == 0 {
			return nil
		}

		if attempt >= l.retries {
			break
		}

		runtime.Gosched()
		if l.retryDelay > 0 {
			t := time.NewTimer(l.retryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return l.leakError()
			case <-t.C:
			}
		}
	}

	return l.leakError()
}

func (l *Ledger) leakError() error {
	leaks := l.Snapshot()
	if len(leaks) == 0 {
		return nil
	}

	desc := FormatCounts(leaks)
	return ReferenceLeak.New("ledger %s still has outstanding holds: %s", l.name, desc).
		WithProperty(PropertyLeaks, desc)
}

// FormatCounts renders counts as "reason=n" pairs in a stable order.
func FormatCounts(counts map[Reason]int) string {
	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, fmt.Sprintf("%s=%d", r, counts[Reason(r)]))
	}
	return strings.Join(parts, ",")
}
