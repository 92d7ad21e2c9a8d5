// SPDX-License-Identifier: Apache-2.0

package idle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wlanhost/hostd/internal/core"
)

const (
	testInterval = 40 * time.Millisecond
	epsilon      = 200 * time.Millisecond
)

var nolog = zerolog.Nop()

type recorder struct {
	mu       sync.Mutex
	outcomes []string
	ch       chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 64)}
}

func (r *recorder) observe(o string) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	r.ch <- o
}

func (r *recorder) next(t *testing.T, within time.Duration) string {
	select {
	case o := <-r.ch:
		return o
	case <-time.After(within):
		t.Fatalf("no idle expiry within %s", within)
		return ""
	}
}

func TestTimer_ClosesAfterInterval(t *testing.T) {
	req := require.New(t)
	rec := newRecorder()
	var closedAt atomic.Int64

	timer := New(testInterval, func(ctx context.Context) error {
		closedAt.Store(time.Now().UnixNano())
		return nil
	}, WithLogger(&nolog), WithObserver(rec.observe))

	start := time.Now()
	req.True(timer.NotifyIdle())
	deadline, armed := timer.Deadline()
	req.True(armed)
	req.WithinDuration(start.Add(testInterval), deadline, epsilon)

	req.Equal(OutcomeClosed, rec.next(t, testInterval+epsilon))
	elapsed := time.Duration(closedAt.Load() - start.UnixNano())
	req.GreaterOrEqual(elapsed, testInterval)
	req.Less(elapsed, testInterval+epsilon)
	req.False(timer.Armed())
}

func TestTimer_NotifyActiveDisarms(t *testing.T) {
	req := require.New(t)
	var calls atomic.Int32

	timer := New(testInterval, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, WithLogger(&nolog))

	timer.NotifyIdle()
	timer.NotifyActive()
	req.False(timer.Armed())

	time.Sleep(3 * testInterval)
	req.Zero(calls.Load())
}

func TestTimer_RearmingIsNotExtended(t *testing.T) {
	req := require.New(t)
	timer := New(time.Hour, func(ctx context.Context) error { return nil }, WithLogger(&nolog))
	defer timer.Stop()

	timer.NotifyIdle()
	first, _ := timer.Deadline()
	time.Sleep(5 * time.Millisecond)
	timer.NotifyIdle()
	second, _ := timer.Deadline()
	req.Equal(first, second)
}

func TestTimer_NotArmedWhenIneligible(t *testing.T) {
	req := require.New(t)
	active := atomic.Bool{}
	active.Store(true)

	timer := New(testInterval, func(ctx context.Context) error { return nil },
		WithLogger(&nolog), WithEligibility(func() bool { return !active.Load() }))

	req.False(timer.NotifyIdle())
	req.False(timer.Armed())

	active.Store(false)
	req.True(timer.NotifyIdle())
	timer.Stop()
	req.False(timer.Armed())
	req.False(timer.NotifyIdle())
}

func TestTimer_RearmsDuringSuspend(t *testing.T) {
	req := require.New(t)
	rec := newRecorder()
	var suspended atomic.Bool
	suspended.Store(true)
	var calls atomic.Int32

	timer := New(testInterval, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, WithLogger(&nolog), WithObserver(rec.observe), WithSuspendProbe(suspended.Load))

	timer.NotifyIdle()
	req.Equal(OutcomeSuspended, rec.next(t, testInterval+epsilon))
	req.True(timer.Armed())
	req.Zero(calls.Load())

	suspended.Store(false)
	req.Equal(OutcomeClosed, rec.next(t, testInterval+epsilon))
	req.Equal(int32(1), calls.Load())
}

func TestTimer_BusyRearmsAndCountsDeferrals(t *testing.T) {
	req := require.New(t)
	rec := newRecorder()
	var busy atomic.Int32
	busy.Store(3)

	timer := New(testInterval, func(ctx context.Context) error {
		if busy.Add(-1) >= 0 {
			return core.Busy.New("debug trace user active")
		}
		return nil
	}, WithLogger(&nolog), WithObserver(rec.observe), WithMaxBusyDeferrals(1))

	timer.NotifyIdle()
	for i := 0; i < 3; i++ {
		req.Equal(OutcomeBusy, rec.next(t, testInterval+epsilon))
	}
	req.Equal(OutcomeClosed, rec.next(t, testInterval+epsilon))
	req.Zero(timer.BusyDeferrals())
}

func TestTimer_StopsOnAbortAndUnloading(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		outcome string
	}{
		{name: "aborted", err: core.IdleAborted.New("interface opened"), outcome: OutcomeAborted},
		{name: "unloading", err: core.DriverUnloading.New("detach"), outcome: OutcomeUnloading},
		{name: "other", err: errors.New("bus error"), outcome: OutcomeFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			rec := newRecorder()
			timer := New(testInterval, func(ctx context.Context) error { return tc.err },
				WithLogger(&nolog), WithObserver(rec.observe))

			timer.NotifyIdle()
			req.Equal(tc.outcome, rec.next(t, testInterval+epsilon))
			req.False(timer.Armed())
		})
	}
}

func TestTimer_StaleExpiryIgnored(t *testing.T) {
	req := require.New(t)
	var calls atomic.Int32
	timer := New(time.Hour, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, WithLogger(&nolog))

	timer.NotifyIdle()
	timer.mu.Lock()
	staleGen := timer.gen
	timer.mu.Unlock()

	timer.Disarm()
	timer.NotifyIdle()
	timer.expire(staleGen)

	req.Zero(calls.Load())
	req.True(timer.Armed())
	timer.Stop()
}
