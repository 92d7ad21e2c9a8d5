// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/require"
	"github.com/wlanhost/hostd/pkg/erx"
)

func TestLedger_HoldAndRelease(t *testing.T) {
	req := require.New(t)
	l := New("wlan0")

	h1, err := l.Hold("ioctl")
	req.NoError(err)
	h2, err := l.Hold("ioctl")
	req.NoError(err)
	req.NoError(l.Acquire("stats"))

	req.Equal(2, l.Count("ioctl"))
	req.Equal(3, l.Total())
	req.Equal(map[Reason]int{"ioctl": 2, "stats": 1}, l.Snapshot())

	h1.Release()
	h2.Release()
	l.Release("stats")
	req.Equal(0, l.Total())
	req.Empty(l.Snapshot())
}

func TestLedger_ReleaseWithoutHoldPanics(t *testing.T) {
	l := New("wlan0")

	defer func() {
		r := recover()
		require.NotNil(t, r)
		perr, ok := r.(error)
		require.True(t, ok)
		require.True(t, errorx.IsOfType(perr, ReleaseWithoutHold))
		require.Contains(t, perr.Error(), "without a matching hold")
	}()
	l.Release("ioctl")
}

func TestHold_DoubleReleasePanics(t *testing.T) {
	req := require.New(t)
	l := New("wlan0")

	h, err := l.Hold("scan")
	req.NoError(err)
	h.Release()

	defer func() {
		r := recover()
		req.NotNil(r)
		perr, ok := r.(error)
		req.True(ok)
		req.True(errorx.IsOfType(perr, ReleaseWithoutHold))
		req.Equal(erx.CategoryInvariant, erx.Classify(perr))
		req.Equal(0, l.Total())
	}()
	h.Release()
}

func TestLedger_CloseRejectsNewHolds(t *testing.T) {
	req := require.New(t)
	l := New("wlan0", WithRetryPolicy(0, 0))

	req.NoError(l.Close(context.Background()))
	req.True(l.IsClosed())

	_, err := l.Hold("ioctl")
	req.Error(err)
	req.True(errorx.IsOfType(err, Closed))
	req.True(erx.IsTransient(err))
}

func TestLedger_CloseWaitsForLateRelease(t *testing.T) {
	req := require.New(t)
	l := New("wlan0", WithRetryPolicy(50, 5*time.Millisecond))

	h, err := l.Hold("tx")
	req.NoError(err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		h.Release()
	}()

	req.NoError(l.Close(context.Background()))
	wg.Wait()
}

func TestLedger_CloseReportsLeak(t *testing.T) {
	req := require.New(t)

	// Given: a hold that is never released
	l := New("wlan1", WithRetryPolicy(3, time.Millisecond))
	_, err := l.Hold("ioctl")
	req.NoError(err)
	req.NoError(l.Acquire("stats"))
	req.NoError(l.Acquire("stats"))

	// When: the owner retires the ledger
	err = l.Close(context.Background())

	// Then: the leak is reported with a per-reason breakdown
	req.Error(err)
	req.True(errorx.IsOfType(err, ReferenceLeak))
	leaks, ok := errorx.ExtractProperty(err, PropertyLeaks)
	req.True(ok)
	req.Equal("ioctl=1,stats=2", leaks)
}

func TestLedger_CloseHonoursContext(t *testing.T) {
	req := require.New(t)
	l := New("wlan2", WithRetryPolicy(1000, time.Second))
	req.NoError(l.Acquire("ioctl"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Close(ctx)
	req.Error(err)
	req.Less(time.Since(start), 500*time.Millisecond)
}

func TestLedger_ConcurrentHolds(t *testing.T) {
	req := require.New(t)
	l := New("wlan0")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h, err := l.Hold("ioctl")
				if err != nil {
					return
				}
				h.Release()
			}
		}()
	}
	wg.Wait()

	req.Equal(0, l.Total())
	req.NoError(l.Close(context.Background()))
}
