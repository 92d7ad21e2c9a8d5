// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wlanhost/hostd/pkg/erx"
)

func newTestGate() *Gate {
	l := zerolog.Nop()
	return New(WithLogger(&l))
}

// started reports whether ch delivered within d.
func started(ch <-chan *Txn, d time.Duration) (*Txn, bool) {
	select {
	case t := <-ch:
		return t, true
	case <-time.After(d):
		return nil, false
	}
}

func startAsync(g *Gate, s *Scope, kind Kind, desc string) <-chan *Txn {
	ch := make(chan *Txn, 1)
	go func() {
		var (
			t   *Txn
			err error
		)
		if kind == KindTransition {
			t, err = g.StartTransition(context.Background(), s, desc)
		} else {
			t, err = g.StartOperation(context.Background(), s, desc)
		}
		if err == nil {
			ch <- t
		}
		close(ch)
	}()
	return ch
}

func TestGate_OperationsShareScope(t *testing.T) {
	req := require.New(t)
	g := newTestGate()
	ctx := context.Background()

	op1, err := g.StartOperation(ctx, g.Module(), "ioctl")
	req.NoError(err)
	op2, err := g.StartOperation(ctx, g.Module(), "ioctl")
	req.NoError(err)

	ops, inTransition := g.Module().Active()
	req.Equal(2, ops)
	req.False(inTransition)
	req.NotEqual(op1.ID(), op2.ID())

	op1.End()
	op2.End()
}

func TestGate_TransitionWaitsForOperationsAndBlocksNewOnes(t *testing.T) {
	req := require.New(t)
	g := newTestGate()
	ctx := context.Background()

	// Given: an in-flight operation
	op, err := g.StartOperation(ctx, g.Module(), "ioctl")
	req.NoError(err)

	// When: a transition and then another operation are requested
	trCh := startAsync(g, g.Module(), KindTransition, "close")
	_, ok := started(trCh, 50*time.Millisecond)
	req.False(ok, "transition must wait for the operation")

	opCh := startAsync(g, g.Module(), KindOperation, "ioctl")
	_, ok = started(opCh, 50*time.Millisecond)
	req.False(ok, "new operation must queue behind the waiting transition")

	// Then: ending the operation admits the transition first
	op.End()
	tr, ok := started(trCh, time.Second)
	req.True(ok)
	req.Equal(KindTransition, tr.Kind())

	_, ok = started(opCh, 50*time.Millisecond)
	req.False(ok)

	tr.End()
	op2, ok := started(opCh, time.Second)
	req.True(ok)
	op2.End()
}

func TestGate_ModuleTransitionBlockedByAdapterTransition(t *testing.T) {
	req := require.New(t)
	g := newTestGate()
	ctx := context.Background()
	wlan0 := g.NewScope("wlan0")

	child, err := g.StartTransition(ctx, wlan0, "create")
	req.NoError(err)

	modCh := startAsync(g, g.Module(), KindTransition, "close")
	_, ok := started(modCh, 50*time.Millisecond)
	req.False(ok)

	child.End()
	mod, ok := started(modCh, time.Second)
	req.True(ok)

	// adapter work waits for the module transition
	opCh := startAsync(g, wlan0, KindOperation, "start")
	_, ok = started(opCh, 50*time.Millisecond)
	req.False(ok)
	trCh := startAsync(g, wlan0, KindTransition, "destroy")
	_, ok = started(trCh, 50*time.Millisecond)
	req.False(ok)

	mod.End()
	tr, ok := started(trCh, time.Second)
	if ok {
		tr.End()
	}
	req.True(ok)
	op, ok := started(opCh, time.Second)
	req.True(ok)
	op.End()
}

func TestGate_NoOverlapUnderStress(t *testing.T) {
	req := require.New(t)
	g := newTestGate()
	scopes := []*Scope{g.NewScope("wlan0"), g.NewScope("wlan1"), g.NewScope("p2p0")}

	var (
		moduleActive int32
		childActive  int32
		perScope     = make([]int32, len(scopes))
		violations   int32
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				if rnd.Intn(4) == 0 {
					tr, err := g.StartTransition(ctx, g.Module(), "enable")
					if err != nil {
						atomic.AddInt32(&violations, 1)
						return
					}
					atomic.AddInt32(&moduleActive, 1)
					if atomic.LoadInt32(&childActive) != 0 {
						atomic.AddInt32(&violations, 1)
					}
					time.Sleep(time.Duration(rnd.Intn(50)) * time.Microsecond)
					atomic.AddInt32(&moduleActive, -1)
					tr.End()
					continue
				}

				idx := rnd.Intn(len(scopes))
				tr, err := g.StartTransition(ctx, scopes[idx], "create")
				if err != nil {
					atomic.AddInt32(&violations, 1)
					return
				}
				atomic.AddInt32(&childActive, 1)
				if atomic.AddInt32(&perScope[idx], 1) != 1 {
					atomic.AddInt32(&violations, 1)
				}
				if atomic.LoadInt32(&moduleActive) != 0 {
					atomic.AddInt32(&violations, 1)
				}
				time.Sleep(time.Duration(rnd.Intn(50)) * time.Microsecond)
				atomic.AddInt32(&perScope[idx], -1)
				atomic.AddInt32(&childActive, -1)
				tr.End()
			}
		}(int64(w))
	}
	wg.Wait()

	req.Zero(atomic.LoadInt32(&violations))
}

func TestGate_ChildTransitionNotBlockedByPendingModuleTransition(t *testing.T) {
	req := require.New(t)
	g := newTestGate()
	ctx := context.Background()
	wlan0 := g.NewScope("wlan0")

	// Given: a caller holding a module operation and a module transition waiting on it
	op, err := g.StartOperation(ctx, g.Module(), "add-interface")
	req.NoError(err)
	modCh := startAsync(g, g.Module(), KindTransition, "close")
	_, ok := started(modCh, 50*time.Millisecond)
	req.False(ok)

	// When: the same caller starts an adapter transition
	child, err := g.StartTransition(ctx, wlan0, "create")

	// Then: it is admitted, and the module transition follows once both end
	req.NoError(err)
	child.End()
	op.End()
	mod, ok := started(modCh, time.Second)
	req.True(ok)
	mod.End()
}

func TestGate_WaitForDrainIgnoresLaterTransactions(t *testing.T) {
	req := require.New(t)
	g := newTestGate()
	ctx := context.Background()
	wlan0 := g.NewScope("wlan0")

	early, err := g.StartOperation(ctx, wlan0, "tx")
	req.NoError(err)

	drained := make(chan error, 1)
	go func() {
		drained <- g.WaitForDrain(ctx, wlan0)
	}()

	time.Sleep(20 * time.Millisecond)
	late, err := g.StartOperation(ctx, wlan0, "tx")
	req.NoError(err)

	select {
	case <-drained:
		req.Fail("drain returned before the early operation ended")
	case <-time.After(30 * time.Millisecond):
	}

	early.End()
	select {
	case err := <-drained:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("drain blocked on a later operation")
	}
	late.End()
}

func TestGate_UnloadingFailsTransitionsOnly(t *testing.T) {
	req := require.New(t)
	g := newTestGate()
	ctx := context.Background()

	op, err := g.StartOperation(ctx, g.Module(), "ioctl")
	req.NoError(err)

	waiting := make(chan error, 1)
	go func() {
		_, err := g.StartTransition(ctx, g.Module(), "enable")
		waiting <- err
	}()
	time.Sleep(20 * time.Millisecond)

	g.SetUnloading()
	req.True(g.IsUnloading())

	select {
	case err := <-waiting:
		req.True(errorx.IsOfType(err, Unloading))
	case <-time.After(time.Second):
		req.Fail("waiting transition not released by unloading")
	}

	_, err = g.StartTransition(ctx, g.Module(), "enable")
	req.True(errorx.IsOfType(err, Unloading))

	op2, err := g.StartOperation(ctx, g.Module(), "ioctl")
	req.NoError(err)
	op2.End()
	op.End()
}

func TestGate_ContextCancellationIsTransient(t *testing.T) {
	req := require.New(t)
	g := newTestGate()

	tr, err := g.StartTransition(context.Background(), g.Module(), "enable")
	req.NoError(err)
	defer tr.End()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = g.StartOperation(ctx, g.Module(), "ioctl")
	req.Error(err)
	req.True(errorx.IsOfType(err, Contention))
	req.True(erx.IsTransient(err))

	// the abandoned wait must not leave writer priority behind
	ops, _ := g.Module().Active()
	req.Zero(ops)
}

func TestGate_AbandonedTransitionReleasesPriority(t *testing.T) {
	req := require.New(t)
	g := newTestGate()

	op, err := g.StartOperation(context.Background(), g.Module(), "ioctl")
	req.NoError(err)
	defer op.End()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.StartTransition(ctx, g.Module(), "close")
	req.Error(err)

	op2, err := g.StartOperation(context.Background(), g.Module(), "ioctl")
	req.NoError(err)
	op2.End()
}

func TestGate_RemovedScopeRejectsWork(t *testing.T) {
	req := require.New(t)
	g := newTestGate()
	ctx := context.Background()
	wlan0 := g.NewScope("wlan0")
	req.False(wlan0.IsModule())
	req.True(g.Module().IsModule())

	tr, err := g.StartTransition(ctx, wlan0, "destroy")
	req.NoError(err)

	waiting := make(chan error, 1)
	go func() {
		_, err := g.StartOperation(ctx, wlan0, "start")
		waiting <- err
	}()
	time.Sleep(20 * time.Millisecond)

	tr.End()
	g.RemoveScope(wlan0)

	select {
	case err := <-waiting:
		// the waiter may win the race against removal
		if err != nil {
			req.True(errorx.IsOfType(err, ScopeRemoved))
		}
	case <-time.After(time.Second):
		req.Fail("waiter not woken")
	}

	_, err = g.StartOperation(ctx, wlan0, "start")
	req.True(errorx.IsOfType(err, ScopeRemoved))
}

func TestTxn_DoubleEndPanics(t *testing.T) {
	req := require.New(t)
	g := newTestGate()

	op, err := g.StartOperation(context.Background(), g.Module(), "ioctl")
	req.NoError(err)
	op.End()

	defer func() {
		r := recover()
		req.NotNil(r)
		perr, ok := r.(error)
		req.True(ok)
		req.True(errorx.IsOfType(perr, DoubleEnd))
	}()
	op.End()
}

func TestGate_ObserverSeesAdmissions(t *testing.T) {
	req := require.New(t)
	var kinds []Kind
	l := zerolog.Nop()
	g := New(WithLogger(&l), WithObserver(func(kind Kind, s *Scope, _ time.Duration) {
		kinds = append(kinds, kind)
	}))

	tr, err := g.StartTransition(context.Background(), g.Module(), "enable")
	req.NoError(err)
	tr.End()
	op, err := g.StartOperation(context.Background(), g.Module(), "ioctl")
	req.NoError(err)
	op.End()

	req.Equal([]Kind{KindTransition, KindOperation}, kinds)
}
