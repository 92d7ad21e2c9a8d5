// SPDX-License-Identifier: Apache-2.0

package vdev

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/hal"
	"github.com/wlanhost/hostd/internal/recovery"
	"github.com/wlanhost/hostd/internal/registry"
	"github.com/wlanhost/hostd/pkg/erx"
	"github.com/wlanhost/hostd/pkg/gate"
	"github.com/wlanhost/hostd/pkg/ledger"
)

var nolog = zerolog.Nop()

type fakeModule struct {
	state core.ModuleState
}

func (f *fakeModule) State() core.ModuleState {
	return f.state
}

func (f *fakeModule) GlobalMode() core.GlobalMode {
	return core.GlobalModeMission
}

type fixture struct {
	fw       *hal.MockFirmware
	proto    *hal.MockProtocol
	registry *registry.Registry
	module   *fakeModule
	notifier *recovery.Notifier
	gate     *gate.Gate
	m        *Manager
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		fw:       hal.NewMockFirmware(ctrl),
		proto:    hal.NewMockProtocol(ctrl),
		registry: registry.New(registry.WithLogger(&nolog)),
		module:   &fakeModule{state: core.StateEnabled},
		notifier: recovery.New(recovery.WithLogger(&nolog)),
		gate:     gate.New(gate.WithLogger(&nolog)),
	}
	f.m = NewManager(f.fw, f.proto, f.registry, f.module, f.notifier,
		WithLogger(&nolog), WithDestroyTimeout(50*time.Millisecond))
	return f
}

func (f *fixture) register(t *testing.T, mode core.Mode, addr string) *core.Adapter {
	a := core.NewAdapter(mode, core.MustParseMacAddress(addr), f.gate.NewScope(addr), ledger.New(addr))
	_, err := f.registry.InsertBack(a)
	require.NoError(t, err)
	return a
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func ackChan(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

func TestManager_Create(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a := f.register(t, core.ModeStation, "02:00:00:00:00:01")

	f.fw.EXPECT().CreateResource(gomock.Any(), hal.ResourceParams{
		VdevID:     0,
		Mode:       core.ModeStation,
		Address:    a.Address(),
		GlobalMode: core.GlobalModeMission,
	}).Return(core.ResourceHandle(7), nil)
	f.proto.EXPECT().NotifyCreated(gomock.Any(), core.VdevID(0)).Return(nil)

	req.NoError(f.m.Create(context.Background(), a))
	req.True(a.Has(core.FlagResourceCreated))

	// a second create on the same adapter is refused without touching the firmware
	err := f.m.Create(context.Background(), a)
	req.True(errorx.IsOfType(err, errorx.IllegalState))
}

func TestManager_CreateRequiresEnabledModule(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.module.state = core.StateClosed
	a := f.register(t, core.ModeStation, "02:00:00:00:00:01")

	err := f.m.Create(context.Background(), a)
	req.True(errorx.IsOfType(err, core.ModuleClosed))
	req.True(erx.IsTransient(err))
	req.False(a.Has(core.FlagResourceCreated))
}

func TestManager_CreateRejectsDuplicateAddress(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.register(t, core.ModeStation, "02:00:00:00:00:01")

	// an adapter that has not been registered yet, sharing the address
	dup := core.NewAdapter(core.ModeAccessPoint, core.MustParseMacAddress("02:00:00:00:00:01"), f.gate.NewScope("dup"), ledger.New("dup"))

	err := f.m.Create(context.Background(), dup)
	req.True(errorx.IsOfType(err, core.DuplicateAddress))
	req.Equal(erx.CategoryResourceExhaustion, erx.Classify(err))
}

func TestManager_CreateFailureLeavesNoResource(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a := f.register(t, core.ModeStation, "02:00:00:00:00:01")

	f.fw.EXPECT().CreateResource(gomock.Any(), gomock.Any()).Return(core.ResourceHandle(0), errors.New("wmi timeout"))

	err := f.m.Create(context.Background(), a)
	req.Error(err)
	req.Equal(erx.CategoryFirmwareFault, erx.Classify(err))
	req.False(a.Has(core.FlagResourceCreated))
	id, ok := errorx.ExtractProperty(err, core.PropertyVdevID)
	req.True(ok)
	req.Equal("0", id)
}

func TestManager_CreateUndoesResourceWhenProtocolRejects(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a := f.register(t, core.ModeStation, "02:00:00:00:00:01")

	gomock.InOrder(
		f.fw.EXPECT().CreateResource(gomock.Any(), gomock.Any()).Return(core.ResourceHandle(9), nil),
		f.proto.EXPECT().NotifyCreated(gomock.Any(), core.VdevID(0)).Return(errors.New("no peer table")),
		f.proto.EXPECT().NotifyDestroyBegin(gomock.Any(), core.VdevID(0)).Return(closedChan()),
		f.fw.EXPECT().DestroyResource(gomock.Any(), core.ResourceHandle(9)).Return(ackChan(nil), nil),
	)

	err := f.m.Create(context.Background(), a)
	req.Error(err)
	req.False(a.Has(core.FlagResourceCreated))
	req.False(f.notifier.Pending())
}

func TestManager_DestroyIsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a := f.register(t, core.ModeStation, "02:00:00:00:00:01")
	a.AttachResource(3)

	f.proto.EXPECT().NotifyDestroyBegin(gomock.Any(), core.VdevID(0)).Return(closedChan()).Times(1)
	f.fw.EXPECT().DestroyResource(gomock.Any(), core.ResourceHandle(3)).Return(ackChan(nil), nil).Times(1)

	res, err := f.m.Destroy(context.Background(), a)
	req.NoError(err)
	req.Equal(Destroyed, res)

	// Then: a second destroy performs no collaborator calls
	res, err = f.m.Destroy(context.Background(), a)
	req.NoError(err)
	req.Equal(AlreadyAbsent, res)
	req.False(f.notifier.Pending())
}

func TestManager_DestroyTimeoutEscalatesOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a := f.register(t, core.ModeStation, "02:00:00:00:00:01")
	a.AttachResource(5)

	var events []recovery.Event
	_, err := f.notifier.Subscribe(func(ev recovery.Event) { events = append(events, ev) })
	req.NoError(err)

	f.proto.EXPECT().NotifyDestroyBegin(gomock.Any(), gomock.Any()).Return(closedChan())
	f.fw.EXPECT().DestroyResource(gomock.Any(), core.ResourceHandle(5)).Return(make(chan error), nil)

	start := time.Now()
	res, err := f.m.Destroy(context.Background(), a)
	f.notifier.Wait()

	req.NoError(err)
	req.Equal(ForcedCleanup, res)
	req.GreaterOrEqual(time.Since(start), 50*time.Millisecond)
	req.False(a.Has(core.FlagResourceCreated))
	req.True(f.notifier.Pending())
	req.Equal(int64(1), f.notifier.Count())
	req.Len(events, 1)
	req.True(errorx.IsOfType(events[0].Err, core.DestroyTimeout))

	// the adapter no longer owns a resource: nothing further is escalated
	res, err = f.m.Destroy(context.Background(), a)
	req.NoError(err)
	req.Equal(AlreadyAbsent, res)
	req.Equal(int64(1), f.notifier.Count())
}

func TestManager_DestroyProtocolHangSharesDeadline(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a := f.register(t, core.ModeStation, "02:00:00:00:00:01")
	a.AttachResource(5)

	f.proto.EXPECT().NotifyDestroyBegin(gomock.Any(), gomock.Any()).Return(make(chan struct{}))

	start := time.Now()
	res, err := f.m.Destroy(context.Background(), a)
	req.NoError(err)
	req.Equal(ForcedCleanup, res)
	req.Less(time.Since(start), time.Second)
	req.Equal(int64(1), f.notifier.Count())
}

func TestManager_DestroyRejectedEscalates(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a := f.register(t, core.ModeStation, "02:00:00:00:00:01")
	a.AttachResource(5)

	f.proto.EXPECT().NotifyDestroyBegin(gomock.Any(), gomock.Any()).Return(closedChan())
	f.fw.EXPECT().DestroyResource(gomock.Any(), gomock.Any()).Return(nil, errors.New("queue full"))

	res, err := f.m.Destroy(context.Background(), a)
	req.NoError(err)
	req.Equal(ForcedCleanup, res)
	ev, ok := f.notifier.Last()
	req.True(ok)
	req.Equal(erx.CategoryFirmwareFault, erx.Classify(ev.Err))
}

func TestManager_DestroyLocal(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a := f.register(t, core.ModeStation, "02:00:00:00:00:01")
	a.AttachResource(5)

	res, err := f.m.DestroyLocal(context.Background(), a)
	req.NoError(err)
	req.Equal(ForcedCleanup, res)
	req.False(a.Has(core.FlagResourceCreated))
	req.False(f.notifier.Pending())
	req.Equal("forced-cleanup", res.String())
}
