// SPDX-License-Identifier: Apache-2.0

// Package module owns the power and firmware state of the radio.
//
// The state moves Uninitialized -> Enabled -> Closed -> Enabled ... and only ever
// changes while the caller holds the module transition of the gate. Everyone else
// reads it through State, which is a lock-free snapshot.
package module

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/hal"
	"github.com/wlanhost/hostd/internal/metrics"
	"github.com/wlanhost/hostd/internal/registry"
	"github.com/wlanhost/hostd/internal/vdev"
	"github.com/wlanhost/hostd/pkg/erx"
	"github.com/wlanhost/hostd/pkg/gate"
)

const DefaultFirmwareReadyTimeout = 10 * time.Second

// Disarmer cancels a pending idle power-down.
type Disarmer interface {
	Disarm()
}

// BusyProbe reports whether the module must not be closed right now, and why.
type BusyProbe func() (bool, string)

// Hook runs while the module transition is held.
type Hook func(ctx context.Context) error

// CloseOptions tunes EnsureClosed.
type CloseOptions struct {
	// Reason is logged.
	Reason string
	// Recovery closes after a firmware crash: the transport stays powered and adapter
	// resources are cleared locally.
	Recovery bool
	// Force skips the busy probes.
	Force bool
	// Guard is evaluated once the transition is held; an error aborts the close.
	Guard func() error
}

type StateMachine struct {
	state      atomic.Int32
	globalMode atomic.Int32

	gate      *gate.Gate
	transport hal.Transport
	firmware  hal.Firmware
	registry  *registry.Registry
	vdevs     *vdev.Manager
	idle      Disarmer

	readyTimeout time.Duration
	constraint   *semver.Constraints
	busyProbes   []BusyProbe
	afterEnable  []Hook
	metrics      *metrics.Collector
	logger       *zerolog.Logger

	// guarded by the module transition
	powered bool
	image   hal.Image

	mu sync.Mutex
}

type Option func(*StateMachine)

func WithLogger(logger *zerolog.Logger) Option {
	return func(sm *StateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

func WithFirmwareReadyTimeout(d time.Duration) Option {
	return func(sm *StateMachine) {
		if d > 0 {
			sm.readyTimeout = d
		}
	}
}

// WithFirmwareConstraint rejects firmware whose version does not satisfy c.
func WithFirmwareConstraint(c *semver.Constraints) Option {
	return func(sm *StateMachine) {
		sm.constraint = c
	}
}

func WithBusyProbe(p BusyProbe) Option {
	return func(sm *StateMachine) {
		sm.busyProbes = append(sm.busyProbes, p)
	}
}

// WithAfterEnable registers a hook run after every successful bring-up.
func WithAfterEnable(h Hook) Option {
	return func(sm *StateMachine) {
		sm.afterEnable = append(sm.afterEnable, h)
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(sm *StateMachine) {
		sm.metrics = c
	}
}

func WithGlobalMode(m core.GlobalMode) Option {
	return func(sm *StateMachine) {
		sm.globalMode.Store(int32(m))
	}
}

func NewStateMachine(g *gate.Gate, transport hal.Transport, firmware hal.Firmware, reg *registry.Registry, opts ...Option) *StateMachine {
	sm := &StateMachine{
		gate:         g,
		transport:    transport,
		firmware:     firmware,
		registry:     reg,
		idle:         noopDisarmer{},
		readyTimeout: DefaultFirmwareReadyTimeout,
		logger:       logx.As(),
	}

	for _, opt := range opts {
		opt(sm)
	}

	sm.metrics.SetModuleState(core.StateUninitialized)
	return sm
}

// Bind supplies the collaborators that are themselves built on top of the state machine.
func (sm *StateMachine) Bind(vdevs *vdev.Manager, idle Disarmer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.vdevs = vdevs
	if idle != nil {
		sm.idle = idle
	}
}

func (sm *StateMachine) State() core.ModuleState {
	return core.ModuleState(sm.state.Load())
}

func (sm *StateMachine) GlobalMode() core.GlobalMode {
	return core.GlobalMode(sm.globalMode.Load())
}

// Firmware returns the image loaded by the last successful bring-up.
func (sm *StateMachine) Firmware() hal.Image {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.image
}

func (sm *StateMachine) setState(s core.ModuleState) {
	old := core.ModuleState(sm.state.Swap(int32(s)))
	if old != s {
		sm.logger.Info().Str("from", old.String()).Str("to", s.String()).Msg("Module state changed")
	}
	sm.metrics.SetModuleState(s)
}

// startTransition acquires the module transition and maps gate failures to driver errors.
func (sm *StateMachine) startTransition(ctx context.Context, desc string) (*gate.Txn, error) {
	txn, err := sm.gate.StartTransition(ctx, sm.gate.Module(), desc)
	if err == nil {
		return txn, nil
	}

	switch {
	case errorx.IsOfType(err, gate.Unloading):
		return nil, core.DriverUnloading.Wrap(err, "module %s refused", desc)
	case errorx.IsOfType(err, gate.Contention):
		return nil, core.GateContention.Wrap(err, "module %s did not start", desc)
	default:
		return nil, err
	}
}

// EnsureEnabled brings the module up unless it already is.
func (sm *StateMachine) EnsureEnabled(ctx context.Context) error {
	if sm.State() == core.StateEnabled {
		return nil
	}

	txn, err := sm.startTransition(ctx, "ensure-enabled")
	if err != nil {
		return err
	}
	defer txn.End()

	return sm.EnableLocked(ctx)
}

// EnableLocked brings the module up. The caller must hold the module transition.
func (sm *StateMachine) EnableLocked(ctx context.Context) error {
	if sm.State() == core.StateEnabled {
		return nil
	}

	sm.idle.Disarm()

	b := &bringUp{sm: sm, skipPowerOn: sm.powered, mode: sm.GlobalMode()}
	err := b.run(ctx)
	if !b.skipPowerOn {
		sm.powered = b.poweredOn
	}
	if err != nil {
		sm.setState(core.StateClosed)
		sm.metrics.ObserveBringUp(b.failedStage, err)
		return err
	}

	sm.mu.Lock()
	sm.image = b.image
	sm.mu.Unlock()

	sm.setState(core.StateEnabled)
	sm.metrics.ObserveBringUp("", nil)

	for _, hook := range sm.afterEnable {
		if herr := hook(ctx); herr != nil {
			sm.logger.Warn().Err(herr).Msg("After-enable hook failed")
		}
	}

	return nil
}

// EnsureClosed powers the module down.
func (sm *StateMachine) EnsureClosed(ctx context.Context, opts CloseOptions) error {
	txn, err := sm.startTransition(ctx, "ensure-closed")
	if err != nil {
		return err
	}
	defer txn.End()

	return sm.CloseLocked(ctx, opts)
}

// CloseLocked powers the module down. The caller must hold the module transition.
func (sm *StateMachine) CloseLocked(ctx context.Context, opts CloseOptions) error {
	logger := sm.logger.With().Str("reason", opts.Reason).Bool("recovery", opts.Recovery).Logger()

	if opts.Guard != nil {
		if err := opts.Guard(); err != nil {
			return err
		}
	}

	if sm.State() != core.StateEnabled {
		sm.idle.Disarm()
		if sm.powered && !opts.Recovery {
			// a restart after recovery failed and left the transport powered
			return sm.powerOffLocked(ctx, logger)
		}
		return nil
	}

	if !opts.Force && !opts.Recovery {
		if busy, why := sm.busy(); busy {
			return core.Busy.New("module cannot be closed: %s", why)
		}
	}

	sm.disableAdapters(ctx, opts)

	t := &teardown{sm: sm, recovery: opts.Recovery}
	err := t.run(ctx)
	if !opts.Recovery {
		sm.powered = false
	}

	sm.setState(core.StateClosed)
	sm.idle.Disarm()

	if err != nil {
		logger.Error().Err(err).Msg("Module closed with teardown errors")
		return err
	}

	logger.Info().Msg("Module closed")
	return nil
}

func (sm *StateMachine) powerOffLocked(ctx context.Context, logger zerolog.Logger) error {
	err := sm.transport.PowerOff(ctx)
	sm.powered = false
	if err != nil {
		err = erx.Ensure(err, core.FirmwareFailure, "power-off failed").WithProperty(core.PropertyStage, StagePowerOff)
		logger.Error().Err(err).Msg("Failed to power off transport of closed module")
		return err
	}

	logger.Info().Msg("Transport of closed module powered off")
	return nil
}

// Shutdown refuses every later transition and force-closes the module.
func (sm *StateMachine) Shutdown(ctx context.Context) error {
	txn, err := sm.startTransition(ctx, "shutdown")
	if err != nil {
		return err
	}
	defer txn.End()

	sm.gate.SetUnloading()
	return sm.CloseLocked(ctx, CloseOptions{Reason: "shutdown", Force: true})
}

// SetGlobalMode switches the driver mode. The caller must hold the module transition and
// the module must be closed.
func (sm *StateMachine) SetGlobalMode(m core.GlobalMode) error {
	if st := sm.State(); st == core.StateEnabled {
		return errorx.IllegalState.New("global mode cannot change while module is %s", st)
	}
	sm.globalMode.Store(int32(m))
	return nil
}

// StartTransition exposes the module transition to callers that chain several locked steps.
func (sm *StateMachine) StartTransition(ctx context.Context, desc string) (*gate.Txn, error) {
	return sm.startTransition(ctx, desc)
}

func (sm *StateMachine) busy() (bool, string) {
	for _, probe := range sm.busyProbes {
		if busy, why := probe(); busy {
			return true, why
		}
	}
	return false, ""
}

// disableAdapters releases every adapter resource. Adapters stay registered so that the
// next bring-up can re-create them.
func (sm *StateMachine) disableAdapters(ctx context.Context, opts CloseOptions) {
	if sm.vdevs == nil {
		return
	}

	for _, a := range sm.registry.Snapshot() {
		logger := sm.logger.With().Str("vdev_id", a.ID().String()).Logger()

		if err := sm.gate.WaitForDrain(ctx, a.Scope()); err != nil {
			logger.Warn().Err(err).Msg("Adapter did not drain before close")
		}

		if !opts.Recovery && a.Clear(core.FlagInterfaceOpened) {
			logger.Info().Msg("Interface stopped by module close")
		}

		var (
			res vdev.DestroyResult
			err error
		)
		if opts.Recovery {
			res, err = sm.vdevs.DestroyLocal(ctx, a)
		} else {
			res, err = sm.vdevs.Destroy(ctx, a)
		}
		if err != nil {
			logger.Error().Err(err).Msg("Adapter disable failed")
			continue
		}
		logger.Debug().Str("result", res.String()).Msg("Adapter disabled")
	}
}

type noopDisarmer struct{}

func (noopDisarmer) Disarm() {}
