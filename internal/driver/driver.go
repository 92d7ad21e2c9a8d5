// SPDX-License-Identifier: Apache-2.0

// Package driver holds the process-wide context of one attached radio and exposes the
// control surface: bring-up, shut-down and per-interface add, remove, start and stop.
//
// Every entry point enters the gate before touching shared state. Module-wide changes
// hold the module transition; interface changes hold a module operation plus the
// transition of the adapter they change.
package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/automa-saga/logx"
	"github.com/gofrs/flock"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
	"github.com/wlanhost/hostd/internal/config"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/hal"
	"github.com/wlanhost/hostd/internal/idle"
	"github.com/wlanhost/hostd/internal/metrics"
	"github.com/wlanhost/hostd/internal/module"
	"github.com/wlanhost/hostd/internal/recovery"
	"github.com/wlanhost/hostd/internal/registry"
	"github.com/wlanhost/hostd/internal/vdev"
	"github.com/wlanhost/hostd/pkg/gate"
	"golang.org/x/sync/singleflight"
)

// maxModuleAttempts bounds how often an interface request re-enables a module that was
// closed again between bring-up and admission.
const maxModuleAttempts = 3

const lockRetryDelay = 100 * time.Millisecond

// Deps are the collaborators a driver controls.
type Deps struct {
	Transport hal.Transport
	Firmware  hal.Firmware
	Protocol  hal.Protocol
	Policy    hal.Policy
}

func (d Deps) validate() error {
	if d.Transport == nil || d.Firmware == nil || d.Protocol == nil || d.Policy == nil {
		return errorx.IllegalArgument.New("driver requires transport, firmware, protocol and policy")
	}
	return nil
}

type Driver struct {
	cfg    config.Config
	deps   Deps
	logger *zerolog.Logger

	gate     *gate.Gate
	registry *registry.Registry
	notifier *recovery.Notifier
	module   *module.StateMachine
	vdevs    *vdev.Manager
	idle     *idle.Timer
	metrics  *metrics.Collector
	lock     *flock.Flock

	sf         singleflight.Group
	traceUsers atomic.Int32
	suspended  atomic.Bool

	detachOnce sync.Once
	detached   atomic.Bool
}

type Option func(*Driver)

func WithLogger(logger *zerolog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(d *Driver) {
		d.metrics = c
	}
}

// Attach builds the driver context. When cfg.Driver.LockFile is set, the lock is held
// until Detach so that a second context cannot drive the same radio.
func Attach(ctx context.Context, cfg config.Config, deps Deps, opts ...Option) (*Driver, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:    cfg,
		deps:   deps,
		logger: logx.As(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.acquireLock(ctx); err != nil {
		return nil, err
	}

	constraint, err := cfg.Module.Constraint()
	if err != nil {
		d.releaseLock()
		return nil, err
	}

	globalMode, err := core.ParseGlobalMode(cfg.Module.GlobalMode)
	if err != nil {
		d.releaseLock()
		return nil, err
	}

	d.gate = gate.New(
		gate.WithLogger(d.logger),
		gate.WithObserver(func(kind gate.Kind, s *gate.Scope, waited time.Duration) {
			d.metrics.ObserveTransaction(s.Name(), kind.String(), waited)
		}),
	)

	d.registry = registry.New(
		registry.WithLogger(d.logger),
		registry.WithCapacity(cfg.Module.MaxInterfaces),
	)

	d.notifier = recovery.New(
		recovery.WithLogger(d.logger),
		recovery.WithObserver(func(recovery.Event) { d.metrics.IncForcedRecovery() }),
	)

	d.module = module.NewStateMachine(d.gate, deps.Transport, deps.Firmware, d.registry,
		module.WithLogger(d.logger),
		module.WithMetrics(d.metrics),
		module.WithGlobalMode(globalMode),
		module.WithFirmwareReadyTimeout(cfg.Module.FirmwareReadyTimeout),
		module.WithFirmwareConstraint(constraint),
		module.WithBusyProbe(func() (bool, string) {
			if n := d.traceUsers.Load(); n > 0 {
				return true, fmt.Sprintf("%d debug trace users", n)
			}
			return false, ""
		}),
		module.WithBusyProbe(func() (bool, string) {
			if deps.Protocol.SuspendInProgress() {
				return true, "protocol suspend in progress"
			}
			return false, ""
		}),
		module.WithAfterEnable(d.restoreResources),
	)

	d.vdevs = vdev.NewManager(deps.Firmware, deps.Protocol, d.registry, d.module, d.notifier,
		vdev.WithLogger(d.logger),
		vdev.WithMetrics(d.metrics),
		vdev.WithDestroyTimeout(cfg.Vdev.DestroyTimeout),
	)

	d.idle = idle.New(cfg.Module.IdleShutdownInterval, d.idleShutdown,
		idle.WithLogger(d.logger),
		idle.WithMaxBusyDeferrals(cfg.Module.MaxBusyDeferrals),
		idle.WithEligibility(func() bool {
			return d.registry.ActiveCount() == 0 && d.module.State() == core.StateEnabled
		}),
		idle.WithSuspendProbe(d.suspended.Load),
		idle.WithObserver(d.metrics.ObserveIdleShutdown),
	)

	d.module.Bind(d.vdevs, d.idle)

	d.logger.Info().
		Str("global_mode", globalMode.String()).
		Int("max_interfaces", d.registry.Capacity()).
		Dur("idle_interval", cfg.Module.IdleShutdownInterval).
		Msg("Driver attached")

	return d, nil
}

func (d *Driver) acquireLock(ctx context.Context) error {
	path := d.cfg.Driver.LockFile
	if path == "" {
		return nil
	}

	lockCtx := ctx
	if d.cfg.Driver.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, d.cfg.Driver.LockTimeout)
		defer cancel()
	}

	fileLock := flock.New(path)
	locked, err := fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return errorx.IllegalState.Wrap(err, "failed to acquire driver lock %q", path)
	}
	if !locked {
		return errorx.IllegalState.New("driver lock %q is held by another process", path)
	}

	d.lock = fileLock
	return nil
}

func (d *Driver) releaseLock() {
	if d.lock == nil {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn().Err(err).Str("lock_file", d.lock.Path()).Msg("Failed to release driver lock")
	}
	d.lock = nil
}

// Notifier exposes forced-recovery events to a supervisor.
func (d *Driver) Notifier() *recovery.Notifier {
	return d.notifier
}

func (d *Driver) State() core.ModuleState {
	return d.module.State()
}

func (d *Driver) GlobalMode() core.GlobalMode {
	return d.module.GlobalMode()
}

func (d *Driver) Firmware() hal.Image {
	return d.module.Firmware()
}

// IdleArmed reports whether an idle power-down is pending.
func (d *Driver) IdleArmed() bool {
	return d.idle.Armed()
}

func (d *Driver) admit() error {
	if d.detached.Load() || d.gate.IsUnloading() {
		return core.DriverUnloading.New("driver is detaching")
	}
	if d.notifier.Pending() {
		return core.RecoveryPending.New("forced recovery is pending")
	}
	return nil
}

// refreshIdle arms the idle timer when nothing is active and keeps the gauges current.
func (d *Driver) refreshIdle() {
	active := d.registry.ActiveCount()
	d.metrics.SetAdapters(d.registry.Len(), active)

	if active > 0 {
		d.idle.NotifyActive()
		return
	}
	d.idle.NotifyIdle()
}
