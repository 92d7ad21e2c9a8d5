// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"sync"

	"github.com/joomcode/errorx"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/module"
)

// BringUp enables the module. Concurrent callers share a single bring-up and its result;
// a caller whose ctx ends stops waiting without cancelling the bring-up.
func (d *Driver) BringUp(ctx context.Context) error {
	if d.detached.Load() {
		return core.DriverUnloading.New("driver is detaching")
	}
	if d.module.State() == core.StateEnabled {
		return nil
	}

	ch := d.sf.DoChan("bring-up", func() (interface{}, error) {
		return nil, d.module.EnsureEnabled(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			d.logger.Debug().Msg("Joined an in-flight bring-up")
		}
		if res.Err != nil {
			return res.Err
		}
	case <-ctx.Done():
		return core.GateContention.Wrap(ctx.Err(), "gave up waiting for module bring-up")
	}

	d.refreshIdle()
	return nil
}

// ShutDown powers the module down. It fails with a busy error while debug tracing or a
// protocol suspend is in progress.
func (d *Driver) ShutDown(ctx context.Context) error {
	err := d.module.EnsureClosed(ctx, module.CloseOptions{Reason: "shut-down"})
	d.refreshIdle()
	return err
}

func (d *Driver) idleShutdown(ctx context.Context) error {
	return d.module.EnsureClosed(ctx, module.CloseOptions{
		Reason: "idle",
		Guard: func() error {
			if n := d.registry.ActiveCount(); n > 0 {
				return core.IdleAborted.New("%d interfaces became active", n)
			}
			return nil
		},
	})
}

// restoreResources re-creates the firmware resources of registered adapters after the
// module came back up. It runs under the module transition, which already excludes every
// adapter transaction.
func (d *Driver) restoreResources(ctx context.Context) error {
	var errs []error
	for _, a := range d.registry.Snapshot() {
		if a.Has(core.FlagRemoved) || a.Has(core.FlagResourceCreated) {
			continue
		}

		err := d.withHold(a, core.ReasonRecover, func() error { return d.vdevs.Create(ctx, a) })
		if err != nil {
			a.Clear(core.FlagInterfaceOpened)
			errs = append(errs, err)
			continue
		}
		d.logger.Info().Str("vdev_id", a.ID().String()).Msg("Interface resource restored")
	}

	if len(errs) > 0 {
		return errorx.DecorateMany("failed to restore interface resources", errs...)
	}
	return nil
}

// Suspend defers idle power-down until Resume.
func (d *Driver) Suspend() {
	if d.suspended.CompareAndSwap(false, true) {
		d.logger.Info().Msg("System suspend started")
	}
}

func (d *Driver) Resume() {
	if d.suspended.CompareAndSwap(true, false) {
		d.logger.Info().Msg("System resumed")
	}
	d.refreshIdle()
}

// Recover restarts the firmware after a forced recovery was escalated. The transport
// stays powered and adapter resources are cleared locally, then re-created.
func (d *Driver) Recover(ctx context.Context) error {
	if d.detached.Load() {
		return core.DriverUnloading.New("driver is detaching")
	}

	txn, err := d.module.StartTransition(ctx, "recover")
	if err != nil {
		return err
	}
	defer txn.End()

	if err := d.module.CloseLocked(ctx, module.CloseOptions{Reason: "recovery", Recovery: true}); err != nil {
		d.logger.Warn().Err(err).Msg("Recovery close reported errors")
	}

	d.notifier.Resolve()

	if err := d.module.EnableLocked(ctx); err != nil {
		return errorx.Decorate(err, "recovery restart failed")
	}

	d.refreshIdle()
	return nil
}

// ChangeMode switches the global driver mode. The module is closed regardless of open
// interfaces and brought back up in the new mode.
func (d *Driver) ChangeMode(ctx context.Context, mode core.GlobalMode) error {
	if err := d.admit(); err != nil {
		return err
	}

	txn, err := d.module.StartTransition(ctx, "change-mode")
	if err != nil {
		return err
	}
	defer txn.End()

	from := d.module.GlobalMode()
	if from == mode {
		return nil
	}

	if err := d.module.CloseLocked(ctx, module.CloseOptions{Reason: "mode-change", Force: true}); err != nil {
		d.logger.Warn().Err(err).Msg("Mode change close reported errors")
	}

	if err := d.module.SetGlobalMode(mode); err != nil {
		return err
	}

	if err := d.module.EnableLocked(ctx); err != nil {
		return errorx.Decorate(err, "failed to enable module in %s mode", mode)
	}

	d.logger.Info().Str("from", from.String()).Str("to", mode.String()).Msg("Global mode changed")
	d.refreshIdle()
	return nil
}

// AcquireTrace registers a debug-trace user. The module refuses voluntary power-down until
// the returned release function is called.
func (d *Driver) AcquireTrace() func() {
	d.traceUsers.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			d.traceUsers.Add(-1)
		})
	}
}

// Detach shuts the module down for good and releases every adapter. Later calls do
// nothing.
func (d *Driver) Detach(ctx context.Context) error {
	var err error
	d.detachOnce.Do(func() {
		d.detached.Store(true)
		d.idle.Stop()

		err = d.module.Shutdown(ctx)

		for _, a := range d.registry.Snapshot() {
			a.Set(core.FlagRemoved)
			d.registry.Remove(a)
			d.gate.RemoveScope(a.Scope())
			d.retire(ctx, a)
		}
		d.metrics.SetAdapters(0, 0)

		d.releaseLock()
		d.logger.Info().Msg("Driver detached")
	})
	return err
}
