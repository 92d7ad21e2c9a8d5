// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"

	"github.com/joomcode/errorx"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/pkg/erx"
	"github.com/wlanhost/hostd/pkg/gate"
	"github.com/wlanhost/hostd/pkg/ledger"
)

// moduleOp brings the module up if needed and returns a module operation taken while it
// is enabled. The idle timer may close the module between the two steps, so the pair is
// retried a few times.
func (d *Driver) moduleOp(ctx context.Context, desc string) (*gate.Txn, error) {
	for attempt := 1; attempt <= maxModuleAttempts; attempt++ {
		if err := d.BringUp(ctx); err != nil {
			return nil, err
		}

		op, err := d.startOperation(ctx, d.gate.Module(), desc)
		if err != nil {
			return nil, err
		}
		if d.module.State() == core.StateEnabled {
			return op, nil
		}

		op.End()
		d.logger.Debug().Int("attempt", attempt).Str("op", desc).Msg("Module closed before operation was admitted, retrying")
	}

	return nil, core.ModuleClosed.New("module kept closing while admitting %s", desc)
}

func (d *Driver) startOperation(ctx context.Context, s *gate.Scope, desc string) (*gate.Txn, error) {
	txn, err := d.gate.StartOperation(ctx, s, desc)
	return txn, d.gateError(err, s, desc)
}

func (d *Driver) startTransition(ctx context.Context, s *gate.Scope, desc string) (*gate.Txn, error) {
	txn, err := d.gate.StartTransition(ctx, s, desc)
	return txn, d.gateError(err, s, desc)
}

func (d *Driver) gateError(err error, s *gate.Scope, desc string) error {
	switch {
	case err == nil:
		return nil
	case errorx.IsOfType(err, gate.Unloading):
		return core.DriverUnloading.Wrap(err, "%s on %s refused", desc, s.Name())
	case errorx.IsOfType(err, gate.Contention):
		return core.GateContention.Wrap(err, "%s on %s did not start", desc, s.Name())
	case errorx.IsOfType(err, gate.ScopeRemoved):
		return core.NotFound.Wrap(err, "%s is gone", s.Name())
	default:
		return err
	}
}

func (d *Driver) lookup(id core.VdevID) (*core.Adapter, error) {
	a, ok := d.registry.ByID(id)
	if !ok {
		return nil, core.NotFound.New("no interface with vdev id %s", id)
	}
	return a, nil
}

// AddInterface registers an adapter and creates its firmware resource. On failure the
// adapter is not registered.
func (d *Driver) AddInterface(ctx context.Context, mode core.Mode, address string) (core.VdevID, error) {
	if err := d.admit(); err != nil {
		return core.InvalidVdevID, err
	}

	addr, err := core.ParseMacAddress(address)
	if err != nil {
		return core.InvalidVdevID, err
	}

	op, err := d.moduleOp(ctx, "add-interface")
	if err != nil {
		return core.InvalidVdevID, err
	}
	defer op.End()

	scope := d.gate.NewScope("vdev-" + addr.String())
	l := ledger.New(addr.String(), ledger.WithRetryPolicy(d.cfg.Ledger.LeakRetries, d.cfg.Ledger.LeakRetryDelay))
	a := core.NewAdapter(mode, addr, scope, l)

	txn, err := d.startTransition(ctx, scope, "create")
	if err != nil {
		d.discard(ctx, a)
		return core.InvalidVdevID, err
	}

	id, err := d.registry.InsertBack(a)
	if err != nil {
		txn.End()
		d.discard(ctx, a)
		return core.InvalidVdevID, err
	}

	if err := d.withHold(a, core.ReasonControl, func() error { return d.vdevs.Create(ctx, a) }); err != nil {
		d.registry.Remove(a)
		txn.End()
		d.discard(ctx, a)
		return core.InvalidVdevID, errorx.Decorate(err, "failed to add %s interface %s", mode, addr)
	}

	txn.End()
	d.refreshIdle()

	d.logger.Info().Str("vdev_id", id.String()).Str("mode", mode.String()).Str("address", addr.String()).Msg("Interface added")
	return id, nil
}

// discard drops the gate scope and ledger of an adapter that never made it into service.
func (d *Driver) discard(ctx context.Context, a *core.Adapter) {
	d.gate.RemoveScope(a.Scope())
	if err := a.Ledger().Close(ctx); err != nil {
		d.logger.Warn().Err(err).Str("adapter", a.Ledger().Name()).Msg("Discarded adapter still referenced")
	}
}

// RemoveInterface destroys the firmware resource of id and unregisters it.
func (d *Driver) RemoveInterface(ctx context.Context, id core.VdevID) error {
	if d.detached.Load() {
		return core.DriverUnloading.New("driver is detaching")
	}

	op, err := d.startOperation(ctx, d.gate.Module(), "remove-interface")
	if err != nil {
		return err
	}

	a, err := d.lookup(id)
	if err != nil {
		op.End()
		return err
	}

	txn, err := d.startTransition(ctx, a.Scope(), "destroy")
	if err != nil {
		op.End()
		return err
	}

	if a.Has(core.FlagRemoved) {
		txn.End()
		op.End()
		return core.NotFound.New("interface %s is already removed", a.Name())
	}

	var res string
	err = d.withHold(a, core.ReasonControl, func() error {
		if a.Clear(core.FlagInterfaceOpened) {
			d.logger.Info().Str("vdev_id", id.String()).Msg("Interface stopped for removal")
		}
		r, derr := d.vdevs.Destroy(ctx, a)
		res = r.String()
		return derr
	})

	a.Set(core.FlagRemoved)
	d.registry.Remove(a)
	txn.End()
	op.End()

	if werr := d.gate.WaitForDrain(ctx, a.Scope()); werr != nil {
		d.logger.Warn().Err(werr).Str("vdev_id", id.String()).Msg("Removed interface did not drain")
	}
	d.gate.RemoveScope(a.Scope())
	d.retire(ctx, a)
	d.refreshIdle()

	if err != nil {
		return errorx.Decorate(err, "failed to remove interface %s", id)
	}

	d.logger.Info().Str("vdev_id", id.String()).Str("result", res).Msg("Interface removed")
	return nil
}

// retire closes the ledger of an unregistered adapter. Outstanding holds are a defect in
// whoever took them.
func (d *Driver) retire(ctx context.Context, a *core.Adapter) {
	err := a.Ledger().Close(ctx)
	if err == nil {
		return
	}

	d.metrics.IncReferenceLeak()
	if d.cfg.Ledger.FatalOnLeak && errorx.IsOfType(err, ledger.ReferenceLeak) {
		erx.MarkFatal(d.logger, "adapter retired with outstanding references")
		panic(err)
	}
	d.logger.Error().Err(err).Str("vdev_id", a.ID().String()).Msg("Adapter retired with outstanding references")
}

func (d *Driver) withHold(a *core.Adapter, reason ledger.Reason, fn func() error) error {
	h, err := a.Ledger().Hold(reason)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn()
}

// StartInterface opens id for traffic. A module closed by the idle timer is brought back
// up first, which re-creates the resources of registered adapters.
func (d *Driver) StartInterface(ctx context.Context, id core.VdevID) error {
	if err := d.admit(); err != nil {
		return err
	}

	op, err := d.moduleOp(ctx, "start-interface")
	if err != nil {
		return err
	}
	defer op.End()

	a, err := d.lookup(id)
	if err != nil {
		return err
	}

	aop, err := d.startOperation(ctx, a.Scope(), "start")
	if err != nil {
		return err
	}
	defer aop.End()

	return d.withHold(a, core.ReasonControl, func() error {
		if a.Has(core.FlagRemoved) {
			return core.NotFound.New("interface %s is being removed", a.Name())
		}
		if !a.Has(core.FlagResourceCreated) {
			return core.ModuleClosed.New("interface %s has no firmware resource", a.Name())
		}

		params, err := d.deps.Policy.StartParams(ctx, a.Info())
		if err != nil {
			return erx.Ensure(err, core.IllegalArgument, "policy refused to start %s", a.Name()).
				WithProperty(core.PropertyVdevID, id.String())
		}
		a.SetParams(params)

		d.idle.NotifyActive()
		a.Set(core.FlagInterfaceOpened)
		d.refreshIdle()

		d.logger.Info().Str("vdev_id", id.String()).Uint32("channel", params.Channel).Msg("Interface started")
		return nil
	})
}

// StopInterface marks id closed. The module is powered down by the idle timer once no
// interface is open.
func (d *Driver) StopInterface(ctx context.Context, id core.VdevID) error {
	a, err := d.lookup(id)
	if err != nil {
		return err
	}

	op, err := d.startOperation(ctx, a.Scope(), "stop")
	if err != nil {
		return err
	}

	stopped := a.Clear(core.FlagInterfaceOpened)
	op.End()

	if stopped {
		d.logger.Info().Str("vdev_id", id.String()).Msg("Interface stopped")
	}
	d.refreshIdle()
	return nil
}

// Interfaces describes every registered adapter.
func (d *Driver) Interfaces() []core.InterfaceInfo {
	var out []core.InterfaceInfo
	_ = d.registry.ForEachHeld(core.ReasonStatus, func(a *core.Adapter) error {
		out = append(out, a.Info())
		return nil
	})
	return out
}
