// SPDX-License-Identifier: Apache-2.0

// Package vdev creates and destroys the firmware resource backing each adapter.
//
// Destroy never gives up half way: it waits for the protocol stack and the firmware to
// acknowledge within one deadline, and when they do not, it clears the adapter's
// bookkeeping locally and escalates a forced recovery instead of retrying.
package vdev

import (
	"context"
	"time"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/hal"
	"github.com/wlanhost/hostd/internal/metrics"
	"github.com/wlanhost/hostd/internal/recovery"
	"github.com/wlanhost/hostd/pkg/erx"
)

const DefaultDestroyTimeout = 3 * time.Second

type DestroyResult int

const (
	Destroyed DestroyResult = iota
	AlreadyAbsent
	ForcedCleanup
)

func (r DestroyResult) String() string {
	switch r {
	case Destroyed:
		return "destroyed"
	case AlreadyAbsent:
		return "already-absent"
	case ForcedCleanup:
		return "forced-cleanup"
	default:
		return "unknown"
	}
}

// StateReader exposes the module state without giving access to transitions.
type StateReader interface {
	State() core.ModuleState
	GlobalMode() core.GlobalMode
}

// Escalator receives forced-recovery requests.
type Escalator interface {
	Escalate(ev recovery.Event)
}

// Peers lists the adapters currently registered.
type Peers interface {
	Snapshot() []*core.Adapter
}

type Manager struct {
	firmware       hal.Firmware
	protocol       hal.Protocol
	peers          Peers
	module         StateReader
	escalator      Escalator
	destroyTimeout time.Duration
	metrics        *metrics.Collector
	logger         *zerolog.Logger
}

type Option func(*Manager)

func WithLogger(logger *zerolog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithDestroyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.destroyTimeout = d
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

func NewManager(fw hal.Firmware, proto hal.Protocol, peers Peers, module StateReader, esc Escalator, opts ...Option) *Manager {
	m := &Manager{
		firmware:       fw,
		protocol:       proto,
		peers:          peers,
		module:         module,
		escalator:      esc,
		destroyTimeout: DefaultDestroyTimeout,
		logger:         logx.As(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Create allocates the firmware resource for a and announces it to the protocol stack.
// On failure the adapter is left without a resource.
func (m *Manager) Create(ctx context.Context, a *core.Adapter) error {
	logger := m.logger.With().Str("vdev_id", a.ID().String()).Str("mode", a.Mode().String()).Logger()

	if st := m.module.State(); st != core.StateEnabled {
		return core.ModuleClosed.New("cannot create %s while module is %s", a.Name(), st)
	}

	if a.Has(core.FlagResourceCreated) {
		return errorx.IllegalState.New("adapter %s already has a firmware resource", a.Name())
	}

	for _, other := range m.peers.Snapshot() {
		if other != a && other.Address() == a.Address() {
			return core.DuplicateAddress.New("hardware address %s is already used by %s", a.Address(), other.Name())
		}
	}

	params := hal.ResourceParams{
		VdevID:     a.ID(),
		Mode:       a.Mode(),
		Address:    a.Address(),
		GlobalMode: m.module.GlobalMode(),
	}

	h, err := m.firmware.CreateResource(ctx, params)
	if err != nil {
		return erx.Ensure(err, core.FirmwareFailure, "failed to create firmware resource for %s", a.Name()).
			WithProperty(core.PropertyVdevID, a.ID().String())
	}

	a.AttachResource(h)

	if err := m.protocol.NotifyCreated(ctx, a.ID()); err != nil {
		logger.Warn().Err(err).Msg("Protocol stack rejected new vdev, destroying resource")
		if _, derr := m.Destroy(ctx, a); derr != nil {
			logger.Error().Err(derr).Msg("Failed to destroy resource after protocol rejection")
		}
		return erx.Ensure(err, core.FirmwareFailure, "protocol stack rejected %s", a.Name())
	}

	logger.Info().Uint32("handle", uint32(h)).Msg("Vdev created")
	return nil
}

// Destroy tears down the firmware resource of a. It returns AlreadyAbsent when a has no
// resource. When acknowledgements do not arrive in time the result is ForcedCleanup and
// a forced recovery has been escalated; the adapter no longer owns a resource either way.
func (m *Manager) Destroy(ctx context.Context, a *core.Adapter) (DestroyResult, error) {
	return m.destroy(ctx, a, false)
}

// DestroyLocal clears a's resource without talking to the firmware. It is used while
// recovering from a firmware crash, when no acknowledgement can be expected.
func (m *Manager) DestroyLocal(ctx context.Context, a *core.Adapter) (DestroyResult, error) {
	return m.destroy(ctx, a, true)
}

func (m *Manager) destroy(ctx context.Context, a *core.Adapter, local bool) (DestroyResult, error) {
	start := time.Now()
	logger := m.logger.With().Str("vdev_id", a.ID().String()).Bool("local", local).Logger()

	h, ok := a.DetachResource()
	if !ok {
		logger.Debug().Msg("Vdev destroy requested but no resource is attached")
		return AlreadyAbsent, nil
	}

	if local {
		logger.Info().Msg("Vdev resource cleared locally")
		m.metrics.ObserveDestroy(ForcedCleanup.String(), time.Since(start))
		return ForcedCleanup, nil
	}

	deadline := time.NewTimer(m.destroyTimeout)
	defer deadline.Stop()

	select {
	case <-m.protocol.NotifyDestroyBegin(ctx, a.ID()):
	case <-deadline.C:
		return m.forceCleanup(a, start, core.DestroyTimeout.New("protocol stack did not release vdev %s within %s", a.ID(), m.destroyTimeout))
	}

	ack, err := m.firmware.DestroyResource(ctx, h)
	if err != nil {
		if erx.IsInvariant(err) {
			return ForcedCleanup, err
		}
		return m.forceCleanup(a, start, erx.Ensure(err, core.FirmwareFailure, "firmware refused to destroy vdev %s", a.ID()))
	}

	select {
	case err := <-ack:
		if err != nil {
			return m.forceCleanup(a, start, erx.Ensure(err, core.FirmwareFailure, "firmware failed to destroy vdev %s", a.ID()))
		}
	case <-deadline.C:
		return m.forceCleanup(a, start, core.DestroyTimeout.New("firmware did not acknowledge destroy of vdev %s within %s", a.ID(), m.destroyTimeout))
	}

	m.metrics.ObserveDestroy(Destroyed.String(), time.Since(start))
	logger.Info().Dur("took", time.Since(start)).Msg("Vdev destroyed")
	return Destroyed, nil
}

func (m *Manager) forceCleanup(a *core.Adapter, start time.Time, cause error) (DestroyResult, error) {
	m.metrics.ObserveDestroy(ForcedCleanup.String(), time.Since(start))

	m.escalator.Escalate(recovery.Event{
		Reason: "vdev destroy did not complete",
		VdevID: a.ID(),
		Err:    cause,
	})

	return ForcedCleanup, nil
}
