// SPDX-License-Identifier: Apache-2.0

// Package registry keeps the ordered set of adapters known to the driver.
//
// The registry mutex is a leaf lock: it is never held while calling out, so visitors
// and lookups always work on a snapshot.
package registry

import (
	"sync"

	"github.com/automa-saga/logx"
	"github.com/rs/zerolog"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/pkg/ledger"
)

const DefaultCapacity = 4

type Registry struct {
	mu       sync.Mutex
	adapters []*core.Adapter
	capacity int
	logger   *zerolog.Logger
}

type Option func(*Registry)

func WithLogger(logger *zerolog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 && n < int(core.InvalidVdevID) {
			r.capacity = n
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		capacity: DefaultCapacity,
		logger:   logx.As(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Registry) Capacity() int {
	return r.capacity
}

// InsertBack appends a to the registry and assigns it the lowest free vdev id.
func (r *Registry) InsertBack(a *core.Adapter) (core.VdevID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.adapters) >= r.capacity {
		return core.InvalidVdevID, core.MaxInterfaces.New("all %d interface slots are in use", r.capacity)
	}

	used := make(map[core.VdevID]bool, len(r.adapters))
	for _, other := range r.adapters {
		if other == a {
			return core.InvalidVdevID, core.IllegalArgument.New("adapter %s is already registered", other.Name())
		}
		if other.Address() == a.Address() {
			return core.InvalidVdevID, core.DuplicateAddress.New("hardware address %s is already used by %s", a.Address(), other.Name())
		}
		used[other.ID()] = true
	}

	id := core.VdevID(0)
	for used[id] {
		id++
	}

	a.AssignID(id)
	r.adapters = append(r.adapters, a)

	r.logger.Debug().
		Str("vdev_id", id.String()).
		Str("mode", a.Mode().String()).
		Str("address", a.Address().String()).
		Int("count", len(r.adapters)).
		Msg("Adapter registered")

	return id, nil
}

// Remove drops a from the registry and reports whether it was present.
func (r *Registry) Remove(a *core.Adapter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, other := range r.adapters {
		if other == a {
			r.adapters = append(r.adapters[:i], r.adapters[i+1:]...)
			r.logger.Debug().Str("vdev_id", a.ID().String()).Int("count", len(r.adapters)).Msg("Adapter unregistered")
			return true
		}
	}

	return false
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.adapters)
}

// Snapshot returns the adapters in insertion order.
func (r *Registry) Snapshot() []*core.Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*core.Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// ActiveCount returns how many adapters have their interface opened.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, a := range r.Snapshot() {
		if a.Has(core.FlagInterfaceOpened) {
			n++
		}
	}
	return n
}

// ForEachHeld visits every adapter while holding a ledger reference for reason.
// Adapters whose ledger is already closed are skipped. Iteration stops at the first
// visitor error, which is returned.
func (r *Registry) ForEachHeld(reason ledger.Reason, visit func(a *core.Adapter) error) error {
	for _, a := range r.Snapshot() {
		h, err := a.Ledger().Hold(reason)
		if err != nil {
			continue
		}

		err = visit(a)
		h.Release()
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Registry) ByID(id core.VdevID) (*core.Adapter, bool) {
	for _, a := range r.Snapshot() {
		if a.ID() == id {
			return a, true
		}
	}
	return nil, false
}

func (r *Registry) ByAddress(addr core.MacAddress) (*core.Adapter, bool) {
	for _, a := range r.Snapshot() {
		if a.Address() == addr {
			return a, true
		}
	}
	return nil, false
}

func (r *Registry) ByMode(mode core.Mode) []*core.Adapter {
	var out []*core.Adapter
	for _, a := range r.Snapshot() {
		if a.Mode() == mode {
			out = append(out, a)
		}
	}
	return out
}
