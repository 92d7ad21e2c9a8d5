// SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wlanhost/hostd/pkg/gate"
	"github.com/wlanhost/hostd/pkg/ledger"
)

// VdevID identifies an adapter's firmware resource slot.
type VdevID uint8

const InvalidVdevID VdevID = 0xff

func (id VdevID) String() string {
	if id == InvalidVdevID {
		return "invalid"
	}
	return fmt.Sprintf("%d", id)
}

// ResourceHandle is the firmware's opaque handle for a created resource.
type ResourceHandle uint32

type Flag uint32

const (
	FlagInterfaceOpened Flag = 1 << iota
	FlagResourceCreated
	FlagRemoved
)

// Ledger reasons used across the driver.
const (
	ReasonControl ledger.Reason = "control"
	ReasonStatus  ledger.Reason = "status"
	ReasonRecover ledger.Reason = "recover"
)

// StartParams is what the policy layer hands back when an interface is started.
type StartParams struct {
	Channel    uint32 `json:"channel" yaml:"channel"`
	Bandwidth  uint32 `json:"bandwidth" yaml:"bandwidth"`
	Concurrent bool   `json:"concurrent" yaml:"concurrent"`
}

// InterfaceInfo is a point-in-time view of an adapter.
type InterfaceInfo struct {
	ID              VdevID       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Mode            string       `json:"mode" yaml:"mode"`
	Address         string       `json:"address" yaml:"address"`
	Opened          bool         `json:"opened" yaml:"opened"`
	ResourceCreated bool         `json:"resourceCreated" yaml:"resourceCreated"`
	Params          *StartParams `json:"params,omitempty" yaml:"params,omitempty"`
}

// Adapter is one logical interface multiplexed on the radio.
type Adapter struct {
	id      VdevID
	mode    Mode
	addr    MacAddress
	flags   atomic.Uint32
	scope   *gate.Scope
	ledger  *ledger.Ledger
	created time.Time

	mu     sync.Mutex
	handle ResourceHandle
	params *StartParams
}

func NewAdapter(mode Mode, addr MacAddress, scope *gate.Scope, l *ledger.Ledger) *Adapter {
	return &Adapter{
		id:      InvalidVdevID,
		mode:    mode,
		addr:    addr,
		scope:   scope,
		ledger:  l,
		created: time.Now(),
	}
}

func (a *Adapter) ID() VdevID {
	return a.id
}

// AssignID is called by the registry while the adapter is inserted.
func (a *Adapter) AssignID(id VdevID) {
	a.id = id
}

func (a *Adapter) Mode() Mode {
	return a.mode
}

func (a *Adapter) Address() MacAddress {
	return a.addr
}

func (a *Adapter) Scope() *gate.Scope {
	return a.scope
}

func (a *Adapter) Ledger() *ledger.Ledger {
	return a.ledger
}

func (a *Adapter) Name() string {
	return fmt.Sprintf("%s%s", a.mode, a.id)
}

func (a *Adapter) Has(f Flag) bool {
	return Flag(a.flags.Load())&f != 0
}

func (a *Adapter) Set(f Flag) {
	for {
		old := a.flags.Load()
		if a.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

// Clear unsets f and reports whether it was set.
func (a *Adapter) Clear(f Flag) bool {
	for {
		old := a.flags.Load()
		if old&uint32(f) == 0 {
			return false
		}
		if a.flags.CompareAndSwap(old, old&^uint32(f)) {
			return true
		}
	}
}

// AttachResource records a created firmware resource.
func (a *Adapter) AttachResource(h ResourceHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.handle = h
	a.Set(FlagResourceCreated)
}

// DetachResource takes the resource away from the adapter. Only one caller gets ok=true
// per attached resource.
func (a *Adapter) DetachResource() (ResourceHandle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Clear(FlagResourceCreated) {
		return 0, false
	}

	h := a.handle
	a.handle = 0
	return h, true
}

func (a *Adapter) SetParams(p *StartParams) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.params = p
}

func (a *Adapter) Info() InterfaceInfo {
	a.mu.Lock()
	params := a.params
	a.mu.Unlock()

	return InterfaceInfo{
		ID:              a.id,
		Name:            a.Name(),
		Mode:            a.mode.String(),
		Address:         a.addr.String(),
		Opened:          a.Has(FlagInterfaceOpened),
		ResourceCreated: a.Has(FlagResourceCreated),
		Params:          params,
	}
}
