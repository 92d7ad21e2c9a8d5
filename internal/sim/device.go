// SPDX-License-Identifier: Apache-2.0

// Package sim provides an in-memory radio that satisfies every hal collaborator.
// Faults and latencies can be injected to exercise failure paths without hardware.
package sim

import (
	"sync"
	"time"

	"github.com/automa-saga/logx"
	"github.com/rs/zerolog"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/hal"
)

const DefaultFirmwareVersion = "3.2.1"

// Faults selects which collaborator calls misbehave.
type Faults struct {
	FailPowerOn        bool          `yaml:"failPowerOn" toml:"failPowerOn"`
	FailOpen           bool          `yaml:"failOpen" toml:"failOpen"`
	FailDownload       bool          `yaml:"failDownload" toml:"failDownload"`
	FirmwareNeverReady bool          `yaml:"firmwareNeverReady" toml:"firmwareNeverReady"`
	FailReady          bool          `yaml:"failReady" toml:"failReady"`
	FailAttach         bool          `yaml:"failAttach" toml:"failAttach"`
	FailCreate         bool          `yaml:"failCreate" toml:"failCreate"`
	FailNotifyCreated  bool          `yaml:"failNotifyCreated" toml:"failNotifyCreated"`
	DestroyNeverAcks   bool          `yaml:"destroyNeverAcks" toml:"destroyNeverAcks"`
	ProtocolNeverAcks  bool          `yaml:"protocolNeverAcks" toml:"protocolNeverAcks"`
	FailPolicy         bool          `yaml:"failPolicy" toml:"failPolicy"`
	SuspendInProgress  bool          `yaml:"suspendInProgress" toml:"suspendInProgress"`
	FirmwareVersion    string        `yaml:"firmwareVersion" toml:"firmwareVersion"`
	ReadyDelay         time.Duration `yaml:"readyDelay" toml:"readyDelay"`
	DestroyDelay       time.Duration `yaml:"destroyDelay" toml:"destroyDelay"`
}

// Device is a simulated radio. It implements hal.Transport, hal.Firmware, hal.Protocol
// and hal.Policy.
type Device struct {
	mu         sync.Mutex
	faults     Faults
	powered    bool
	opened     bool
	downloaded bool
	attached   bool
	nextHandle core.ResourceHandle
	resources  map[core.ResourceHandle]hal.ResourceParams
	calls      map[string]int
	logger     *zerolog.Logger
}

type Option func(*Device)

func WithLogger(logger *zerolog.Logger) Option {
	return func(d *Device) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithFaults(f Faults) Option {
	return func(d *Device) {
		d.faults = f
	}
}

func New(opts ...Option) *Device {
	d := &Device{
		nextHandle: 1,
		resources:  make(map[core.ResourceHandle]hal.ResourceParams),
		calls:      make(map[string]int),
		logger:     logx.As(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Inject changes the active faults.
func (d *Device) Inject(fn func(f *Faults)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.faults)
}

// Calls returns how many times the named collaborator method was invoked.
func (d *Device) Calls(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// Resources returns the number of live firmware resources.
func (d *Device) Resources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.resources)
}

func (d *Device) Powered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powered
}

func (d *Device) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Loaded reports whether firmware is downloaded or attached.
func (d *Device) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloaded || d.attached
}

func (d *Device) record(method string) Faults {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[method]++
	return d.faults
}

var (
	_ hal.Transport = (*Device)(nil)
	_ hal.Firmware  = (*Device)(nil)
	_ hal.Protocol  = (*Device)(nil)
	_ hal.Policy    = (*Device)(nil)
)
