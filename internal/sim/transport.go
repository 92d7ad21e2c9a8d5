// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"context"

	"github.com/wlanhost/hostd/internal/core"
)

func (d *Device) PowerOn(ctx context.Context) error {
	if f := d.record("PowerOn"); f.FailPowerOn {
		return core.PowerOnFailed.New("simulated power rail fault")
	}

	d.mu.Lock()
	d.powered = true
	d.mu.Unlock()
	d.logger.Debug().Msg("Simulated radio powered on")
	return nil
}

func (d *Device) PowerOff(ctx context.Context) error {
	d.record("PowerOff")

	d.mu.Lock()
	d.powered = false
	d.mu.Unlock()
	d.logger.Debug().Msg("Simulated radio powered off")
	return nil
}

func (d *Device) Open(ctx context.Context) error {
	if f := d.record("Open"); f.FailOpen {
		return core.TransportUnavailable.New("simulated bus did not enumerate")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.powered {
		return core.TransportUnavailable.New("bus opened while radio is powered off")
	}
	d.opened = true
	return nil
}

func (d *Device) Close(ctx context.Context) error {
	d.record("Close")

	d.mu.Lock()
	d.opened = false
	d.mu.Unlock()
	return nil
}
