// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"context"

	"github.com/wlanhost/hostd/internal/core"
)

func (d *Device) NotifyCreated(ctx context.Context, id core.VdevID) error {
	if f := d.record("NotifyCreated"); f.FailNotifyCreated {
		return core.FirmwareFailure.New("simulated protocol stack rejected vdev %s", id)
	}
	return nil
}

func (d *Device) NotifyDestroyBegin(ctx context.Context, id core.VdevID) <-chan struct{} {
	f := d.record("NotifyDestroyBegin")

	done := make(chan struct{})
	if !f.ProtocolNeverAcks {
		close(done)
	}
	return done
}

func (d *Device) SuspendInProgress() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.faults.SuspendInProgress
}

func (d *Device) StartParams(ctx context.Context, info core.InterfaceInfo) (*core.StartParams, error) {
	if f := d.record("StartParams"); f.FailPolicy {
		return nil, core.Busy.New("simulated policy rejected %s: concurrency limit", info.Name)
	}

	p := &core.StartParams{Channel: 6, Bandwidth: 20}
	if info.Mode == core.ModeAccessPoint.String() || info.Mode == core.ModeP2PGo.String() {
		p.Channel = 36
		p.Bandwidth = 80
	}
	return p, nil
}
