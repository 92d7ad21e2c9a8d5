// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"context"
	"time"

	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/hal"
)

func (d *Device) Download(ctx context.Context, mode core.GlobalMode, onReady hal.ReadyFunc) (hal.Image, error) {
	f := d.record("Download")
	if f.FailDownload {
		return hal.Image{}, core.FirmwareFailure.New("simulated image checksum mismatch")
	}

	d.mu.Lock()
	if !d.opened {
		d.mu.Unlock()
		return hal.Image{}, core.TransportUnavailable.New("firmware download without an open bus")
	}
	d.downloaded = true
	d.mu.Unlock()

	version := f.FirmwareVersion
	if version == "" {
		version = DefaultFirmwareVersion
	}
	img := hal.Image{Name: "sim-" + mode.String(), Version: version}

	if f.FirmwareNeverReady {
		return img, nil
	}

	go func() {
		if f.ReadyDelay > 0 {
			time.Sleep(f.ReadyDelay)
		}
		if f.FailReady {
			onReady(core.FirmwareFailure.New("simulated firmware crashed during boot"))
			return
		}
		onReady(nil)
	}()

	return img, nil
}

func (d *Device) Attach(ctx context.Context) error {
	if f := d.record("Attach"); f.FailAttach {
		return core.FirmwareFailure.New("simulated subsystem attach failure")
	}

	d.mu.Lock()
	d.attached = true
	d.mu.Unlock()
	return nil
}

func (d *Device) Detach(ctx context.Context) error {
	d.record("Detach")

	d.mu.Lock()
	d.attached = false
	d.mu.Unlock()
	return nil
}

func (d *Device) Release(ctx context.Context) error {
	d.record("Release")

	d.mu.Lock()
	d.downloaded = false
	d.mu.Unlock()
	return nil
}

func (d *Device) CreateResource(ctx context.Context, params hal.ResourceParams) (core.ResourceHandle, error) {
	if f := d.record("CreateResource"); f.FailCreate {
		return 0, core.FirmwareFailure.New("simulated resource create rejected for vdev %s", params.VdevID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached {
		return 0, core.FirmwareFailure.New("resource create while firmware is not attached")
	}

	h := d.nextHandle
	d.nextHandle++
	d.resources[h] = params
	return h, nil
}

func (d *Device) DestroyResource(ctx context.Context, h core.ResourceHandle) (<-chan error, error) {
	f := d.record("DestroyResource")

	d.mu.Lock()
	_, ok := d.resources[h]
	if ok {
		delete(d.resources, h)
	}
	d.mu.Unlock()

	if !ok {
		return nil, core.DoubleDestroy.New("resource handle %d is not live", h)
	}

	ack := make(chan error, 1)
	if f.DestroyNeverAcks {
		return ack, nil
	}

	go func() {
		if f.DestroyDelay > 0 {
			time.Sleep(f.DestroyDelay)
		}
		ack <- nil
	}()

	return ack, nil
}
