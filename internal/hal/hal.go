// SPDX-License-Identifier: Apache-2.0

// Package hal declares the collaborators the control plane drives: the bus transport,
// the firmware, the protocol stack and the policy layer.
//
// Implementations must be safe for concurrent use. Calls may block; every blocking call
// receives a context, but the control plane bounds its own waits and does not rely on
// implementations honouring cancellation.
package hal

import (
	"context"

	"github.com/wlanhost/hostd/internal/core"
)

// Transport powers and opens the bus to the radio.
type Transport interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// ReadyFunc is invoked once the firmware has booted, or failed to.
type ReadyFunc func(err error)

// Image describes the firmware that was downloaded.
type Image struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// ResourceParams describes the firmware resource backing one adapter.
type ResourceParams struct {
	VdevID     core.VdevID
	Mode       core.Mode
	Address    core.MacAddress
	GlobalMode core.GlobalMode
}

type Firmware interface {
	// Download starts the firmware image. Readiness is reported through onReady, possibly
	// from another goroutine and possibly never.
	Download(ctx context.Context, mode core.GlobalMode, onReady ReadyFunc) (Image, error)
	Attach(ctx context.Context) error
	Detach(ctx context.Context) error
	Release(ctx context.Context) error
	CreateResource(ctx context.Context, params ResourceParams) (core.ResourceHandle, error)
	// DestroyResource requests destruction; the returned channel delivers the acknowledgement.
	DestroyResource(ctx context.Context, h core.ResourceHandle) (<-chan error, error)
}

type Protocol interface {
	NotifyCreated(ctx context.Context, id core.VdevID) error
	// NotifyDestroyBegin asks the protocol stack to stop using id. The channel is closed
	// once it has.
	NotifyDestroyBegin(ctx context.Context, id core.VdevID) <-chan struct{}
	SuspendInProgress() bool
}

type Policy interface {
	StartParams(ctx context.Context, info core.InterfaceInfo) (*core.StartParams, error)
}
