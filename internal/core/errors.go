// SPDX-License-Identifier: Apache-2.0

package core

import (
	"github.com/joomcode/errorx"
	"github.com/wlanhost/hostd/pkg/erx"
)

var (
	ErrNamespace = errorx.NewNamespace("wlan")

	// transient: the caller may retry
	Busy                 = ErrNamespace.NewType("busy", erx.TraitTransient, errorx.Temporary())
	GateContention       = ErrNamespace.NewType("gate_contention", erx.TraitTransient, errorx.Temporary())
	TransportUnavailable = ErrNamespace.NewType("transport_unavailable", erx.TraitTransient, errorx.Temporary())
	ModuleClosed         = ErrNamespace.NewType("module_closed", erx.TraitTransient, errorx.Temporary())
	RecoveryPending      = ErrNamespace.NewType("recovery_pending", erx.TraitTransient, errorx.Temporary())
	IdleAborted          = ErrNamespace.NewType("idle_aborted", erx.TraitTransient, errorx.Temporary())

	// resource exhaustion
	MaxInterfaces    = ErrNamespace.NewType("max_interfaces", erx.TraitResourceExhaustion)
	DuplicateAddress = ErrNamespace.NewType("duplicate_address", erx.TraitResourceExhaustion, errorx.Duplicate())

	// firmware or transport fault
	PowerOnFailed   = ErrNamespace.NewType("power_on_failed", erx.TraitFirmwareFault)
	FirmwareTimeout = ErrNamespace.NewType("firmware_timeout", erx.TraitFirmwareFault, errorx.Timeout())
	FirmwareFailure = ErrNamespace.NewType("firmware_failure", erx.TraitFirmwareFault)
	DestroyTimeout  = ErrNamespace.NewType("destroy_timeout", erx.TraitFirmwareFault, errorx.Timeout())

	// invariant violations are programming errors
	DoubleDestroy = ErrNamespace.NewType("double_destroy", erx.TraitInvariant)

	DriverUnloading = ErrNamespace.NewType("driver_unloading")
	NotFound        = ErrNamespace.NewType("not_found", errorx.NotFound())
	IllegalArgument = ErrNamespace.NewType("illegal_argument")

	PropertyStage  = errorx.RegisterPrintableProperty("stage")
	PropertyVdevID = errorx.RegisterPrintableProperty("vdev_id")
)

// Classify maps err to its caller-facing category.
func Classify(err error) erx.Category {
	return erx.Classify(err)
}

// StageOf returns the bring-up stage recorded on err, if any.
func StageOf(err error) (string, bool) {
	v, ok := errorx.ExtractProperty(err, PropertyStage)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
