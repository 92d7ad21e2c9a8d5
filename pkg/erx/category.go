// SPDX-License-Identifier: Apache-2.0

// Package erx holds the error categories shared by every layer of the driver.
//
// Categories are expressed as errorx traits so that any error type, in any namespace,
// can opt into a category at declaration time and callers can classify an error
// without knowing which package produced it.
package erx

import (
	"github.com/joomcode/errorx"
)

var (
	TraitTransient          = errorx.RegisterTrait("transient")
	TraitResourceExhaustion = errorx.RegisterTrait("resource_exhaustion")
	TraitFirmwareFault      = errorx.RegisterTrait("firmware_fault")
	TraitInvariant          = errorx.RegisterTrait("invariant_violation")
)

// Category is the caller-facing classification of a failure.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryTransient
	CategoryResourceExhaustion
	CategoryFirmwareFault
	CategoryInvariant
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryResourceExhaustion:
		return "resource-exhaustion"
	case CategoryFirmwareFault:
		return "firmware-fault"
	case CategoryInvariant:
		return "invariant-violation"
	default:
		return "unknown"
	}
}

// Retryable reports whether a caller may retry the request that produced the error.
func (c Category) Retryable() bool {
	return c == CategoryTransient
}

// Classify returns the category of err. Invariant violations win over every other trait.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	switch {
	case errorx.HasTrait(err, TraitInvariant):
		return CategoryInvariant
	case errorx.HasTrait(err, TraitFirmwareFault):
		return CategoryFirmwareFault
	case errorx.HasTrait(err, TraitResourceExhaustion):
		return CategoryResourceExhaustion
	case errorx.HasTrait(err, TraitTransient), errorx.HasTrait(err, errorx.Temporary()):
		return CategoryTransient
	default:
		return CategoryUnknown
	}
}

func IsTransient(err error) bool {
	return Classify(err) == CategoryTransient
}

func IsInvariant(err error) bool {
	return Classify(err) == CategoryInvariant
}

// Ensure decorates err when it already carries a category, otherwise wraps it with
// fallback so the failure is never reported as unknown. err must not be nil.
func Ensure(err error, fallback *errorx.Type, format string, args ...interface{}) *errorx.Error {
	if err == nil {
		return nil
	}

	if Classify(err) != CategoryUnknown {
		return errorx.Decorate(err, format, args...)
	}

	return fallback.Wrap(err, format, args...)
}
