// SPDX-License-Identifier: Apache-2.0

// Package exit defines the process exit codes of hostd, following sysexits(3) where one
// fits.
package exit

import (
	"os"
	"strconv"

	"github.com/joomcode/errorx"
	"github.com/wlanhost/hostd/pkg/erx"
)

type Code int

func (ec Code) String() string {
	return strconv.Itoa(int(ec))
}

func (ec Code) Int() int {
	return int(ec)
}

func (ec Code) TerminateProcess() {
	os.Exit(int(ec))
}

const (
	NormalTermination  Code = 0
	GeneralError       Code = 1
	UsageError         Code = 64
	DataFormatError    Code = 65
	ServiceUnavailable Code = 69
	InternalError      Code = 70
	TemporaryFailure   Code = 75
	ConfigurationError Code = 78

	// ResourceExhausted is hostd specific: no interface slot or address was available.
	ResourceExhausted Code = 100
)

// ForError picks the exit code a CLI failure terminates with.
func ForError(err error) Code {
	if err == nil {
		return NormalTermination
	}

	switch {
	case errorx.IsOfType(err, errorx.IllegalArgument):
		return UsageError
	case errorx.IsOfType(err, errorx.IllegalFormat):
		return DataFormatError
	}

	switch erx.Classify(err) {
	case erx.CategoryTransient:
		return TemporaryFailure
	case erx.CategoryResourceExhaustion:
		return ResourceExhausted
	case erx.CategoryFirmwareFault:
		return ServiceUnavailable
	case erx.CategoryInvariant:
		return InternalError
	default:
		return GeneralError
	}
}
