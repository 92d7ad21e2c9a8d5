// SPDX-License-Identifier: Apache-2.0

package core

import (
	"strings"
)

// ModuleState is the power/firmware state of the radio subsystem.
type ModuleState int32

const (
	StateUninitialized ModuleState = iota
	StateClosed
	StateEnabled
)

func (s ModuleState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateClosed:
		return "closed"
	case StateEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// GlobalMode is the driver-wide operating mode. Changing it requires a full module restart.
type GlobalMode int32

const (
	GlobalModeMission GlobalMode = iota
	GlobalModeFTM
	GlobalModeMonitor
)

var globalModeNames = map[GlobalMode]string{
	GlobalModeMission: "mission",
	GlobalModeFTM:     "ftm",
	GlobalModeMonitor: "monitor",
}

func (m GlobalMode) String() string {
	if n, ok := globalModeNames[m]; ok {
		return n
	}
	return "unknown"
}

func ParseGlobalMode(s string) (GlobalMode, error) {
	for m, n := range globalModeNames {
		if strings.EqualFold(n, s) {
			return m, nil
		}
	}
	return 0, IllegalArgument.New("unknown global mode %q", s)
}
