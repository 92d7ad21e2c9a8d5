// SPDX-License-Identifier: Apache-2.0

package core

import (
	"net"
	"strings"

	"github.com/joomcode/errorx"
)

// Mode is the role an adapter plays on the air.
type Mode int

const (
	ModeStation Mode = iota
	ModeAccessPoint
	ModeP2PClient
	ModeP2PGo
	ModeMonitor
	ModeNAN
	ModeOCB
	ModeFTM
)

var modeNames = []string{
	ModeStation:     "sta",
	ModeAccessPoint: "ap",
	ModeP2PClient:   "p2p-client",
	ModeP2PGo:       "p2p-go",
	ModeMonitor:     "monitor",
	ModeNAN:         "nan",
	ModeOCB:         "ocb",
	ModeFTM:         "ftm",
}

func (m Mode) String() string {
	if int(m) >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}

	return 0, IllegalArgument.New("unknown interface mode %q", s)
}

// MacAddress is a 48-bit hardware address, comparable so it can be used as a map key.
type MacAddress [6]byte

func ParseMacAddress(s string) (MacAddress, error) {
	var addr MacAddress

	hw, err := net.ParseMAC(s)
	if err != nil {
		return addr, IllegalArgument.Wrap(err, "invalid hardware address %q", s)
	}
	if len(hw) != len(addr) {
		return addr, IllegalArgument.New("hardware address %q is not 48 bits", s)
	}

	copy(addr[:], hw)
	return addr, nil
}

func (a MacAddress) String() string {
	return net.HardwareAddr(a[:]).String()
}

func (a MacAddress) IsZero() bool {
	return a == MacAddress{}
}

// MustParseMacAddress is for tests and constants.
func MustParseMacAddress(s string) MacAddress {
	a, err := ParseMacAddress(s)
	if err != nil {
		panic(errorx.Decorate(err, "bad constant"))
	}
	return a
}
