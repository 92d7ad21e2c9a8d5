// SPDX-License-Identifier: Apache-2.0

// Package scenario replays a scripted sequence of control-surface requests against a
// driver attached to a simulated radio.
package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joomcode/errorx"
	"github.com/wlanhost/hostd/internal/sim"
	"gopkg.in/yaml.v3"
)

const (
	ActionBringUp  = "bring-up"
	ActionShutDown = "shut-down"
	ActionAdd      = "add"
	ActionRemove   = "remove"
	ActionStart    = "start"
	ActionStop     = "stop"
	ActionSuspend  = "suspend"
	ActionResume   = "resume"
	ActionRecover  = "recover"
	ActionMode     = "mode"
	ActionInject   = "inject"
	ActionSleep    = "sleep"
	ActionWait     = "wait"
)

var (
	ErrNamespace = errorx.NewNamespace("scenario")
	InvalidError = ErrNamespace.NewType("invalid")
	// Unexpected marks a step whose outcome differs from what the scenario expects.
	Unexpected = ErrNamespace.NewType("unexpected_outcome")
)

type Scenario struct {
	Name   string     `yaml:"name" toml:"name"`
	Faults sim.Faults `yaml:"faults" toml:"faults"`
	Steps  []Step     `yaml:"steps" toml:"steps" validate:"min=1,dive"`
}

// Step is one request. Interfaces are referred to by the alias given when they were
// added.
type Step struct {
	Action    string        `yaml:"action" toml:"action" validate:"required,oneof=bring-up shut-down add remove start stop suspend resume recover mode inject sleep wait"`
	Interface string        `yaml:"interface,omitempty" toml:"interface" validate:"required_if=Action add,required_if=Action remove,required_if=Action start,required_if=Action stop"`
	Mode      string        `yaml:"mode,omitempty" toml:"mode" validate:"required_if=Action add,required_if=Action mode"`
	Address   string        `yaml:"address,omitempty" toml:"address" validate:"required_if=Action add"`
	Duration  time.Duration `yaml:"duration,omitempty" toml:"duration"`
	// State is the module state a wait step polls for.
	State  string      `yaml:"state,omitempty" toml:"state" validate:"required_if=Action wait"`
	Faults *sim.Faults `yaml:"faults,omitempty" toml:"faults" validate:"required_if=Action inject"`
	// Expect is an error type name (wlan.duplicate_address), a category
	// (resource-exhaustion) or "error". Empty expects success.
	Expect string `yaml:"expect,omitempty" toml:"expect"`
}

// Load reads a YAML or TOML scenario, chosen by file extension.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errorx.IllegalArgument.Wrap(err, "failed to read scenario %q", path).
			WithProperty(errorx.PropertyPayload(), path)
	}

	var sc Scenario
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(b), &sc); err != nil {
			return nil, errorx.IllegalFormat.Wrap(err, "failed to parse TOML scenario %q", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &sc); err != nil {
			return nil, errorx.IllegalFormat.Wrap(err, "failed to parse YAML scenario %q", path)
		}
	default:
		return nil, errorx.IllegalFormat.New("unsupported scenario format %q", filepath.Ext(path)).
			WithProperty(errorx.PropertyPayload(), path)
	}

	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) Validate() error {
	if err := validator.New().Struct(sc); err != nil {
		return InvalidError.Wrap(err, "invalid scenario %q", sc.Name)
	}
	return nil
}
