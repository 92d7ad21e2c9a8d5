// SPDX-License-Identifier: Apache-2.0

package common

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/doctor"
)

var (
	FlagInterfaces = FlagDefinition[[]string]{
		Name:        "interface",
		ShortName:   "i",
		Description: "Interface to add and start at startup, as mode=address (e.g. sta=02:00:00:00:00:01)",
		Default:     []string{},
	}

	FlagMetricsAddress = FlagDefinition[string]{
		Name:        "metrics-address",
		ShortName:   "m",
		Description: "Serve prometheus metrics on this address; overrides metrics.address and enables metrics",
		Default:     "",
	}

	FlagAutoRecover = FlagDefinition[bool]{
		Name:        "auto-recover",
		ShortName:   "",
		Description: "Restart the firmware automatically when a forced recovery is escalated",
		Default:     true,
	}

	FlagFaults = FlagDefinition[string]{
		Name:        "faults",
		ShortName:   "f",
		Description: "YAML or TOML file with faults to inject into the simulated radio",
		Default:     "",
	}

	FlagStatusInterval = FlagDefinition[time.Duration]{
		Name:        "status-interval",
		ShortName:   "",
		Description: "Log the driver status at this interval; 0 disables",
		Default:     0,
	}
)

// FlagDefinition defines a command-line flag typed by T.
type FlagDefinition[T any] struct {
	Name        string
	ShortName   string
	Description string
	Default     T
}

func (fp *FlagDefinition[T]) valueFrom(flags *pflag.FlagSet) (T, error) {
	var zero T
	switch any(zero).(type) {
	case string:
		v, err := flags.GetString(fp.Name)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case bool:
		v, err := flags.GetBool(fp.Name)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case int:
		v, err := flags.GetInt(fp.Name)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case []string:
		v, err := flags.GetStringSlice(fp.Name)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case time.Duration:
		v, err := flags.GetDuration(fp.Name)
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	default:
		return zero, errorx.UnsupportedOperation.New("unsupported flag type: %T", zero)
	}
}

// Value extracts the flag value (from the full flag set: persistent, non-persistent or from parent) of the provided cobra command.
func (fp *FlagDefinition[T]) Value(cmd *cobra.Command, args []string) (T, error) {
	if args == nil {
		args = []string{}
	}

	err := cmd.ParseFlags(args)
	if err != nil {
		var zero T
		return zero, errorx.InternalError.Wrap(err, "failed to parse flags for command %s", cmd.Name())
	}

	return fp.valueFrom(cmd.Flags())
}

// SetVar sets up the non-persistent flag and exits on error.
func (fp *FlagDefinition[T]) SetVar(cmd *cobra.Command, p *T, required bool) {
	if err := fp.setVar(cmd, p, required); err != nil {
		doctor.CheckErr(context.Background(), err, fmt.Sprintf("failed to set flag %s", fp.Name))
	}
}

func (fp *FlagDefinition[T]) setVar(cmd *cobra.Command, p *T, required bool) error {
	if p == nil {
		return errorx.IllegalArgument.New("pointer for flag %s is nil", fp.Name)
	}
	if cmd == nil {
		return errorx.IllegalArgument.New("command for flag %s is nil", fp.Name)
	}

	flags := cmd.Flags()
	switch ptr := any(p).(type) {
	case *string:
		flags.StringVarP(ptr, fp.Name, fp.ShortName, any(fp.Default).(string), fp.Description)
	case *bool:
		flags.BoolVarP(ptr, fp.Name, fp.ShortName, any(fp.Default).(bool), fp.Description)
	case *int:
		flags.IntVarP(ptr, fp.Name, fp.ShortName, any(fp.Default).(int), fp.Description)
	case *[]string:
		flags.StringSliceVarP(ptr, fp.Name, fp.ShortName, any(fp.Default).([]string), fp.Description)
	case *time.Duration:
		flags.DurationVarP(ptr, fp.Name, fp.ShortName, any(fp.Default).(time.Duration), fp.Description)
	default:
		return errorx.UnsupportedOperation.New("unsupported flag type: %T", p)
	}

	if required {
		if err := cmd.MarkFlagRequired(fp.Name); err != nil {
			return errorx.InternalError.Wrap(err, "failed to mark flag %s as required", fp.Name)
		}
	}

	return nil
}

// InterfaceSpec is one mode=address pair given on the command line.
type InterfaceSpec struct {
	Mode    core.Mode
	Address string
}

// ParseInterfaces parses mode=address pairs.
func ParseInterfaces(values []string) ([]InterfaceSpec, error) {
	out := make([]InterfaceSpec, 0, len(values))
	for _, v := range values {
		modeStr, addr, ok := strings.Cut(v, "=")
		if !ok || addr == "" {
			return nil, errorx.IllegalArgument.New("interface %q must be mode=address", v).
				WithProperty(errorx.PropertyPayload(), FlagInterfaces.Name)
		}

		mode, err := core.ParseMode(modeStr)
		if err != nil {
			return nil, err
		}
		if _, err := core.ParseMacAddress(addr); err != nil {
			return nil, err
		}

		out = append(out, InterfaceSpec{Mode: mode, Address: addr})
	}
	return out, nil
}
