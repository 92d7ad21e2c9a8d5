// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
	"github.com/wlanhost/hostd/cmd/hostd/commands/run"
	"github.com/wlanhost/hostd/cmd/hostd/commands/scenario"
	"github.com/wlanhost/hostd/cmd/hostd/commands/version"
	"github.com/wlanhost/hostd/internal/config"
	"github.com/wlanhost/hostd/internal/doctor"
)

// examples:
// ./hostd run --config ./hostd.yaml --interface sta=02:00:00:00:00:01
// ./hostd scenario ./scenarios/idle.yaml -o json

var (
	flagConfig       string
	flagVersion      bool
	flagOutputFormat string

	rootCmd = &cobra.Command{
		Use:   "hostd",
		Short: "Control plane of a WLAN host driver",
		Long:  "hostd - drives module bring-up, interface lifecycle, idle power-down and forced recovery of a WLAN radio",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagVersion {
				version.PrintVersion(cmd, flagOutputFormat)
				return nil
			}

			return cmd.Help()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path")

	// support '--version', '-v' to show version information
	rootCmd.PersistentFlags().BoolVarP(&flagVersion, "version", "v", false, "Show version")
	rootCmd.PersistentFlags().StringVarP(&flagOutputFormat, "output", "o", "yaml", "Output format (yaml|json)")

	// disable command sorting to keep the order of commands as added
	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(run.GetCmd())
	rootCmd.AddCommand(scenario.GetCmd())
	rootCmd.AddCommand(version.GetCmd())
}

// Execute executes the root command.
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errorx.IllegalArgument.New("context is required")
	}

	cobra.OnInitialize(func() {
		initConfig(ctx)
	})

	_, err := rootCmd.ExecuteContextC(ctx)
	if err != nil {
		return errorx.Decorate(err, "failed to execute command")
	}

	return nil
}

func initConfig(ctx context.Context) {
	err := config.Initialize(flagConfig)
	if err != nil {
		doctor.CheckErr(ctx, err)
	}

	err = logx.Initialize(config.Get().Log)
	if err != nil {
		doctor.CheckErr(ctx, err)
	}
}
