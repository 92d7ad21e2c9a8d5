// SPDX-License-Identifier: Apache-2.0

// Package run attaches the driver to a simulated radio and serves until interrupted.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automa-saga/logx"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
	"github.com/wlanhost/hostd/cmd/hostd/commands/common"
	"github.com/wlanhost/hostd/internal/config"
	"github.com/wlanhost/hostd/internal/driver"
	"github.com/wlanhost/hostd/internal/metrics"
	"github.com/wlanhost/hostd/internal/recovery"
	"github.com/wlanhost/hostd/internal/sim"
)

var (
	flagInterfaces     []string
	flagMetricsAddress string
	flagAutoRecover    bool
	flagFaults         string
	flagStatusInterval time.Duration

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Attach the driver and serve until interrupted",
		Long:  "Attach the driver to a simulated radio, optionally add interfaces, serve metrics and wait for SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, config.Get())
		},
	}
)

func init() {
	common.FlagInterfaces.SetVar(runCmd, &flagInterfaces, false)
	common.FlagMetricsAddress.SetVar(runCmd, &flagMetricsAddress, false)
	common.FlagAutoRecover.SetVar(runCmd, &flagAutoRecover, false)
	common.FlagFaults.SetVar(runCmd, &flagFaults, false)
	common.FlagStatusInterval.SetVar(runCmd, &flagStatusInterval, false)
}

func GetCmd() *cobra.Command {
	return runCmd
}

// Run serves until ctx is done, then detaches the driver.
func Run(ctx context.Context, cfg config.Config) error {
	logger := logx.As()

	specs, err := common.ParseInterfaces(flagInterfaces)
	if err != nil {
		return err
	}

	var faults sim.Faults
	if flagFaults != "" {
		if faults, err = sim.LoadFaults(flagFaults); err != nil {
			return err
		}
	}
	dev := sim.New(sim.WithFaults(faults))

	if flagMetricsAddress != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = flagMetricsAddress
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		if collector, err = metrics.NewCollector(cfg.Metrics.Namespace); err != nil {
			return err
		}
		collector.Serve(ctx, cfg.Metrics.Address)
	}

	d, err := driver.Attach(ctx, cfg,
		driver.Deps{Transport: dev, Firmware: dev, Protocol: dev, Policy: dev},
		driver.WithMetrics(collector))
	if err != nil {
		return err
	}
	defer func() {
		if derr := d.Detach(context.Background()); derr != nil {
			logger.Error().Err(derr).Msg("Driver detach reported errors")
		}
	}()

	if flagAutoRecover {
		unsubscribe, err := d.Notifier().Subscribe(func(ev recovery.Event) {
			logger.Warn().Str("recovery_id", ev.ID).Msg("Restarting firmware after forced recovery")
			if err := d.Recover(ctx); err != nil {
				logger.Error().Err(err).Str("recovery_id", ev.ID).Msg("Forced recovery failed")
			}
		})
		if err != nil {
			return errorx.InternalError.Wrap(err, "failed to subscribe to forced recovery events")
		}
		defer unsubscribe()
	}

	for _, spec := range specs {
		id, err := d.AddInterface(ctx, spec.Mode, spec.Address)
		if err != nil {
			return err
		}
		if err := d.StartInterface(ctx, id); err != nil {
			return err
		}
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd readiness")
	}
	logger.Info().Int("interfaces", len(specs)).Msg("hostd is running")

	var tick <-chan time.Time
	if flagStatusInterval > 0 {
		ticker := time.NewTicker(flagStatusInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			logger.Info().Msg("Shutting down")
			return nil
		case <-tick:
			logger.Info().
				Str("state", d.State().String()).
				Str("global_mode", d.GlobalMode().String()).
				Bool("idle_armed", d.IdleArmed()).
				Int("interfaces", len(d.Interfaces())).
				Int64("recoveries", d.Notifier().Count()).
				Msg("Driver status")
		}
	}
}
