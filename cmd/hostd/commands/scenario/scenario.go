// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"encoding/json"
	"strings"

	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
	"github.com/wlanhost/hostd/internal/config"
	"github.com/wlanhost/hostd/internal/driver"
	"github.com/wlanhost/hostd/internal/scenario"
	"github.com/wlanhost/hostd/internal/sim"
	"gopkg.in/yaml.v3"
)

var (
	scenarioCmd = &cobra.Command{
		Use:   "scenario <file>",
		Short: "Replay a scenario against a simulated radio",
		Long:  "Replay a YAML or TOML scenario of control-surface requests against a simulated radio and print the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			dev := sim.New()
			d, err := driver.Attach(cmd.Context(), config.Get(),
				driver.Deps{Transport: dev, Firmware: dev, Protocol: dev, Policy: dev})
			if err != nil {
				return err
			}
			defer func() { _ = d.Detach(cmd.Context()) }()

			res, runErr := scenario.NewRunner(d, dev).Run(cmd.Context(), sc)

			format, _ := cmd.Flags().GetString("output")
			out, err := render(res, format)
			if err != nil {
				return err
			}
			cmd.Println(out)

			return runErr
		},
	}
)

func GetCmd() *cobra.Command {
	return scenarioCmd
}

func render(res *scenario.Result, format string) (string, error) {
	var (
		b   []byte
		err error
	)

	switch strings.ToLower(format) {
	case "json":
		b, err = json.MarshalIndent(res, "", "  ")
	case "yaml", "":
		b, err = yaml.Marshal(res)
	default:
		return "", errorx.IllegalFormat.New("unsupported format: %s", format)
	}
	if err != nil {
		return "", errorx.IllegalFormat.Wrap(err, "failed to render scenario result")
	}
	return string(b), nil
}
