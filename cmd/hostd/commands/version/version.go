// SPDX-License-Identifier: Apache-2.0

package version

import (
	"github.com/spf13/cobra"
	"github.com/wlanhost/hostd/internal/doctor"
	"github.com/wlanhost/hostd/internal/version"
)

var (
	flagShort bool

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Long:  "Show the version, commit and build mode of hostd",
		Run: func(cmd *cobra.Command, args []string) {
			if flagShort {
				cmd.Println(version.Get().String())
				return
			}
			format, _ := cmd.Flags().GetString("output")
			PrintVersion(cmd, format)
		},
	}
)

func init() {
	versionCmd.Flags().BoolVar(&flagShort, "short", false, "Print a single line")
}

func GetCmd() *cobra.Command {
	return versionCmd
}

func PrintVersion(cmd *cobra.Command, format string) {
	output, err := version.Get().Format(format)
	if err != nil {
		doctor.CheckErr(cmd.Context(), err)
	}
	cmd.Println(output)
}
