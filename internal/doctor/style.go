// SPDX-License-Identifier: Apache-2.0

package doctor

import "os"

// ANSI escapes used by the diagnosis box. All of them are empty when NO_COLOR is set.
var (
	Red    = "\033[31m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	White  = "\033[37m"
	Gray   = "\033[90m"
	Reset  = "\033[0m"
	Bold   = "\033[1m"
)

func init() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		disableColors()
	}
}

func disableColors() {
	Red, Yellow, Cyan, White, Gray, Reset, Bold = "", "", "", "", "", "", ""
}
