// SPDX-License-Identifier: Apache-2.0

package erx

import (
	"github.com/rs/zerolog"
)

// MarkFatal logs an error message with FATAL keyword
func MarkFatal(logger *zerolog.Logger, msg string) {
	logger.Error().Msgf("FATAL: %s", msg)
}

// MarkRecovery logs an error message with RECOVERY keyword so external tooling can pick up escalations
func MarkRecovery(logger *zerolog.Logger, msg string) {
	logger.Error().Msgf("RECOVERY: %s", msg)
}
