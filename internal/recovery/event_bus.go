// SPDX-License-Identifier: Apache-2.0

package recovery

const (
	// TopicForcedRecovery carries an Event each time the driver gives up on the firmware
	// and asks the supervisor for a forced restart
	TopicForcedRecovery = "wlan:forced-recovery"

	// TopicRecovered carries the recovery id once the driver restarted after a forced recovery
	TopicRecovered = "wlan:recovered"
)
