// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"sync/atomic"
)

// Hold is a scoped borrow token. It must be released exactly once.
type Hold struct {
	ledger   *Ledger
	reason   Reason
	released atomic.Bool
}

func (h *Hold) Reason() Reason {
	return h.reason
}

func (h *Hold) Release() {
	if !h.released.CompareAndSwap(false, true) {
		panic(ReleaseWithoutHold.New("ledger %s: hold for %q released twice", h.ledger.name, h.reason))
	}

	h.ledger.Release(h.reason)
}
