// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"github.com/joomcode/errorx"
	"github.com/wlanhost/hostd/pkg/erx"
)

var (
	ErrNamespace = errorx.NewNamespace("ledger")

	ReleaseWithoutHold = ErrNamespace.NewType("release_without_hold", erx.TraitInvariant)
	ReferenceLeak      = ErrNamespace.NewType("reference_leak", erx.TraitInvariant)
	Closed             = ErrNamespace.NewType("closed", erx.TraitTransient, errorx.Temporary())

	PropertyLeaks = errorx.RegisterPrintableProperty("leaks")
)
