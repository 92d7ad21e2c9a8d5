// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"github.com/joomcode/errorx"
	"github.com/wlanhost/hostd/pkg/erx"
)

var (
	ErrNamespace = errorx.NewNamespace("gate")

	Unloading    = ErrNamespace.NewType("unloading")
	Contention   = ErrNamespace.NewType("contention", erx.TraitTransient, errorx.Temporary())
	ScopeRemoved = ErrNamespace.NewType("scope_removed", errorx.NotFound())
	DoubleEnd    = ErrNamespace.NewType("double_end", erx.TraitInvariant)
)
