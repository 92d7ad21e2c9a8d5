// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"sync/atomic"
	"time"
)

type Kind int

const (
	KindTransition Kind = iota
	KindOperation
)

func (k Kind) String() string {
	if k == KindTransition {
		return "transition"
	}
	return "operation"
}

// Txn is the token of an admitted transaction. It must be ended exactly once.
type Txn struct {
	id      string
	seq     uint64
	kind    Kind
	scope   *Scope
	desc    string
	started time.Time
	ended   atomic.Bool
}

func (t *Txn) ID() string {
	return t.id
}

func (t *Txn) Kind() Kind {
	return t.kind
}

func (t *Txn) Scope() *Scope {
	return t.scope
}

func (t *Txn) Description() string {
	return t.desc
}

// End releases the token and wakes waiters. Ending a token twice panics.
func (t *Txn) End() {
	if !t.ended.CompareAndSwap(false, true) {
		panic(DoubleEnd.New("transaction %s (%s %s on %s) ended twice", t.id, t.kind, t.desc, t.scope.name))
	}

	t.scope.gate.end(t)
}
