// SPDX-License-Identifier: Apache-2.0

package gate

// Scope is a unit of mutual exclusion inside a Gate. Fields are guarded by the gate mutex.
type Scope struct {
	gate             *Gate
	name             string
	parent           *Scope
	children         map[*Scope]struct{}
	transition       *Txn
	ops              map[uint64]*Txn
	pending          int
	childTransitions int
	removed          bool
}

func (s *Scope) Name() string {
	return s.name
}

func (s *Scope) IsModule() bool {
	return s.parent == nil
}

// Active reports the number of operations and whether a transition is in progress.
func (s *Scope) Active() (ops int, inTransition bool) {
	s.gate.mu.Lock()
	defer s.gate.mu.Unlock()
	return len(s.ops), s.transition != nil
}

func (s *Scope) busyUpToLocked(seq uint64) bool {
	if s.transition != nil && s.transition.seq <= seq {
		return true
	}

	for opSeq := range s.ops {
		if opSeq <= seq {
			return true
		}
	}

	return false
}
