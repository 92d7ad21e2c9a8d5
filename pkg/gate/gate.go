// SPDX-License-Identifier: Apache-2.0

// Package gate serializes lifecycle transitions against in-flight operations.
//
// A Gate has one root scope for the module and any number of child scopes, one per
// adapter. Inside a scope, a transition is exclusive and operations are shared.
// Across scopes, a root transition excludes every child transition and a child
// transition waits while the root is in a transition. A waiting transition blocks new
// operations in its scope so that a steady stream of operations cannot starve it.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/automa-saga/logx"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Observer is notified each time a transaction is admitted.
type Observer func(kind Kind, scope *Scope, waited time.Duration)

type Gate struct {
	mu        sync.Mutex
	changed   chan struct{}
	root      *Scope
	seq       uint64
	unloading bool
	logger    *zerolog.Logger
	observer  Observer
}

type Option func(*Gate)

func WithLogger(logger *zerolog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(g *Gate) {
		g.observer = o
	}
}

func New(opts ...Option) *Gate {
	g := &Gate{
		changed: make(chan struct{}),
		logger:  logx.As(),
	}
	g.root = &Scope{gate: g, name: "module", ops: make(map[uint64]*Txn), children: make(map[*Scope]struct{})}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Module returns the root scope.
func (g *Gate) Module() *Scope {
	return g.root
}

// NewScope creates a child scope of the module scope.
func (g *Gate) NewScope(name string) *Scope {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := &Scope{gate: g, name: name, parent: g.root, ops: make(map[uint64]*Txn)}
	g.root.children[s] = struct{}{}
	return s
}

// RemoveScope detaches a child scope. Waiters on the scope fail with ScopeRemoved.
func (g *Gate) RemoveScope(s *Scope) {
	if s == nil || s.parent == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if s.removed {
		return
	}
	s.removed = true
	delete(g.root.children, s)
	g.broadcastLocked()
}

// SetUnloading makes every pending and future transition fail with Unloading.
// Operations are still admitted so that in-flight work can finish.
func (g *Gate) SetUnloading() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.unloading = true
	g.broadcastLocked()
}

func (g *Gate) IsUnloading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unloading
}

// StartTransition blocks until s can be exclusively owned.
func (g *Gate) StartTransition(ctx context.Context, s *Scope, desc string) (*Txn, error) {
	return g.start(ctx, s, KindTransition, desc)
}

// StartOperation blocks while s, or its parent, is in or waiting for a transition.
func (g *Gate) StartOperation(ctx context.Context, s *Scope, desc string) (*Txn, error) {
	return g.start(ctx, s, KindOperation, desc)
}

func (g *Gate) start(ctx context.Context, s *Scope, kind Kind, desc string) (*Txn, error) {
	begin := time.Now()

	g.mu.Lock()
	if kind == KindTransition {
		s.pending++
		defer func() {
			g.mu.Lock()
			s.pending--
			g.broadcastLocked()
			g.mu.Unlock()
		}()
	}

	for {
		if kind == KindTransition && g.unloading {
			g.mu.Unlock()
			return nil, Unloading.New("driver is unloading, cannot start %s on %s", desc, s.name)
		}

		if s.removed {
			g.mu.Unlock()
			return nil, ScopeRemoved.New("scope %s was removed, cannot start %s", s.name, desc)
		}

		if g.admissibleLocked(s, kind) {
			break
		}

		changed := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, Contention.Wrap(ctx.Err(), "gave up waiting to start %s %s on %s", kind, desc, s.name)
		case <-changed:
		}

		g.mu.Lock()
	}

	g.seq++
	txn := &Txn{
		id:      uuid.NewString(),
		seq:     g.seq,
		kind:    kind,
		scope:   s,
		desc:    desc,
		started: time.Now(),
	}

	if kind == KindTransition {
		s.transition = txn
		if s.parent != nil {
			s.parent.childTransitions++
		}
	} else {
		s.ops[txn.seq] = txn
	}
	g.mu.Unlock()

	waited := txn.started.Sub(begin)
	g.logger.Debug().
		Str("txn_id", txn.id).
		Str("scope", s.name).
		Str("kind", kind.String()).
		Str("desc", desc).
		Dur("waited", waited).
		Msg("Transaction started")

	if g.observer != nil {
		g.observer(kind, s, waited)
	}

	return txn, nil
}

func (g *Gate) admissibleLocked(s *Scope, kind Kind) bool {
	if s.transition != nil {
		return false
	}

	if s.parent != nil && s.parent.transition != nil {
		return false
	}

	if kind == KindTransition {
		return len(s.ops) == 0 && s.childTransitions == 0
	}

	// writer priority
	return s.pending == 0
}

func (g *Gate) end(t *Txn) {
	g.mu.Lock()
	s := t.scope
	if t.kind == KindTransition {
		s.transition = nil
		if s.parent != nil {
			s.parent.childTransitions--
		}
	} else {
		delete(s.ops, t.seq)
	}
	g.broadcastLocked()
	g.mu.Unlock()

	g.logger.Debug().
		Str("txn_id", t.id).
		Str("scope", s.name).
		Str("kind", t.kind.String()).
		Str("desc", t.desc).
		Dur("held", time.Since(t.started)).
		Msg("Transaction ended")
}

// WaitForDrain blocks until every transaction admitted in s before the call has ended.
// Transactions admitted after the call do not extend the wait.
func (g *Gate) WaitForDrain(ctx context.Context, s *Scope) error {
	g.mu.Lock()
	snapshot := g.seq
	for s.busyUpToLocked(snapshot) {
		changed := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return Contention.Wrap(ctx.Err(), "gave up waiting for %s to drain", s.name)
		case <-changed:
		}

		g.mu.Lock()
	}
	g.mu.Unlock()

	return nil
}

func (g *Gate) broadcastLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}
