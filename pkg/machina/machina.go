/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

// Package machina is a finite state machine engine with an ordered notification bus.
//
// A Machina can only move along the edges declared in its Graph; on every transition it
// runs, in this order and each one to completion:
//
//	OnLeave(current) -> notify StateLeave -> OnTransition(edge) -> notify Transition ->
//	current = next -> OnEnter(next) -> notify StateEnter
//
// A Machina is not safe for concurrent use: callers must not issue a Transition until the
// previous one has returned. Hooks may call Transition on the same machine (or on its
// parent or children) from within the sequence above, which is how nested machines
// coordinate.
package machina

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/massenz/go-machina/pkg/observable"
)

// Option configures a Machina when it is created.
type Option func(*options)

type options struct {
	name   string
	logger *zerolog.Logger
}

// WithName names the machine; the name shows in errors, logs and notifications.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := log.With().Str("logger", "machina").Logger()
		o.logger = &l
	}
	return o
}

// Machina is the transition engine.
type Machina[S, E comparable] struct {
	name    string
	current S
	started bool
	graph   Graph[S, E]
	parent  Machine
	bus     *observable.Observable
	logger  zerolog.Logger
}

// New creates a Machina starting in `initial`; it takes ownership of `graph`, which must
// not be modified afterwards.
// Every nested Machine referenced by a node has its Parent set to the new Machina.
func New[S, E comparable](initial S, graph Graph[S, E], opts ...Option) (*Machina[S, E], error) {
	if err := graph.Validate(initial); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	m := &Machina[S, E]{
		name:    o.name,
		current: initial,
		graph:   graph,
		bus:     observable.New(),
		logger:  o.logger.With().Str("machina", o.name).Logger(),
	}
	for _, node := range graph {
		for _, child := range node.Nested {
			child.bindParent(m)
		}
	}
	return m, nil
}

func (m *Machina[S, E]) Name() string {
	return m.name
}

func (m *Machina[S, E]) Started() bool {
	return m.started
}

// Parent is nil unless this Machina is nested in another one's state.
func (m *Machina[S, E]) Parent() Machine {
	return m.parent
}

func (m *Machina[S, E]) Current() any {
	return m.current
}

func (m *Machina[S, E]) bindParent(parent Machine) {
	if m.parent != nil && m.parent != parent {
		m.logger.Warn().
			Str("parent", m.parent.Name()).
			Str("ignored", parent.Name()).
			Msg("nested machina already has a parent")
		return
	}
	m.parent = parent
}

// State returns a Snapshot of the current state.
func (m *Machina[S, E]) State() Snapshot[S, E] {
	node := m.graph.NodeFor(m.current)
	return Snapshot[S, E]{
		Current:             m.current,
		PossibleTransitions: append([]Transition[S, E](nil), node.OutEdges...),
		Nested:              append([]Machine(nil), node.Nested...),
	}
}

// Start notifies that the initial state was entered, then runs its OnEnter hook.
// It can only be called once.
func (m *Machina[S, E]) Start(ctx context.Context) error {
	if m.started {
		return fmt.Errorf("machina '%s': %w", m.name, ErrAlreadyStarted)
	}
	m.started = true
	m.logger.Debug().Str("state", fmt.Sprint(m.current)).Msg("starting")
	m.notify(observable.StateEnter, nil, m.current)
	node := m.graph.NodeFor(m.current)
	if node.OnEnter != nil {
		if err := node.OnEnter(ctx, m); err != nil {
			return m.hookError("OnEnter", m.current, err)
		}
	}
	return nil
}

// Transition moves the machine along `edge`.
//
// If the current state has no such out-edge, it returns a nil Snapshot and a nil error,
// leaving the machine where it was. Calling Transition before Start returns an
// IllegalStateError.
func (m *Machina[S, E]) Transition(ctx context.Context, edge E) (*Snapshot[S, E], error) {
	if !m.started {
		return nil, &IllegalStateError{Machina: m.name}
	}
	from := m.current
	node := m.graph.NodeFor(from)
	t, found := node.find(edge)
	if !found {
		m.logger.Trace().
			Str("state", fmt.Sprint(from)).
			Str("edge", fmt.Sprint(edge)).
			Msg("no such edge, ignored")
		return nil, nil
	}
	m.logger.Debug().
		Str("from", fmt.Sprint(from)).
		Str("to", fmt.Sprint(t.Next)).
		Str("edge", fmt.Sprint(edge)).
		Msg("transition")

	if node.OnLeave != nil {
		if err := node.OnLeave(ctx, m); err != nil {
			return nil, m.hookError("OnLeave", from, err)
		}
	}
	m.notify(observable.StateLeave, from, t.Next)

	if t.OnTransition != nil {
		if err := t.OnTransition(ctx, m); err != nil {
			return nil, m.hookError("OnTransition", edge, err)
		}
	}
	m.notify(observable.Transition, nil, edge)

	m.current = t.Next
	next := m.graph.NodeFor(t.Next)
	if next.OnEnter != nil {
		if err := next.OnEnter(ctx, m); err != nil {
			return nil, m.hookError("OnEnter", t.Next, err)
		}
	}
	m.notify(observable.StateEnter, from, t.Next)

	snapshot := m.State()
	return &snapshot, nil
}

func (m *Machina[S, E]) Signal(ctx context.Context, edge any) (bool, error) {
	e, ok := edge.(E)
	if !ok {
		return false, fmt.Errorf("machina '%s': %w (%T)", m.name, ErrEdgeType, edge)
	}
	snapshot, err := m.Transition(ctx, e)
	return snapshot != nil, err
}

func (m *Machina[S, E]) notify(kind observable.NotificationType, prev, next any) {
	m.bus.Notify(observable.NewNotification(m.name, kind, prev, next))
}

func (m *Machina[S, E]) hookError(hook string, target any, err error) error {
	m.logger.Error().Err(err).
		Str("hook", hook).
		Str("target", fmt.Sprint(target)).
		Msg("hook failed")
	return &HookError{Machina: m.name, Hook: hook, Target: target, Err: err}
}
