/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package machina

import (
	"context"
)

// Builder accumulates states, edges and hooks into a Graph.
//
// Calling AddState (or any of the hook setters) again for the same state adds to the node
// created the first time around.
type Builder[S, E comparable] struct {
	initial S
	graph   Graph[S, E]
	opts    []Option
	options options
}

func NewBuilder[S, E comparable](initial S, opts ...Option) *Builder[S, E] {
	return &Builder[S, E]{
		initial: initial,
		graph:   make(Graph[S, E]),
		opts:    opts,
		options: newOptions(opts),
	}
}

func (b *Builder[S, E]) node(state S) *NodeState[S, E] {
	node, found := b.graph[state]
	if !found {
		node = &NodeState[S, E]{}
		b.graph[state] = node
	}
	return node
}

// AddState adds `state`, if new, and appends `transitions` to its out-edges; a terminal
// state is added with no transitions.
func (b *Builder[S, E]) AddState(state S, transitions ...Transition[S, E]) *Builder[S, E] {
	node := b.node(state)
	node.OutEdges = append(node.OutEdges, transitions...)
	return b
}

// OnEnter sets the hook run when `state` is entered; setting it again replaces the
// previous one and logs a warning.
func (b *Builder[S, E]) OnEnter(state S, hook Hook[S, E]) *Builder[S, E] {
	if hook == nil {
		return b
	}
	node := b.node(state)
	if node.OnEnter != nil {
		b.warnOverwrite(state, "onEnter")
	}
	node.OnEnter = hook
	return b
}

// OnLeave sets the hook run when `state` is left; setting it again replaces the previous
// one and logs a warning.
func (b *Builder[S, E]) OnLeave(state S, hook Hook[S, E]) *Builder[S, E] {
	if hook == nil {
		return b
	}
	node := b.node(state)
	if node.OnLeave != nil {
		b.warnOverwrite(state, "onLeave")
	}
	node.OnLeave = hook
	return b
}

// WithNested attaches child machines to `state`; they will have the built Machina as
// their Parent.
func (b *Builder[S, E]) WithNested(state S, children ...Machine) *Builder[S, E] {
	node := b.node(state)
	node.Nested = append(node.Nested, children...)
	return b
}

func (b *Builder[S, E]) warnOverwrite(state S, hook string) {
	b.options.logger.Warn().
		Str("machina", b.options.name).
		Msgf("overwriting state '%v' %s (did you mean to use a transition callback instead?)",
			state, hook)
}

// Build creates a Machina from a copy of the states added so far.
func (b *Builder[S, E]) Build() (*Machina[S, E], error) {
	return New(b.initial, b.graph.clone(), b.opts...)
}

func (b *Builder[S, E]) BuildAndStart(ctx context.Context) (*Machina[S, E], error) {
	m, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err = m.Start(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
