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
	"fmt"
)

// Hook runs at a fixed point of a transition: on leaving a state, on traversing an edge or
// on entering a state. It receives the engine it runs for, so that it can inspect it or
// trigger further transitions (on it, on its Parent or on a nested machine).
type Hook[S, E comparable] func(ctx context.Context, m *Machina[S, E]) error

// Transition is an out-edge of a state: when `Edge` is received, the machine moves to `Next`.
type Transition[S, E comparable] struct {
	Edge         E
	Next         S
	Description  string
	OnTransition Hook[S, E]
}

// NodeState groups everything the engine knows about a single state.
type NodeState[S, E comparable] struct {
	OutEdges []Transition[S, E]
	OnEnter  Hook[S, E]
	OnLeave  Hook[S, E]
	Nested   []Machine
}

func (n *NodeState[S, E]) find(edge E) (Transition[S, E], bool) {
	for _, t := range n.OutEdges {
		if t.Edge == edge {
			return t, true
		}
	}
	return Transition[S, E]{}, false
}

// Graph maps every state to its node; it is never modified once handed to an engine.
type Graph[S, E comparable] map[S]*NodeState[S, E]

// NodeFor returns the node for `state`.
// Engines validate their Graph when created, so a missing node is a programming error.
func (g Graph[S, E]) NodeFor(state S) *NodeState[S, E] {
	node, found := g[state]
	if !found {
		panic(fmt.Sprintf("no node for state '%v'", state))
	}
	return node
}

// Validate checks that `initial` and every state reachable through an edge have a node.
func (g Graph[S, E]) Validate(initial S) error {
	if _, found := g[initial]; !found {
		return fmt.Errorf("%w: initial state '%v'", ErrUnknownState, initial)
	}
	for state, node := range g {
		for _, t := range node.OutEdges {
			if _, found := g[t.Next]; !found {
				return fmt.Errorf("%w: '%v' (edge '%v' from '%v')",
					ErrUnknownState, t.Next, t.Edge, state)
			}
		}
	}
	return nil
}

func (g Graph[S, E]) clone() Graph[S, E] {
	c := make(Graph[S, E], len(g))
	for state, node := range g {
		c[state] = &NodeState[S, E]{
			OutEdges: append([]Transition[S, E](nil), node.OutEdges...),
			OnEnter:  node.OnEnter,
			OnLeave:  node.OnLeave,
			Nested:   append([]Machine(nil), node.Nested...),
		}
	}
	return c
}

// Snapshot is computed on every State() call, it is never cached.
type Snapshot[S, E comparable] struct {
	Current             S
	PossibleTransitions []Transition[S, E]
	Nested              []Machine
}

// Edges lists the edges out of the Current state, in the order they were added.
func (s Snapshot[S, E]) Edges() []E {
	edges := make([]E, 0, len(s.PossibleTransitions))
	for _, t := range s.PossibleTransitions {
		edges = append(edges, t.Edge)
	}
	return edges
}

// Machine is implemented by every Machina, whatever its state and edge types; it lets a
// nested machine signal its parent, and a parent drive its children, without knowing their
// types.
//
// The parent reference does not own the parent: engines never manage the lifetime of
// their parents or children.
type Machine interface {
	Name() string
	Started() bool
	Parent() Machine
	// Current returns the current state.
	Current() any
	// Signal is an untyped Transition; it reports whether the edge was accepted and fails
	// with ErrEdgeType if `edge` is not of the machine's edge type.
	Signal(ctx context.Context, edge any) (bool, error)

	bindParent(parent Machine)
}
