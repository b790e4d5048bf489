/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package machina_test

import (
	"bytes"
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/massenz/go-machina/pkg/machina"
)

var _ = Describe("Builder", func() {
	var ctx = context.Background()
	noop := func(ctx context.Context, m *machina.Machina[LightState, LightEdge]) error {
		return nil
	}

	It("warns when a hook is overwritten", func() {
		var buf bytes.Buffer
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		defer zerolog.SetGlobalLevel(zerolog.Disabled)

		called := false
		m, err := lightSwitch(machina.WithName("phone"), machina.WithLogger(zerolog.New(&buf))).
			OnEnter(On, noop).
			OnEnter(On, func(ctx context.Context, m *machina.Machina[LightState, LightEdge]) error {
				called = true
				return nil
			}).
			OnLeave(Off, noop).
			OnLeave(Off, noop).
			BuildAndStart(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(called).To(BeTrue())
		Expect(m.Name()).To(Equal("phone"))

		Expect(buf.String()).To(ContainSubstring(
			"overwriting state 'On' onEnter (did you mean to use a transition callback instead?)"))
		Expect(buf.String()).To(ContainSubstring("overwriting state 'Off' onLeave"))
		Expect(buf.String()).To(ContainSubstring(`"level":"warn"`))
	})
	It("ignores nil hooks", func() {
		var buf bytes.Buffer
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		defer zerolog.SetGlobalLevel(zerolog.Disabled)

		_, err := lightSwitch(machina.WithLogger(zerolog.New(&buf))).
			OnEnter(On, noop).
			OnEnter(On, nil).
			OnLeave(On, nil).
			BuildAndStart(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(buf.Len()).To(Equal(0))
	})
	It("accepts terminal states", func() {
		m, err := machina.NewBuilder[LightState, LightEdge](On).
			AddState(On, machina.Transition[LightState, LightEdge]{Edge: TurnOff, Next: Off}).
			AddState(Off).
			BuildAndStart(ctx)
		Expect(err).ToNot(HaveOccurred())
		s, err := m.Transition(ctx, TurnOff)
		Expect(err).ToNot(HaveOccurred())
		Expect(s.PossibleTransitions).To(BeEmpty())
	})
	It("rejects edges to unknown states", func() {
		_, err := machina.NewBuilder[LightState, LightEdge](On).
			AddState(On, machina.Transition[LightState, LightEdge]{Edge: TurnOff, Next: Off}).
			Build()
		Expect(errors.Is(err, machina.ErrUnknownState)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("'Off'"))
	})
	It("rejects an unknown initial state", func() {
		_, err := machina.NewBuilder[LightState, LightEdge]("Dimmed").
			AddState(On).
			Build()
		Expect(errors.Is(err, machina.ErrUnknownState)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("initial state 'Dimmed'"))
	})
	It("does not share states with the machines it built", func() {
		b := lightSwitch()
		first, err := b.Build()
		Expect(err).ToNot(HaveOccurred())
		b.AddState(On, machina.Transition[LightState, LightEdge]{Edge: TurnOn, Next: On})
		second, err := b.Build()
		Expect(err).ToNot(HaveOccurred())

		Expect(first.State().Edges()).To(Equal([]LightEdge{TurnOff}))
		Expect(second.State().Edges()).To(Equal([]LightEdge{TurnOff, TurnOn}))
	})
})

var _ = Describe("New", func() {
	It("builds a machina from a graph", func() {
		graph := machina.Graph[LightState, LightEdge]{
			On:  {OutEdges: []machina.Transition[LightState, LightEdge]{{Edge: TurnOff, Next: Off}}},
			Off: {OutEdges: []machina.Transition[LightState, LightEdge]{{Edge: TurnOn, Next: On}}},
		}
		m, err := machina.New(On, graph, machina.WithName("graph"))
		Expect(err).ToNot(HaveOccurred())
		Expect(m.Started()).To(BeFalse())
		Expect(m.Start(context.Background())).To(Succeed())
		Expect(m.State().Edges()).To(Equal([]LightEdge{TurnOff}))
	})
	It("panics on a missing node", func() {
		graph := machina.Graph[LightState, LightEdge]{}
		Expect(func() { graph.NodeFor(On) }).To(Panic())
	})
})
