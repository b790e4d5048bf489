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

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/massenz/go-machina/pkg/machina"
)

var _ = Describe("Nested machinas", func() {
	type Light string
	type LightChange string
	type Walker string
	type WalkerChange string
	const (
		Green Light = "Green"
		Amber Light = "Amber"
		Red   Light = "Red"

		TurnGreen LightChange = "TurnGreen"
		TurnAmber LightChange = "TurnAmber"
		TurnRed   LightChange = "TurnRed"

		Walk Walker = "Walk"
		Wait Walker = "Wait"
		Stop Walker = "Stop"

		ToWalk WalkerChange = "ToWalk"
		ToWait WalkerChange = "ToWait"
		ToStop WalkerChange = "ToStop"
	)
	type P = machina.Transition[Walker, WalkerChange]
	type L = machina.Transition[Light, LightChange]

	var (
		ctx             = context.Background()
		pedestrian      *machina.Machina[Walker, WalkerChange]
		lights          *machina.Machina[Light, LightChange]
		greenFromParent bool
	)

	BeforeEach(func() {
		var err error
		greenFromParent = false
		pedestrian, err = machina.NewBuilder[Walker, WalkerChange](Stop, machina.WithName("pedestrian")).
			AddState(Stop, P{Edge: ToWalk, Next: Walk, Description: "to walking..."}).
			OnEnter(Stop, func(ctx context.Context, m *machina.Machina[Walker, WalkerChange]) error {
				if m.Parent() == nil {
					return nil
				}
				ok, err := m.Parent().Signal(ctx, TurnGreen)
				greenFromParent = ok
				return err
			}).
			AddState(Walk, P{Edge: ToWait, Next: Wait, Description: "to waiting..."}).
			AddState(Wait, P{Edge: ToStop, Next: Stop, Description: "to stopped"}).
			BuildAndStart(ctx)
		Expect(err).ToNot(HaveOccurred())

		lights, err = machina.NewBuilder[Light, LightChange](Green, machina.WithName("lights")).
			AddState(Green, L{Edge: TurnAmber, Next: Amber, Description: "turn amber"}).
			AddState(Amber, L{Edge: TurnRed, Next: Red, Description: "turn red"}).
			AddState(Red, L{Edge: TurnGreen, Next: Green, Description: "turn green"}).
			WithNested(Red, pedestrian).
			OnEnter(Red, func(ctx context.Context, m *machina.Machina[Light, LightChange]) error {
				nested := m.State().Nested
				Expect(m.State().Current).To(Equal(Red))
				Expect(nested).To(HaveLen(1))
				Expect(nested[0].Name()).To(Equal("pedestrian"))
				_, err := nested[0].Signal(ctx, ToWalk)
				return err
			}).
			BuildAndStart(ctx)
		Expect(err).ToNot(HaveOccurred())
	})

	It("link the child to its parent", func() {
		Expect(lights.Parent()).To(BeNil())
		Expect(pedestrian.Parent()).To(BeIdenticalTo(lights))
		Expect(lights.State().Nested).To(BeEmpty())
	})
	It("let parent and child drive each other", func() {
		Expect(pedestrian.State().Current).To(Equal(Stop))
		_, err := lights.Transition(ctx, TurnAmber)
		Expect(err).ToNot(HaveOccurred())
		Expect(pedestrian.State().Current).To(Equal(Stop))

		_, err = lights.Transition(ctx, TurnRed)
		Expect(err).ToNot(HaveOccurred())
		Expect(pedestrian.State().Current).To(Equal(Walk))

		_, err = pedestrian.Transition(ctx, ToWait)
		Expect(err).ToNot(HaveOccurred())
		Expect(lights.State().Current).To(Equal(Red))

		s, err := pedestrian.Transition(ctx, ToStop)
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Current).To(Equal(Stop))
		Expect(greenFromParent).To(BeTrue())
		Expect(lights.State().Current).To(Equal(Green))
	})
	It("keep the first parent", func() {
		var buf bytes.Buffer
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		defer zerolog.SetGlobalLevel(zerolog.Disabled)

		other, err := machina.NewBuilder[Light, LightChange](Red, machina.WithName("other")).
			AddState(Red).
			WithNested(Red, pedestrian).
			Build()
		Expect(err).ToNot(HaveOccurred())
		Expect(other.State().Nested).To(HaveLen(1))
		Expect(pedestrian.Parent()).To(BeIdenticalTo(lights))

		// Warnings are logged by the child, with its own logger.
		child, err := machina.NewBuilder[Walker, WalkerChange](Stop,
			machina.WithName("child"), machina.WithLogger(zerolog.New(&buf))).
			AddState(Stop).
			Build()
		Expect(err).ToNot(HaveOccurred())
		_, err = machina.NewBuilder[Light, LightChange](Red, machina.WithName("first")).
			AddState(Red).WithNested(Red, child).Build()
		Expect(err).ToNot(HaveOccurred())
		_, err = machina.NewBuilder[Light, LightChange](Red, machina.WithName("second")).
			AddState(Red).WithNested(Red, child).Build()
		Expect(err).ToNot(HaveOccurred())

		Expect(child.Parent().Name()).To(Equal("first"))
		Expect(buf.String()).To(ContainSubstring("nested machina already has a parent"))
		Expect(buf.String()).To(ContainSubstring(`"ignored":"second"`))
	})
})
