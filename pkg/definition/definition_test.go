/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package definition_test

import (
	"context"
	"errors"

	. "github.com/JiaYongfei/respect/gomega"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/massenz/go-machina/pkg/definition"
	"github.com/massenz/go-machina/pkg/machina"
)

var _ = Describe("Definitions", func() {
	ctx := context.Background()

	Context("loaded from a file", func() {
		It("build a working machina", func() {
			def, err := definition.Load("testdata/light-switch.yaml")
			Expect(err).ToNot(HaveOccurred())
			Expect(def).To(Respect(&definition.Definition{
				Name:          "light-switch",
				StartingState: "on",
				States:        []string{"on", "off", "broken"},
			}))
			Expect(def.Transitions).To(HaveLen(3))

			m, err := def.Build()
			Expect(err).ToNot(HaveOccurred())
			Expect(m.Name()).To(Equal("light-switch"))
			Expect(m.Start(ctx)).To(Succeed())
			Expect(m.State().Edges()).To(Equal([]string{"turn_off", "overload"}))
			Expect(m.State().PossibleTransitions[0].Description).To(Equal("turn off light switch"))

			s, err := m.Transition(ctx, "overload")
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Current).To(Equal("broken"))
			Expect(s.PossibleTransitions).To(BeEmpty())
		})
		It("fail if the file is missing", func() {
			_, err := definition.Load("testdata/missing.yaml")
			Expect(err).To(HaveOccurred())
		})
	})

	It("can be renamed and extended", func() {
		def, err := definition.Load("testdata/light-switch.yaml")
		Expect(err).ToNot(HaveOccurred())
		entered := 0
		m, err := def.Builder(machina.WithName("hallway")).
			OnEnter("off", func(ctx context.Context, m *machina.Machina[string, string]) error {
				entered++
				return nil
			}).
			BuildAndStart(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(m.Name()).To(Equal("hallway"))
		_, _ = m.Transition(ctx, "turn_off")
		Expect(entered).To(Equal(1))
	})

	DescribeTable("are rejected when invalid",
		func(contents string, reason string) {
			_, err := definition.Parse([]byte(contents))
			Expect(errors.Is(err, definition.ErrInvalidDefinition)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(reason))
		},
		Entry("not YAML", "states: [", "yaml"),
		Entry("no starting state", "states: [a]", "missing starting_state"),
		Entry("unknown starting state", "starting_state: b\nstates: [a]", "unknown starting_state 'b'"),
		Entry("duplicate state", "starting_state: a\nstates: [a, a]", "listed twice"),
		Entry("unknown target", `
starting_state: a
states: [a]
transitions:
  - {from: a, to: b, event: go}`, "transition 'go' (a -> b)"),
		Entry("no event", `
starting_state: a
states: [a]
transitions:
  - {from: a, to: a}`, "has no event"),
	)
})
