/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package pubsub_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/massenz/go-machina/pkg/machina"
	"github.com/massenz/go-machina/pkg/observable"
	"github.com/massenz/go-machina/pkg/pubsub"
)

var _ = Describe("A Forwarder", func() {
	ctx := context.Background()

	It("copies notifications to its channel", func() {
		ch := make(chan observable.Notification, 10)
		fwd := pubsub.NewForwarder(ch)
		m := lightSwitch("lights")
		m.Subscribe(fwd.Forward, machina.OnKinds(observable.StateEnter))

		_, err := m.Transition(ctx, "turn_off")
		Expect(err).ToNot(HaveOccurred())
		Expect(ch).To(HaveLen(1))
		n := <-ch
		Expect(n.Machina).To(Equal("lights"))
		Expect(n.Value).To(Equal(observable.Change{Old: "on", New: "off"}))
		Expect(fwd.Dropped()).To(BeZero())
	})
	It("drops notifications rather than block a transition", func() {
		ch := make(chan observable.Notification, 1)
		fwd := pubsub.NewForwarder(ch)
		m := lightSwitch("lights")
		m.Subscribe(fwd.Forward)

		s, err := m.Transition(ctx, "turn_off")
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Current).To(Equal("off"))
		Expect(ch).To(HaveLen(1))
		Expect((<-ch).Kind).To(Equal(observable.StateLeave))
		Expect(fwd.Dropped()).To(Equal(int64(2)))
	})
	It("can be read while forwarding", func() {
		ch := make(chan observable.Notification)
		fwd := pubsub.NewForwarder(ch)
		m := lightSwitch("lights")
		m.Subscribe(fwd.Forward)

		go func() {
			defer GinkgoRecover()
			_, err := m.Transition(ctx, "turn_off")
			Expect(err).ToNot(HaveOccurred())
		}()
		Eventually(fwd.Dropped).Should(Equal(int64(3)))
	})
})
