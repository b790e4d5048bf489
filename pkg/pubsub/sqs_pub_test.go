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
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/massenz/go-machina/pkg/observable"
	"github.com/massenz/go-machina/pkg/pubsub"
)

var _ = Describe("SQS Publisher", func() {
	var (
		client          *fakeSqs
		testPublisher   *pubsub.SqsPublisher
		notificationsCh chan observable.Notification
		done            chan error
	)
	BeforeEach(func() {
		client = newFakeSqs(notificationsQueue)
		notificationsCh = make(chan observable.Notification)
		testPublisher = pubsub.NewSqsPublisher(notificationsCh, client)
		done = make(chan error, 1)
	})
	publish := func(topic string) {
		go func() {
			done <- testPublisher.Publish(topic)
		}()
	}
	exited := func() error {
		select {
		case err := <-done:
			return err
		case <-time.After(timeout):
			Fail("timed out waiting for Publisher to exit")
		}
		return nil
	}

	It("can publish notifications", func() {
		publish(notificationsQueue)
		sent := observable.NewNotification("lights", observable.StateLeave, "on", "off")
		notificationsCh <- sent
		close(notificationsCh)
		Expect(exited()).To(Succeed())

		msgs := client.drain(notificationsQueue)
		Expect(msgs).To(HaveLen(1))
		n, err := pubsub.DecodeNotification(*msgs[0].Body)
		Expect(err).ToNot(HaveOccurred())
		Expect(n.ID).To(Equal(sent.ID))
		Expect(n.Event).To(Equal("StateLeave"))
		Expect(n.Value).To(Equal(observable.Change{Old: "on", New: "off"}))
	})
	It("will terminate gracefully when the notifications channel is closed", func() {
		publish(notificationsQueue)
		close(notificationsCh)
		Expect(exited()).To(Succeed())
		Expect(client.drain(notificationsQueue)).To(BeEmpty())
	})
	It("will survive SQS errors", func() {
		client.failSend = true
		publish(notificationsQueue)
		notificationsCh <- observable.NewNotification("lights", observable.StateEnter, nil, "on")
		close(notificationsCh)
		Expect(exited()).To(Succeed())
		Expect(client.drain(notificationsQueue)).To(BeEmpty())
	})
	It("fails for unknown queues", func() {
		publish("no-such-queue")
		err := exited()
		Expect(errors.Is(err, pubsub.ErrNoQueue)).To(BeTrue())
	})
})
