/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package storage_test

import (
	"context"
	"errors"
	"time"

	. "github.com/JiaYongfei/respect/gomega"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/massenz/go-machina/pkg/machina"
	"github.com/massenz/go-machina/pkg/observable"
	"github.com/massenz/go-machina/pkg/storage"
)

var _ = Describe("RedisStore", func() {
	var (
		ctx    = context.Background()
		server *miniredis.Miniredis
		store  *storage.RedisStore
		rdb    *redis.Client
	)
	BeforeEach(func() {
		server = miniredis.NewMiniRedis()
		Expect(server.Start()).To(Succeed())
		store = storage.NewRedisStoreWithDefaults(server.Addr())
		// Goes "behind the back" of the store, to check what it wrote.
		rdb = redis.NewClient(&redis.Options{Addr: server.Addr()})
	})
	AfterEach(func() {
		_ = rdb.Close()
		server.Close()
	})

	It("is healthy when Redis is up", func() {
		Expect(store.Health(ctx)).To(Succeed())
		server.Close()
		Expect(errors.Is(store.Health(ctx), storage.ErrStore)).To(BeTrue())
	})
	It("records the current state", func() {
		n := observable.NewNotification("lights", observable.StateEnter, "on", "off")
		Expect(store.Record(ctx, n)).To(Succeed())
		Expect(server.Exists(storage.NewKeyForMachina("lights"))).To(BeTrue())

		found, err := store.GetState(ctx, "lights")
		Expect(err).ToNot(HaveOccurred())
		Expect(found).To(Respect(observable.Notification{
			ID:      n.ID,
			Machina: "lights",
			Kind:    observable.StateEnter,
			Value:   observable.Change{Old: "on", New: "off"},
		}))
		Expect(store.GetAllMachinas(ctx)).To(ConsistOf("lights"))
	})
	It("records the edges a machina went through", func() {
		ch := make(chan observable.Notification, 10)
		m, err := machina.NewBuilder[string, string]("on", machina.WithName("hall")).
			AddState("on", machina.Transition[string, string]{Edge: "turn_off", Next: "off"}).
			AddState("off", machina.Transition[string, string]{Edge: "turn_on", Next: "on"}).
			Build()
		Expect(err).ToNot(HaveOccurred())
		m.Subscribe(func(n observable.Notification, _ *observable.EventState) { ch <- n })
		Expect(m.Start(ctx)).To(Succeed())
		_, _ = m.Transition(ctx, "turn_off")
		_, _ = m.Transition(ctx, "turn_on")
		_, _ = m.Transition(ctx, "turn_off")
		close(ch)
		store.Listen(ctx, ch)

		history, err := store.GetHistory(ctx, "hall")
		Expect(err).ToNot(HaveOccurred())
		var edges []interface{}
		for _, n := range history {
			Expect(n.Kind).To(Equal(observable.Transition))
			edges = append(edges, n.Value.New)
		}
		Expect(edges).To(Equal([]interface{}{"turn_off", "turn_on", "turn_off"}))

		state, err := store.GetState(ctx, "hall")
		Expect(err).ToNot(HaveOccurred())
		Expect(state.Value.New).To(Equal("off"))
		Expect(rdb.LLen(ctx, storage.NewKeyForHistory("hall")).Val()).To(Equal(int64(3)))
	})
	It("expires idle histories", func() {
		store.HistoryTTL = time.Minute
		Expect(store.Record(ctx,
			observable.NewNotification("lights", observable.Transition, nil, "turn_off"))).To(Succeed())
		Expect(server.TTL(storage.NewKeyForHistory("lights"))).To(Equal(time.Minute))
		server.FastForward(2 * time.Minute)
		history, err := store.GetHistory(ctx, "lights")
		Expect(err).ToNot(HaveOccurred())
		Expect(history).To(BeEmpty())
	})
	It("ignores StateLeave notifications", func() {
		Expect(store.Record(ctx,
			observable.NewNotification("lights", observable.StateLeave, "on", "off"))).To(Succeed())
		Expect(server.Keys()).To(BeEmpty())
	})
	It("refuses unnamed machinas", func() {
		err := store.Record(ctx, observable.NewNotification("", observable.StateEnter, nil, "on"))
		Expect(errors.Is(err, storage.ErrInvalidData)).To(BeTrue())
	})
	It("reports unknown machinas", func() {
		_, err := store.GetState(ctx, "nowhere")
		Expect(storage.IsNotFoundErr(err)).To(BeTrue())
		Expect(err.Error()).To(Equal("key machina#nowhere not found"))
		history, err := store.GetHistory(ctx, "nowhere")
		Expect(err).ToNot(HaveOccurred())
		Expect(history).To(BeEmpty())
	})
	It("reports corrupted data", func() {
		Expect(rdb.Set(ctx, storage.NewKeyForMachina("broken"), "not a proto", 0).Err()).To(Succeed())
		_, err := store.GetState(ctx, "broken")
		Expect(err).To(HaveOccurred())
		Expect(storage.IsNotFoundErr(err)).To(BeFalse())
	})
	It("stops listening when cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		done := make(chan interface{})
		go func() {
			defer close(done)
			store.Listen(cctx, make(chan observable.Notification))
		}()
		cancel()
		Eventually(done).Should(BeClosed())
	})
})
