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
	"github.com/massenz/go-machina/pkg/observable"
)

// SubscribeOption narrows down, or changes the order of, a subscription.
type SubscribeOption func(*subscription)

type subscription struct {
	kind        observable.NotificationType
	filter      any
	insertFirst bool
	once        bool
}

// OnKinds limits the subscription to the given kinds (default: observable.All).
func OnKinds(kind observable.NotificationType) SubscribeOption {
	return func(s *subscription) {
		s.kind = kind
	}
}

// WithFilter only lets through notifications whose new value equals `value`.
//
// `value` must have the machine's state (or edge) type: an untyped constant passed here
// takes its default type, and will never match a named state type. Machina.WithState and
// Machina.WithEdge have the compiler check it.
func WithFilter(value any) SubscribeOption {
	return func(s *subscription) {
		s.filter = value
	}
}

// WithState is WithFilter for one of this machine's states.
func (m *Machina[S, E]) WithState(state S) SubscribeOption {
	return WithFilter(state)
}

// WithEdge is WithFilter for one of this machine's edges.
func (m *Machina[S, E]) WithEdge(edge E) SubscribeOption {
	return WithFilter(edge)
}

// InsertFirst places the observer ahead of all the ones already registered.
func InsertFirst() SubscribeOption {
	return func(s *subscription) {
		s.insertFirst = true
	}
}

// Once unsubscribes the observer right after its first notification.
func Once() SubscribeOption {
	return func(s *subscription) {
		s.once = true
	}
}

// Subscribe registers `callback` on this machine's bus; it returns nil, and registers
// nothing, if `callback` is nil.
func (m *Machina[S, E]) Subscribe(callback observable.Callback, opts ...SubscribeOption) *observable.Observer {
	s := subscription{kind: observable.All}
	for _, opt := range opts {
		opt(&s)
	}
	observer := m.bus.Add(callback, s.kind, s.filter, s.insertFirst, s.once)
	if observer == nil {
		m.logger.Debug().Msg("nil callback, not subscribed")
	}
	return observer
}

// Unsubscribe takes effect from the very next notification.
func (m *Machina[S, E]) Unsubscribe(observer *observable.Observer) bool {
	return m.bus.Remove(observer)
}

func (m *Machina[S, E]) UnsubscribeCallback(callback observable.Callback) bool {
	return m.bus.RemoveCallback(callback)
}
