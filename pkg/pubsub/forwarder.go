/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package pubsub

import (
	"github.com/rs/zerolog/log"

	"github.com/massenz/go-machina/pkg/observable"
)

// NewForwarder returns a Forwarder sending to `out`; subscribe its Forward method to a
// machina.
func NewForwarder(out chan<- observable.Notification) *Forwarder {
	return &Forwarder{
		logger: log.With().Str("logger", "forwarder").Logger(),
		out:    out,
	}
}

// Forward never blocks: if `out` is full the notification is dropped, and a warning logged.
func (f *Forwarder) Forward(n observable.Notification, _ *observable.EventState) {
	select {
	case f.out <- n:
	default:
		dropped := f.dropped.Inc()
		f.logger.Warn().
			Str("machina", n.Machina).
			Str("event", n.Event).
			Int64("dropped", dropped).
			Msg("notifications channel full, dropping notification")
	}
}

// Dropped counts the notifications that could not be forwarded; safe to call from any
// goroutine.
func (f *Forwarder) Dropped() int64 {
	return f.dropped.Load()
}
