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
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// NewEdgesListener sends requests to a Machine; the Edge in a request is a string, so the
// Machine must use strings for its edges (as the ones built from a definition.Definition).
func NewEdgesListener(options *ListenerOptions) *EdgesListener {
	return &EdgesListener{
		logger:   log.With().Str("logger", "listener").Logger(),
		machine:  options.Machine,
		requests: options.RequestsChannel,
		outcomes: options.OutcomesChannel,
	}
}

// ListenForMessages runs until the requests channel is closed, or `ctx` is done.
func (listener *EdgesListener) ListenForMessages(ctx context.Context) {
	listener.logger.Info().Msg("edges listener started")
	for {
		select {
		case <-ctx.Done():
			listener.logger.Info().Msg("edges listener cancelled")
			return
		case request, more := <-listener.requests:
			if !more {
				listener.logger.Info().Msg("edges listener exiting")
				return
			}
			listener.reportOutcome(listener.Process(ctx, request))
		}
	}
}

// Process sends the request's edge to the listener's machine.
func (listener *EdgesListener) Process(ctx context.Context, request EdgeRequest) Outcome {
	outcome := Outcome{Request: request}
	logger := listener.logger.With().Str("request_id", request.ID).Str("edge", request.Edge).Logger()
	switch {
	case request.Edge == "":
		outcome.Err = ErrMissingEdge
	case listener.machine == nil:
		outcome.Err = ErrMissingMachina
	case request.Machina != "" && request.Machina != listener.machine.Name():
		outcome.Err = fmt.Errorf("%w: '%s'", ErrMissingMachina, request.Machina)
	default:
		logger.Debug().Msg("sending edge")
		listener.mu.Lock()
		defer listener.mu.Unlock()
		outcome.Accepted, outcome.Err = listener.machine.Signal(ctx, request.Edge)
		outcome.State = fmt.Sprint(listener.machine.Current())
	}
	if outcome.Err != nil {
		logger.Error().Err(outcome.Err).Msg("cannot process request")
	} else if !outcome.Accepted {
		logger.Warn().Str("state", outcome.State).Msg("edge not allowed from current state")
	}
	return outcome
}

// Inspect runs `read` while no request is being processed, so that it sees the machine
// between transitions.
func (listener *EdgesListener) Inspect(read func()) {
	listener.mu.Lock()
	defer listener.mu.Unlock()
	read()
}

func (listener *EdgesListener) reportOutcome(outcome Outcome) {
	if listener.outcomes != nil {
		listener.outcomes <- outcome
	}
}
