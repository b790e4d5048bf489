/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/massenz/go-machina/pkg/machina"
	"github.com/massenz/go-machina/pkg/pubsub"
)

// NewServer serves `options.Machina`; edges are sent through `options.Listener`, so that
// they are serialized with the ones it receives from elsewhere, or a new one if none is given.
func NewServer(options *Options) *Server {
	listener := options.Listener
	if listener == nil {
		listener = pubsub.NewEdgesListener(&pubsub.ListenerOptions{Machine: options.Machina})
	}
	return &Server{
		logger:   log.With().Str("logger", "server").Logger(),
		machina:  options.Machina,
		listener: listener,
		store:    options.Store,
		metrics:  options.Metrics,
	}
}

// NewRouter returns a gorilla/mux Router for the server routes; exposed so
// that handlers are testable.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(HealthEndpoint, s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc(MachinaEndpoint, s.GetMachinaHandler).Methods(http.MethodGet)
	r.HandleFunc(HistoryEndpoint, s.GetHistoryHandler).Methods(http.MethodGet)
	r.HandleFunc(EdgesEndpoint, s.SignalHandler).Methods(http.MethodPost)
	if s.metrics != nil {
		r.Handle(MetricsEndpoint, s.metrics).Methods(http.MethodGet)
	}
	return r
}

func NewHTTPServer(addr string, s *Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *Server) trace(r *http.Request) func() {
	if zerolog.GlobalLevel() > zerolog.TraceLevel {
		return func() {}
	}
	start := time.Now()
	s.logger.Trace().Str("method", r.Method).Str("endpoint", r.RequestURI).Msg("handling")
	return func() {
		s.logger.Trace().Str("endpoint", r.RequestURI).Dur("took", time.Since(start)).Msg("handled")
	}
}

func (s *Server) reply(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Add(ContentType, ApplicationJson)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("cannot encode response")
	}
}

// NOTE: handlers are exported so they can be tested, they are only meant to be reached
// via the router.

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	defer s.trace(r)()
	if s.store != nil {
		if err := s.store.Health(r.Context()); err != nil {
			s.logger.Error().Err(err).Msg("store is not reachable")
			s.reply(w, http.StatusServiceUnavailable, MessageResponse{Msg: "DOWN", Error: err.Error()})
			return
		}
	}
	s.reply(w, http.StatusOK, MessageResponse{Msg: "UP"})
}

func (s *Server) GetMachinaHandler(w http.ResponseWriter, r *http.Request) {
	defer s.trace(r)()
	var res MachinaResponse
	s.listener.Inspect(func() {
		snapshot := s.machina.State()
		res = MachinaResponse{
			Name:        s.machina.Name(),
			Started:     s.machina.Started(),
			State:       snapshot.Current,
			Transitions: make([]TransitionResponse, 0, len(snapshot.PossibleTransitions)),
		}
		for _, t := range snapshot.PossibleTransitions {
			res.Transitions = append(res.Transitions, TransitionResponse{
				Edge:        t.Edge,
				Next:        t.Next,
				Description: t.Description,
			})
		}
		for _, nested := range snapshot.Nested {
			res.Nested = append(res.Nested, nested.Name())
		}
	})
	s.reply(w, http.StatusOK, res)
}

func (s *Server) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	defer s.trace(r)()
	if s.store == nil {
		s.reply(w, http.StatusNotFound, MessageResponse{Error: "history is not recorded"})
		return
	}
	history, err := s.store.GetHistory(r.Context(), s.machina.Name())
	if err != nil {
		s.reply(w, http.StatusInternalServerError, MessageResponse{Error: err.Error()})
		return
	}
	entries := make([]HistoryEntry, 0, len(history))
	for _, n := range history {
		entries = append(entries, HistoryEntry{
			ID:        n.ID,
			Edge:      fmt.Sprint(n.Value.New),
			Timestamp: n.Timestamp,
		})
	}
	s.reply(w, http.StatusOK, entries)
}

func (s *Server) SignalHandler(w http.ResponseWriter, r *http.Request) {
	defer s.trace(r)()
	var body SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.reply(w, http.StatusBadRequest, MessageResponse{Error: err.Error()})
		return
	}
	if body.Sender == "" {
		body.Sender = HttpSender
	}
	outcome := s.listener.Process(r.Context(), pubsub.EdgeRequest{
		ID:        uuid.NewString(),
		Machina:   s.machina.Name(),
		Edge:      body.Edge,
		Sender:    body.Sender,
		Timestamp: time.Now(),
	})
	res := OutcomeResponse{
		ID:       outcome.Request.ID,
		Edge:     outcome.Request.Edge,
		Accepted: outcome.Accepted,
		State:    outcome.State,
	}
	if outcome.Err != nil {
		res.Error = outcome.Err.Error()
	}
	s.reply(w, statusFor(outcome), res)
}

func statusFor(outcome pubsub.Outcome) int {
	switch {
	case outcome.Err == nil && outcome.Accepted:
		return http.StatusOK
	case outcome.Err == nil:
		return http.StatusConflict
	case errors.Is(outcome.Err, pubsub.ErrMissingEdge):
		return http.StatusBadRequest
	case errors.Is(outcome.Err, pubsub.ErrMissingMachina):
		return http.StatusNotFound
	case errors.Is(outcome.Err, machina.ErrNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
