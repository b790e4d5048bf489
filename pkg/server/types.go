/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

// Package server exposes a running machina over HTTP: its current state, its recorded
// history, and an endpoint to send it edges.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/massenz/go-machina/pkg/machina"
	"github.com/massenz/go-machina/pkg/observable"
	"github.com/massenz/go-machina/pkg/pubsub"
)

const (
	Api             = "/api/v1"
	HealthEndpoint  = "/health"
	MetricsEndpoint = "/metrics"
	MachinaEndpoint = Api + "/machina"
	HistoryEndpoint = MachinaEndpoint + "/history"
	EdgesEndpoint   = Api + "/edges"

	ContentType     = "Content-Type"
	ApplicationJson = "application/json"

	// HttpSender is used for the Sender of requests that do not name one.
	HttpSender = "http"
)

// Recorder is where the history of the machina is kept; a storage.RedisStore is one.
type Recorder interface {
	Health(ctx context.Context) error
	GetHistory(ctx context.Context, name string) ([]observable.Notification, error)
}

// Options configures a Server; Store and Metrics are optional.
type Options struct {
	Machina  *machina.Machina[string, string]
	Listener *pubsub.EdgesListener
	Store    Recorder
	Metrics  http.Handler
}

type Server struct {
	logger   zerolog.Logger
	machina  *machina.Machina[string, string]
	listener *pubsub.EdgesListener
	store    Recorder
	metrics  http.Handler
}

// MessageResponse is returned when a more appropriate response is not available.
type MessageResponse struct {
	Msg   interface{} `json:"message,omitempty"`
	Error string      `json:"error,omitempty"`
}

type TransitionResponse struct {
	Edge        string `json:"edge"`
	Next        string `json:"next"`
	Description string `json:"description,omitempty"`
}

// MachinaResponse describes the machina as it is now.
type MachinaResponse struct {
	Name        string               `json:"name"`
	Started     bool                 `json:"started"`
	State       string               `json:"state"`
	Transitions []TransitionResponse `json:"transitions"`
	Nested      []string             `json:"nested,omitempty"`
}

// SignalRequest is the body of a POST to the EdgesEndpoint.
type SignalRequest struct {
	Edge   string `json:"edge"`
	Sender string `json:"sender,omitempty"`
}

// OutcomeResponse reports what the machina did with a SignalRequest.
type OutcomeResponse struct {
	ID       string `json:"id"`
	Edge     string `json:"edge"`
	Accepted bool   `json:"accepted"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HistoryEntry is one recorded transition.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Edge      string    `json:"edge"`
	Timestamp time.Time `json:"timestamp"`
}
