/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

// Package pubsub moves a machina's notifications out to message brokers (Redis Pub/Sub and
// SQS) and feeds edges received from SQS back into a machina.
//
// Notification callbacks run inside a transition, so nothing here talks to a broker from
// within a callback: a Forwarder copies notifications onto a channel, and the publishers
// drain it from their own goroutine.
package pubsub

import (
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/massenz/go-machina/pkg/machina"
	"github.com/massenz/go-machina/pkg/observable"
)

var (
	ErrMissingEdge     = errors.New("no edge in request")
	ErrMissingMachina  = errors.New("no machina to send the edge to")
	ErrNoQueue         = errors.New("cannot get SQS queue URL")
	ErrNoRegion        = errors.New("no AWS region configured")
	ErrInvalidEncoding = errors.New("invalid message encoding")
)

// EdgeRequest asks for `Edge` to be sent to the machina named `Machina`.
type EdgeRequest struct {
	ID        string
	Machina   string
	Edge      string
	Sender    string
	Timestamp time.Time
}

// Outcome reports what happened to an EdgeRequest: `Accepted` is false, with a nil `Err`,
// when the machina had no such edge out of its current state.
type Outcome struct {
	Request  EdgeRequest
	Accepted bool
	State    string
	Err      error
}

// EdgesListener applies EdgeRequests to a Machine one at a time, in the order received;
// requests passed directly to Process are serialized with those from the channel.
type EdgesListener struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	machine  machina.Machine
	requests <-chan EdgeRequest
	outcomes chan<- Outcome
}

// ListenerOptions configures an EdgesListener; OutcomesChannel is optional.
type ListenerOptions struct {
	Machine         machina.Machine
	RequestsChannel <-chan EdgeRequest
	OutcomesChannel chan<- Outcome
}

// Forwarder is a notification callback that hands notifications over to a channel.
type Forwarder struct {
	logger  zerolog.Logger
	out     chan<- observable.Notification
	dropped atomic.Int64
}

type RedisPublisher struct {
	logger        zerolog.Logger
	client        redis.UniversalClient
	channel       string
	notifications <-chan observable.Notification
	marshaler     ProtoTextMarshaler
}

type SqsPublisher struct {
	logger        zerolog.Logger
	client        sqsiface.SQSAPI
	notifications <-chan observable.Notification
	marshaler     ProtoTextMarshaler
}

type SqsSubscriber struct {
	logger               zerolog.Logger
	client               sqsiface.SQSAPI
	requests             chan<- EdgeRequest
	marshaler            ProtoTextMarshaler
	Timeout              time.Duration
	PollingInterval      time.Duration
	MessageRemoveRetries int
}

const (
	// DefaultPollingInterval is how often SQS is polled for new messages.
	DefaultPollingInterval = 5 * time.Second

	// DefaultVisibilityTimeout sets how long SQS will wait for the subscriber to remove the
	// message from the queue.
	// See: https://docs.aws.amazon.com/AWSSimpleQueueService/latest/SQSDeveloperGuide/sqs-visibility-timeout.html
	DefaultVisibilityTimeout = 5 * time.Second

	DefaultRetries = 3
)
