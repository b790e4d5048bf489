/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

// Package telemetry traces transitions with OpenTelemetry: a span is opened when a machina
// leaves a state, and ended once it has entered the next one.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/massenz/go-machina/pkg/observable"
)

const (
	TracerName     = "github.com/massenz/go-machina"
	TransitionSpan = "machina.transition"
	StartSpan      = "machina.start"
)

type open struct {
	ctx  context.Context
	span trace.Span
}

// Tracer is a notification callback; subscribe its Observe method to the machinas to trace.
//
// Hooks may trigger a transition while another one is still running: the spans of every
// machina are kept on a stack, so the inner transition's span is a child of the outer one.
type Tracer struct {
	ctx    context.Context
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string][]open
}

// NewTracer uses the global TracerProvider; spans with no open parent are children of `ctx`.
func NewTracer(ctx context.Context) *Tracer {
	return &Tracer{
		ctx:    ctx,
		tracer: otel.Tracer(TracerName),
		spans:  make(map[string][]open),
	}
}

func (t *Tracer) Observe(n observable.Notification, _ *observable.EventState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stack := t.spans[n.Machina]
	switch n.Kind {
	case observable.StateLeave:
		parent := t.ctx
		if len(stack) > 0 {
			parent = stack[len(stack)-1].ctx
		}
		ctx, span := t.tracer.Start(parent, TransitionSpan, trace.WithAttributes(
			attribute.String("machina", n.Machina),
			attribute.String("from", fmt.Sprint(n.Value.Old)),
			attribute.String("to", fmt.Sprint(n.Value.New)),
		))
		t.spans[n.Machina] = append(stack, open{ctx: ctx, span: span})
	case observable.Transition:
		if len(stack) > 0 {
			stack[len(stack)-1].span.SetAttributes(attribute.String("edge", fmt.Sprint(n.Value.New)))
		}
	case observable.StateEnter:
		if n.Value.Old == nil {
			_, span := t.tracer.Start(t.ctx, StartSpan, trace.WithAttributes(
				attribute.String("machina", n.Machina),
				attribute.String("to", fmt.Sprint(n.Value.New)),
			))
			span.End()
			return
		}
		if len(stack) == 0 {
			return
		}
		top := stack[len(stack)-1]
		top.span.SetStatus(codes.Ok, "")
		top.span.End()
		if len(stack) == 1 {
			delete(t.spans, n.Machina)
		} else {
			t.spans[n.Machina] = stack[:len(stack)-1]
		}
	}
}

// Abandon ends, with an error status, every span still open for machina `name`; a span stays
// open when a hook fails half-way through a transition.
func (t *Tracer) Abandon(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stack := t.spans[name]
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i].span.RecordError(err)
		stack[i].span.SetStatus(codes.Error, err.Error())
		stack[i].span.End()
	}
	delete(t.spans, name)
}

// Open counts the spans not yet ended for machina `name`.
func (t *Tracer) Open(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans[name])
}
