/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

// Package metrics counts a machina's notifications with Prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/massenz/go-machina/pkg/observable"
)

// Collector is a notification callback; subscribe its Observe method to every machina that
// should be measured.
type Collector struct {
	stateEnterTotal *prometheus.CounterVec
	stateLeaveTotal *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	currentState    *prometheus.GaugeVec
}

// New registers the collector's metrics with `reg` (prometheus.DefaultRegisterer if nil).
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		stateEnterTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "machina_state_enter_total",
			Help: "Total number of times a state was entered, by machina and state",
		}, []string{"machina", "state"}),
		stateLeaveTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "machina_state_leave_total",
			Help: "Total number of times a state was left, by machina and state",
		}, []string{"machina", "state"}),
		transitionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "machina_transitions_total",
			Help: "Total number of edges traversed, by machina and edge",
		}, []string{"machina", "edge"}),
		currentState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "machina_current_state",
			Help: "1 for the state a machina is in, 0 for the states it left",
		}, []string{"machina", "state"}),
	}
}

func (c *Collector) Observe(n observable.Notification, _ *observable.EventState) {
	name := sanitizeMachina(n.Machina)
	switch n.Kind {
	case observable.StateEnter:
		state := fmt.Sprint(n.Value.New)
		c.stateEnterTotal.WithLabelValues(name, state).Inc()
		c.currentState.WithLabelValues(name, state).Set(1)
	case observable.StateLeave:
		state := fmt.Sprint(n.Value.Old)
		c.stateLeaveTotal.WithLabelValues(name, state).Inc()
		c.currentState.WithLabelValues(name, state).Set(0)
	case observable.Transition:
		c.transitionTotal.WithLabelValues(name, fmt.Sprint(n.Value.New)).Inc()
	}
}

func sanitizeMachina(name string) string {
	if name == "" {
		return "unnamed"
	}
	return name
}
