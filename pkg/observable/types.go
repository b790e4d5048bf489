/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package observable

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NotificationType is a bitmask: an Observer registered for a mask is notified of any
// Notification whose Kind overlaps it.
type NotificationType uint8

const (
	None       NotificationType = 0
	StateEnter NotificationType = 1
	StateLeave NotificationType = 1 << 1
	Transition NotificationType = 1 << 2
	All                         = StateEnter | StateLeave | Transition
)

var labels = []struct {
	kind  NotificationType
	label string
}{
	{StateEnter, "StateEnter"},
	{StateLeave, "StateLeave"},
	{Transition, "Transition"},
}

func (n NotificationType) String() string {
	switch n {
	case None:
		return "None"
	case All:
		return "All"
	}
	var parts []string
	for _, l := range labels {
		if n&l.kind != 0 {
			parts = append(parts, l.label)
		}
	}
	return strings.Join(parts, "|")
}

// Matches reports whether any of the kinds in `other` is also in `n`.
func (n NotificationType) Matches(other NotificationType) bool {
	return n&other != 0
}

// Change carries the previous and the current value for a Notification; `Old` is nil for
// Transition notifications and for the initial StateEnter.
type Change struct {
	Old any
	New any
}

// Notification is what every Observer receives.
type Notification struct {
	ID        string
	Machina   string
	Kind      NotificationType
	Event     string
	Value     Change
	Timestamp time.Time
}

// NewNotification stamps a fresh ID and time on a Notification of the given kind.
func NewNotification(machina string, kind NotificationType, prev, next any) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Machina:   machina,
		Kind:      kind,
		Event:     kind.String(),
		Value:     Change{Old: prev, New: next},
		Timestamp: time.Now(),
	}
}

// EventState is shared by all the observers during a single Notify pass.
type EventState struct {
	// SkipNextObservers, if set by a Callback, stops the current Notify pass.
	SkipNextObservers bool
}

// Callback is invoked synchronously for every matching Notification.
type Callback func(n Notification, state *EventState)
