/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

// Package observable is an ordered, filtered notification bus.
//
// Observers are notified in list order; each one filters on a NotificationType mask and,
// optionally, on the `New` value carried by the Notification.
// Observers removed while a Notify pass is running are flagged immediately (so that no
// further pass will call them) but are only dropped from the list once the outermost pass
// has returned.
package observable

import (
	"unsafe"
)

// Observer is the handle returned when registering a Callback with an Observable.
type Observer struct {
	next                 Callback
	kind                 NotificationType
	filter               any
	unregisterOnNextCall bool
	willBeUnregistered   bool
}

func (o *Observer) Kind() NotificationType { return o.kind }
func (o *Observer) Filter() any { return o.filter }
func (o *Observer) Once() bool { return o.unregisterOnNextCall }

// Unregistered is true once the Observer has been removed, even if it is still physically
// in the Observable's list.
func (o *Observer) Unregistered() bool { return o.willBeUnregistered }

func (o *Observer) accepts(n Notification) bool {
	return o.kind.Matches(n.Kind) && (o.filter == nil || o.filter == n.Value.New)
}

// Observable is not safe for concurrent use; it is meant to be driven from the same
// goroutine that owns the machine it serves.
type Observable struct {
	observers  []*Observer
	pending    map[*Observer]struct{}
	dispatches int
	state      EventState
}

func New() *Observable {
	return &Observable{
		pending: make(map[*Observer]struct{}),
	}
}

// Len counts the observers still physically registered, including the ones waiting to be
// dropped at the end of a Notify pass.
func (o *Observable) Len() int {
	return len(o.observers)
}

// Add registers `callback` and returns its Observer, or nil if `callback` is nil.
//
// If `insertFirst` the new Observer goes before all the existing ones; if `once` it is
// removed right after its first invocation.
func (o *Observable) Add(callback Callback, kind NotificationType, filter any,
	insertFirst, once bool) *Observer {
	if callback == nil {
		return nil
	}
	observer := &Observer{
		next:                 callback,
		kind:                 kind,
		filter:               filter,
		unregisterOnNextCall: once,
	}
	if insertFirst {
		// A new slice, so that a Notify pass in flight keeps iterating the old one.
		o.observers = append([]*Observer{observer}, o.observers...)
	} else {
		o.observers = append(o.observers, observer)
	}
	return observer
}

// Remove returns false if `observer` is nil, does not belong to this Observable, or was
// already removed.
func (o *Observable) Remove(observer *Observer) bool {
	if observer == nil || observer.willBeUnregistered {
		return false
	}
	for _, obs := range o.observers {
		if obs == observer {
			o.deferUnregister(obs)
			return true
		}
	}
	return false
}

// RemoveCallback removes the first Observer registered with this very func value.
//
// Func values are not comparable in Go, so they are matched by identity: each closure, and
// each evaluation of a method value such as `c.Observe`, is a different callback. Keep the
// value passed to Add in order to remove it later.
func (o *Observable) RemoveCallback(callback Callback) bool {
	if callback == nil {
		return false
	}
	id := identity(callback)
	for _, obs := range o.observers {
		if obs.willBeUnregistered {
			continue
		}
		if identity(obs.next) == id {
			o.deferUnregister(obs)
			return true
		}
	}
	return false
}

// Notify calls, in order, every Observer accepting `n`.
// It returns false if one of the callbacks set EventState.SkipNextObservers, which ends the
// pass early.
func (o *Observable) Notify(n Notification) bool {
	if len(o.observers) == 0 {
		return true
	}
	o.dispatches++
	defer o.endDispatch()

	state := &o.state
	state.SkipNextObservers = false
	for _, observer := range o.observers {
		if observer.willBeUnregistered {
			continue
		}
		if observer.accepts(n) {
			observer.next(n, state)
			if observer.unregisterOnNextCall {
				o.deferUnregister(observer)
			}
		}
		if state.SkipNextObservers {
			return false
		}
	}
	return true
}

func (o *Observable) deferUnregister(observer *Observer) {
	observer.willBeUnregistered = true
	if o.dispatches > 0 {
		o.pending[observer] = struct{}{}
		return
	}
	o.remove(observer)
}

func (o *Observable) endDispatch() {
	o.dispatches--
	if o.dispatches > 0 || len(o.pending) == 0 {
		return
	}
	for observer := range o.pending {
		o.remove(observer)
		delete(o.pending, observer)
	}
}

// remove must never run while iterating over `observers`.
func (o *Observable) remove(observer *Observer) {
	for i, obs := range o.observers {
		if obs == observer {
			o.observers = append(o.observers[:i:i], o.observers[i+1:]...)
			return
		}
	}
}

// identity is the address of the closure a func value points to, which is unique to each
// closure (and method value) instance.
func identity(callback Callback) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&callback))
}
