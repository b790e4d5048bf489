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
	"errors"
	"fmt"
)

var (
	ErrNotStarted     = errors.New("must Start() before Transition(...)")
	ErrAlreadyStarted = errors.New("already started")
	ErrUnknownState   = errors.New("state has no node")
	ErrEdgeType       = errors.New("edge has the wrong type for this machina")
)

// IllegalStateError is returned by Transition on a machine that was never started; it
// matches ErrNotStarted with errors.Is.
type IllegalStateError struct {
	Machina string
}

func (e *IllegalStateError) Error() string {
	if e.Machina == "" {
		return "machina: " + ErrNotStarted.Error()
	}
	return fmt.Sprintf("machina '%s': %v", e.Machina, ErrNotStarted)
}

func (e *IllegalStateError) Unwrap() error {
	return ErrNotStarted
}

// HookError wraps the error returned by a Hook.
// Steps that completed before the failing hook are not rolled back.
type HookError struct {
	Machina string
	// Hook is one of "OnEnter", "OnLeave" or "OnTransition".
	Hook string
	// Target is the state (OnEnter, OnLeave) or the edge (OnTransition) the hook belongs to.
	Target any
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("machina '%s': %s hook for '%v' failed: %v",
		e.Machina, e.Hook, e.Target, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
