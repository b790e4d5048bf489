/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

// Package storage records, in Redis, where every machina is and how it got there.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	NeverExpire       = 0
	DefaultRedisDb    = 0
	DefaultMaxRetries = 3
	DefaultTimeout    = 200 * time.Millisecond
	ReturningItemsFmt = "Returning %d items"

	KeyPrefixComponentsSeparator = ":"
	KeyPrefixIDSeparator         = "#"
	MachinasPrefix               = "machinas"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidData    = errors.New("error storing invalid data")
	ErrTooManyRetries = errors.New("too many attempts")
	ErrStore          = errors.New("store error")
)

func NotFoundError(key string) error {
	return fmt.Errorf("key %s %w", key, ErrNotFound)
}

func InvalidDataError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidData, msg)
}

func TooManyAttempts(key string) error {
	return fmt.Errorf("%w storing %s", ErrTooManyRetries, key)
}

func GenericStoreError(msg string) error {
	return fmt.Errorf("%w: %s", ErrStore, msg)
}

func IsNotFoundErr(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Here we keep all the key definitions for the Redis collections.

// NewKeyForMachina machina#<name>
func NewKeyForMachina(name string) string {
	return strings.Join([]string{"machina", name}, KeyPrefixIDSeparator)
}

// NewKeyForHistory machina:history#<name>
func NewKeyForHistory(name string) string {
	prefix := strings.Join([]string{"machina", "history"}, KeyPrefixComponentsSeparator)
	return strings.Join([]string{prefix, name}, KeyPrefixIDSeparator)
}
