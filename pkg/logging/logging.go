/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

// Package logging holds the global zerolog setup shared by the CLI and the integrations.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const DefaultLevel = "info"

var levels = map[string]zerolog.Level{
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"disabled": zerolog.Disabled,
	"none":     zerolog.Disabled,
}

// ParseLevel accepts the level names in any case; an empty name is the DefaultLevel.
func ParseLevel(name string) (zerolog.Level, error) {
	name = cases.Lower(language.Und).String(strings.TrimSpace(name))
	if name == "" {
		name = DefaultLevel
	}
	level, found := levels[name]
	if !found {
		return zerolog.NoLevel, fmt.Errorf("unknown log level '%s'", name)
	}
	return level, nil
}

// Configure sets the global level and sends the root logger to `out` (os.Stderr if nil).
func Configure(level string, out io.Writer) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if out == nil {
		out = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(l)
	log.Logger = log.Output(out)
	return nil
}

// FromFlags picks the level from the -debug / -trace flags; -trace wins if both are set.
func FromFlags(debug, trace bool) string {
	switch {
	case trace:
		return "trace"
	case debug:
		return "debug"
	}
	return DefaultLevel
}

// NewLogger returns a child of the root logger, tagged with the component's name.
func NewLogger(name string) zerolog.Logger {
	return log.With().Str("logger", name).Logger()
}
