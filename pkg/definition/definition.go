/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

// Package definition loads string-typed machines from YAML.
//
//	name: light-switch
//	starting_state: "on"
//	states: ["on", "off"]
//	transitions:
//	  - {from: "on", to: "off", event: turn_off, description: "turn off light switch"}
//	  - {from: "off", to: "on", event: turn_on}
package definition

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/massenz/go-machina/pkg/machina"
)

var (
	ErrInvalidDefinition = errors.New("invalid definition")
)

type Transition struct {
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	Event       string `yaml:"event"`
	Description string `yaml:"description,omitempty"`
}

type Definition struct {
	Name          string       `yaml:"name"`
	States        []string     `yaml:"states"`
	Transitions   []Transition `yaml:"transitions"`
	StartingState string       `yaml:"starting_state"`
}

// Load reads and validates the definition in `path`.
func Load(path string) (*Definition, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(contents)
}

func Parse(contents []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(contents, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks that the starting state, and both ends of every transition, are listed
// in `states`.
func (d *Definition) Validate() error {
	if d.StartingState == "" {
		return fmt.Errorf("%w: missing starting_state", ErrInvalidDefinition)
	}
	known := make(map[string]bool, len(d.States))
	for _, s := range d.States {
		if known[s] {
			return fmt.Errorf("%w: state '%s' listed twice", ErrInvalidDefinition, s)
		}
		known[s] = true
	}
	if !known[d.StartingState] {
		return fmt.Errorf("%w: unknown starting_state '%s'", ErrInvalidDefinition, d.StartingState)
	}
	for _, t := range d.Transitions {
		if t.Event == "" {
			return fmt.Errorf("%w: transition from '%s' has no event", ErrInvalidDefinition, t.From)
		}
		if !known[t.From] || !known[t.To] {
			return fmt.Errorf("%w: transition '%s' (%s -> %s) uses an unknown state",
				ErrInvalidDefinition, t.Event, t.From, t.To)
		}
	}
	return nil
}

// Builder returns a Builder holding every state and transition, in the order they are
// listed; hooks and nested machines can be added to it before building.
// The definition's name is used unless `opts` name the machine.
func (d *Definition) Builder(opts ...machina.Option) *machina.Builder[string, string] {
	opts = append([]machina.Option{machina.WithName(d.Name)}, opts...)
	b := machina.NewBuilder[string, string](d.StartingState, opts...)
	for _, s := range d.States {
		b.AddState(s)
	}
	for _, t := range d.Transitions {
		b.AddState(t.From, machina.Transition[string, string]{
			Edge:        t.Event,
			Next:        t.To,
			Description: t.Description,
		})
	}
	return b
}

func (d *Definition) Build(opts ...machina.Option) (*machina.Machina[string, string], error) {
	return d.Builder(opts...).Build()
}
