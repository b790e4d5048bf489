/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

// Package config holds the CLI settings: defaults come from MACHINA_* environment variables,
// command-line flags override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	Prefix         = "MACHINA_"
	DefaultChannel = "machina-notifications"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Definition    string        `env:"DEFINITION"`
	Events        string        `env:"EVENTS"`
	Notifications string        `env:"NOTIFICATIONS"`
	EndpointURL   string        `env:"ENDPOINT_URL"`
	Redis         string        `env:"REDIS"`
	Cluster       bool          `env:"REDIS_CLUSTER"`
	Timeout       time.Duration `env:"REDIS_TIMEOUT" envDefault:"200ms"`
	MaxRetries    int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	Channel       string        `env:"CHANNEL" envDefault:"machina-notifications"`
	Record        bool          `env:"RECORD"`
	MetricsAddr   string        `env:"METRICS_ADDR"`
	HTTPAddr      string        `env:"HTTP_ADDR"`
	Buffer        int           `env:"BUFFER" envDefault:"100"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads `environ` (keys include the MACHINA_ prefix), or the process environment
// if nil.
func LoadFrom(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix, Environment: environ}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// RegisterFlags binds every setting to a flag in `fs`, using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Definition, "definition", c.Definition,
		"YAML file with the states and transitions of the machina to run")
	fs.StringVar(&c.Events, "events", c.Events,
		"(optional) SQS topic to receive edges from; the machina runs until stopped")
	fs.StringVar(&c.Notifications, "notifications", c.Notifications,
		"(optional) SQS topic to publish the machina's notifications to")
	fs.StringVar(&c.EndpointURL, "endpoint-url", c.EndpointURL,
		"HTTP URL for AWS SQS to connect to; usually best left undefined, "+
			"unless required for local testing purposes (LocalStack uses http://localhost:4566)")
	fs.StringVar(&c.Redis, "redis", c.Redis, "(optional) host:port for the Redis instance, "+
		"or a comma-separated list of nodes when -cluster is set")
	fs.BoolVar(&c.Cluster, "cluster", c.Cluster, "If set, connects to Redis with cluster-mode enabled")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout,
		"Timeout for Redis (as a Duration string, e.g. 1s, 20ms, etc.)")
	fs.IntVar(&c.MaxRetries, "max-retries", c.MaxRetries,
		"Max number of attempts for a recoverable error to be retried against Redis")
	fs.StringVar(&c.Channel, "channel", c.Channel, "Redis Pub/Sub channel for the notifications")
	fs.BoolVar(&c.Record, "record", c.Record,
		"If set, the machina's state and history are recorded in Redis")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr,
		"(optional) address to serve Prometheus metrics on, e.g. :9090")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr,
		"(optional) address to serve the machina's REST API on, e.g. :7399; "+
			"the machina runs until stopped")
	fs.IntVar(&c.Buffer, "buffer", c.Buffer,
		"How many notifications can be queued for each publisher before being dropped")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel,
		"One of trace, debug, info, warn, error or disabled")
}

func (c *Config) Validate() error {
	if c.Definition == "" {
		return fmt.Errorf("%w: a -definition file is required", ErrInvalidConfig)
	}
	if c.Record && c.Redis == "" {
		return fmt.Errorf("%w: -record needs a -redis server", ErrInvalidConfig)
	}
	if c.Buffer < 1 {
		return fmt.Errorf("%w: -buffer must be positive", ErrInvalidConfig)
	}
	return nil
}
