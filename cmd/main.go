/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/massenz/go-machina/pkg/definition"
	"github.com/massenz/go-machina/internal/config"
	"github.com/massenz/go-machina/pkg/logging"
	"github.com/massenz/go-machina/pkg/machina"
	"github.com/massenz/go-machina/pkg/metrics"
	"github.com/massenz/go-machina/pkg/observable"
	"github.com/massenz/go-machina/pkg/pubsub"
	"github.com/massenz/go-machina/pkg/server"
	"github.com/massenz/go-machina/pkg/storage"
	"github.com/massenz/go-machina/pkg/telemetry"
)

var (
	logger zerolog.Logger
	wg     sync.WaitGroup

	// sinks are the channels the machina's notifications are forwarded to, one per
	// publisher; they are closed once the machina stops moving.
	sinks []chan observable.Notification
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)
	var debug = flag.Bool("debug", false,
		"Verbose logs; better to avoid on Production services")
	var trace = flag.Bool("trace", false,
		"Extremely verbose logs for every transition and Pub/Sub event (will override the -debug option)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -definition FILE [flags] [edge ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level := cfg.LogLevel
	if *debug || *trace {
		level = logging.FromFlags(*debug, *trace)
	}
	if err = logging.Configure(level, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger = logging.NewLogger("machina-cli")
	if err = cfg.Validate(); err != nil {
		flag.Usage()
		logger.Fatal().Err(err).Msg("fatal configuration error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err = run(ctx, cfg, flag.Args()); err != nil {
		logger.Fatal().Err(err).Msg("machina failed")
	}
	logger.Info().Msg("...done. Goodbye.")
}

func run(ctx context.Context, cfg *config.Config, edges []string) error {
	def, err := definition.Load(cfg.Definition)
	if err != nil {
		return err
	}
	m, err := def.Build(machina.WithLogger(logging.NewLogger("machina")))
	if err != nil {
		return err
	}
	logger = logger.With().Str("machina", m.Name()).Logger()
	m.Subscribe(logNotification)

	collector := metrics.New(prometheus.DefaultRegisterer)
	m.Subscribe(collector.Observe)
	tracer := telemetry.NewTracer(ctx)
	m.Subscribe(tracer.Observe)
	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, cfg.MetricsAddr)
	}

	pubCtx, cancelPublishers := context.WithCancel(context.Background())
	defer cancelPublishers()
	store, err := startPublishers(pubCtx, cfg, m)
	if err != nil {
		return err
	}

	if err = m.Start(ctx); err != nil {
		tracer.Abandon(m.Name(), err)
		return err
	}
	for _, edge := range edges {
		if err = apply(ctx, m, edge); err != nil {
			tracer.Abandon(m.Name(), err)
			break
		}
	}
	if err == nil && (cfg.Events != "" || cfg.HTTPAddr != "") {
		err = serve(ctx, cfg, m, store)
	}

	// Lets the publishers drain what was already forwarded to them.
	for _, ch := range sinks {
		close(ch)
	}
	logger.Info().Msg("waiting for publishers to exit...")
	wg.Wait()
	return err
}

func apply(ctx context.Context, m *machina.Machina[string, string], edge string) error {
	s, err := m.Transition(ctx, edge)
	if err != nil {
		return err
	}
	if s == nil {
		logger.Warn().Str("edge", edge).Str("state", m.State().Current).
			Msg("edge not allowed from current state, ignored")
	}
	return nil
}

// forward subscribes a new Forwarder to `m`, and returns the channel it forwards to.
func forward(cfg *config.Config, m *machina.Machina[string, string]) <-chan observable.Notification {
	ch := make(chan observable.Notification, cfg.Buffer)
	sinks = append(sinks, ch)
	m.Subscribe(pubsub.NewForwarder(ch).Forward)
	return ch
}

// startPublishers returns the store the machina is recorded in, if any.
func startPublishers(ctx context.Context, cfg *config.Config,
	m *machina.Machina[string, string]) (*storage.RedisStore, error) {
	var store *storage.RedisStore
	if cfg.Redis != "" {
		logger.Info().
			Str("redis_addr", cfg.Redis).
			Bool("redis_cluster", cfg.Cluster).
			Str("redis_channel", cfg.Channel).
			Msg("publishing notifications to Redis")
		client := storage.NewRedisClient(cfg.Redis, cfg.Cluster, storage.DefaultRedisDb)
		pub := pubsub.NewRedisPublisher(forward(cfg, m), client, cfg.Channel)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Publish(ctx)
		}()

		if cfg.Record {
			store = storage.NewRedisStore(client, cfg.Timeout, cfg.MaxRetries)
			if err := store.Health(ctx); err != nil {
				return nil, err
			}
			ch := forward(cfg, m)
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.Listen(ctx, ch)
			}()
		}
	}
	if cfg.Notifications != "" {
		logger.Info().
			Str("sqs_topic", cfg.Notifications).
			Str("sqs_endpoint", cfg.EndpointURL).
			Msg("publishing notifications to SQS")
		client, err := pubsub.NewSqsClient(cfg.EndpointURL)
		if err != nil {
			return nil, err
		}
		pub := pubsub.NewSqsPublisher(forward(cfg, m), client)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pub.Publish(cfg.Notifications); err != nil {
				logger.Error().Err(err).Msg("SQS publisher failed")
			}
		}()
	}
	return store, nil
}

// serve applies the edges received from SQS and over HTTP until `ctx` is done.
func serve(ctx context.Context, cfg *config.Config, m *machina.Machina[string, string],
	store *storage.RedisStore) error {
	requests := make(chan pubsub.EdgeRequest)
	listener := pubsub.NewEdgesListener(&pubsub.ListenerOptions{
		Machine:         m,
		RequestsChannel: requests,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		listener.ListenForMessages(ctx)
	}()

	if cfg.HTTPAddr != "" {
		options := &server.Options{Machina: m, Listener: listener, Metrics: promhttp.Handler()}
		if store != nil {
			options.Store = store
		}
		svr := server.NewHTTPServer(cfg.HTTPAddr, server.NewServer(options))
		go func() {
			logger.Info().Str("http_addr", cfg.HTTPAddr).Msg("serving REST API")
			if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("HTTP server exited with error")
			}
		}()
		defer func() {
			_ = svr.Shutdown(context.Background())
		}()
	}

	var err error
	logger.Info().Msg("machina ready for processing edges...")
	if cfg.Events != "" {
		logger.Info().
			Str("sqs_topic", cfg.Events).
			Str("sqs_endpoint", cfg.EndpointURL).
			Msg("connecting to SQS topic for incoming edges")
		var client sqsiface.SQSAPI
		if client, err = pubsub.NewSqsClient(cfg.EndpointURL); err == nil {
			err = pubsub.NewSqsSubscriber(requests, client).Subscribe(ctx, cfg.Events)
		}
	} else {
		<-ctx.Done()
	}
	// Nothing sends on `requests` past this point; HTTP edges go straight to the listener.
	close(requests)
	<-done
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Info().Msg("shutting down services...")
	}
	return err
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	svr := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info().Str("metrics_addr", addr).Msg("serving metrics")
		if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server exited with error")
		}
	}()
	go func() {
		<-ctx.Done()
		_ = svr.Shutdown(context.Background())
	}()
}

func logNotification(n observable.Notification, _ *observable.EventState) {
	logger.Info().
		Str("event", n.Event).
		Interface("old", n.Value.Old).
		Interface("new", n.Value.New).
		Msg("notification")
}
