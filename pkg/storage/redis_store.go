/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package storage

import (
	"context"
	"crypto/tls"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/massenz/go-machina/pkg/observable"
	"github.com/massenz/go-machina/pkg/pubsub"
)

// RedisStore keeps the last StateEnter notification of every machina, and the list of the
// edges each one went through.
type RedisStore struct {
	logger     zerolog.Logger
	client     redis.UniversalClient
	Timeout    time.Duration
	MaxRetries int
	// HistoryTTL expires the history of a machina that has not moved for that long.
	HistoryTTL time.Duration
}

/////// Internal methods

// get abstracts away the common functionality of looking for a key in Redis,
// with a given timeout and a number of retries.
func (csm *RedisStore) get(ctx context.Context, key string, value proto.Message) error {
	attemptsLeft := csm.MaxRetries
	csm.logger.Trace().Msgf("Looking up key `%s` (Max retries: %d)", key, attemptsLeft)
	for {
		attemptsLeft--
		data, timedOut, err := csm.withTimeout(ctx, func(ctx context.Context) ([]byte, error) {
			return csm.client.Get(ctx, key).Bytes()
		})
		switch {
		case err == redis.Nil:
			// The key isn't there, no point in retrying
			csm.logger.Debug().Msgf("Key `%s` not found", key)
			return NotFoundError(key)
		case err == nil:
			if err = proto.Unmarshal(data, value); err != nil {
				return InvalidDataError(err.Error())
			}
			return nil
		case !timedOut:
			csm.logger.Error().Err(err).Msg("redis get error")
			return GenericStoreError(err.Error())
		case attemptsLeft <= 0:
			csm.logger.Error().Msg("max retries reached, giving up")
			return TooManyAttempts(key)
		}
		csm.logger.Trace().Msgf("retrying after timeout, attempts left: %d", attemptsLeft)
		csm.wait()
	}
}

func (csm *RedisStore) put(ctx context.Context, key string, value proto.Message, ttl time.Duration) error {
	data, err := proto.Marshal(value)
	if err != nil {
		csm.logger.Error().Err(err).Msg("cannot convert proto to bytes")
		return InvalidDataError(err.Error())
	}
	attemptsLeft := csm.MaxRetries
	csm.logger.Trace().Msgf("Storing key `%s` (Max retries: %d)", key, attemptsLeft)
	for {
		attemptsLeft--
		_, timedOut, err := csm.withTimeout(ctx, func(ctx context.Context) ([]byte, error) {
			return nil, csm.client.Set(ctx, key, data, ttl).Err()
		})
		switch {
		case err == nil:
			csm.logger.Debug().Msgf("stored value for key `%s`", key)
			return nil
		case !timedOut:
			return GenericStoreError(err.Error())
		case attemptsLeft <= 0:
			return TooManyAttempts(key)
		}
		csm.logger.Debug().Msgf("retrying after timeout, attempts left: %d", attemptsLeft)
		csm.wait()
	}
}

// withTimeout runs `cmd` with the store's Timeout, and reports whether it timed out.
func (csm *RedisStore) withTimeout(ctx context.Context,
	cmd func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, csm.Timeout)
	defer cancel()
	data, err := cmd(ctx)
	return data, err != nil && ctx.Err() == context.DeadlineExceeded, err
}

// wait is a helper function that sleeps for a random amount of time between 0 and half second.
// Poor man's backoff.
//
// TODO: should use some form of exponential backoff
func (csm *RedisStore) wait() {
	waitForMsec := rand.Intn(500)
	time.Sleep(time.Duration(waitForMsec) * time.Millisecond)
}

/////// Store implementation

// Health checks that the store is ready to accept connections
func (csm *RedisStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, csm.Timeout)
	defer cancel()

	_, err := csm.client.Ping(ctx).Result()
	if err != nil {
		csm.logger.Error().Err(err).Msg("error pinging redis")
		return GenericStoreError(err.Error())
	}
	return nil
}

// Record stores a StateEnter notification as the machina's current state, and appends the
// edge of a Transition notification to its history; other kinds are ignored.
func (csm *RedisStore) Record(ctx context.Context, n observable.Notification) error {
	if n.Machina == "" {
		return InvalidDataError("unnamed machina")
	}
	switch n.Kind {
	case observable.StateEnter:
		if err := csm.client.SAdd(ctx, MachinasPrefix, n.Machina).Err(); err != nil {
			return GenericStoreError(err.Error())
		}
		return csm.put(ctx, NewKeyForMachina(n.Machina), pubsub.NotificationToProto(n), NeverExpire)
	case observable.Transition:
		data, err := proto.Marshal(pubsub.NotificationToProto(n))
		if err != nil {
			return InvalidDataError(err.Error())
		}
		key := NewKeyForHistory(n.Machina)
		pipe := csm.client.TxPipeline()
		pipe.RPush(ctx, key, data)
		if csm.HistoryTTL > 0 {
			pipe.Expire(ctx, key, csm.HistoryTTL)
		}
		if _, err = pipe.Exec(ctx); err != nil {
			return GenericStoreError(err.Error())
		}
	}
	return nil
}

// GetState returns the notification sent when machina `name` entered its current state.
func (csm *RedisStore) GetState(ctx context.Context, name string) (observable.Notification, error) {
	var s structpb.Struct
	if err := csm.get(ctx, NewKeyForMachina(name), &s); err != nil {
		return observable.Notification{}, err
	}
	return pubsub.NotificationFromProto(&s)
}

// GetHistory returns the Transition notifications of machina `name`, oldest first.
func (csm *RedisStore) GetHistory(ctx context.Context, name string) ([]observable.Notification, error) {
	items, err := csm.client.LRange(ctx, NewKeyForHistory(name), 0, -1).Result()
	if err != nil {
		return nil, GenericStoreError(err.Error())
	}
	history := make([]observable.Notification, 0, len(items))
	for _, item := range items {
		var s structpb.Struct
		if err = proto.Unmarshal([]byte(item), &s); err != nil {
			return nil, InvalidDataError(err.Error())
		}
		n, err := pubsub.NotificationFromProto(&s)
		if err != nil {
			return nil, err
		}
		history = append(history, n)
	}
	csm.logger.Debug().Msgf(ReturningItemsFmt, len(history))
	return history, nil
}

func (csm *RedisStore) GetAllMachinas(ctx context.Context) []string {
	names, err := csm.client.SMembers(ctx, MachinasPrefix).Result()
	if err != nil {
		csm.logger.Error().Err(err).Msg("could not retrieve machinas")
		return nil
	}
	csm.logger.Debug().Msgf(ReturningItemsFmt, len(names))
	return names
}

// Listen records every notification received on `notifications`, until the channel is
// closed or `ctx` is done; failures are logged.
func (csm *RedisStore) Listen(ctx context.Context, notifications <-chan observable.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, more := <-notifications:
			if !more {
				csm.logger.Info().Msg("recorder exiting")
				return
			}
			if err := csm.Record(ctx, n); err != nil {
				csm.logger.Error().Err(err).Str("notification_id", n.ID).Msg("cannot record notification")
			}
		}
	}
}

/////// Constructor methods

// NewRedisClient connects to Redis at `address`, in cluster configuration if isCluster is
// set to true, in which case `address` is a comma-separated list of nodes.
// The db value indicates which database to use; TLS is enabled by the REDIS_TLS env var.
func NewRedisClient(address string, isCluster bool, db int) redis.UniversalClient {
	var tlsConfig *tls.Config
	if os.Getenv("REDIS_TLS") != "" {
		zlog.Info().Msg("Using TLS for Redis connection")
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if isCluster {
		return redis.NewClusterClient(&redis.ClusterOptions{
			TLSConfig: tlsConfig,
			Addrs:     strings.Split(address, ","),
		})
	}
	return redis.NewClient(&redis.Options{
		TLSConfig: tlsConfig,
		Addr:      address,
		DB:        db, // 0 means default DB
	})
}

// NewRedisStoreWithDefaults creates a new RedisStore with all default settings, in a single
// node configuration.
func NewRedisStoreWithDefaults(address string) *RedisStore {
	return NewRedisStore(NewRedisClient(address, false, DefaultRedisDb), DefaultTimeout,
		DefaultMaxRetries)
}

// NewRedisStore creates a new RedisStore using `client`.
//
// Reads and writes of a machina's state are retried up to maxRetries times, if they time
// out after timeout expires.
// Use the [Health] function to check whether the store is reachable.
func NewRedisStore(client redis.UniversalClient, timeout time.Duration, maxRetries int) *RedisStore {
	return &RedisStore{
		logger:     zlog.With().Str("logger", "redis-store").Logger(),
		client:     client,
		Timeout:    timeout,
		MaxRetries: maxRetries,
	}
}
