/*
 * Copyright (c) 2022 AlertAvert.com.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Author: Marco Massenzio (marco@alertavert.com)
 */

package pubsub

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/massenz/go-machina/pkg/observable"
)

// NewRedisPublisher publishes the notifications received on `notifications` to the Redis
// Pub/Sub `channel`.
func NewRedisPublisher(notifications <-chan observable.Notification, client redis.UniversalClient,
	channel string) *RedisPublisher {
	return &RedisPublisher{
		logger:        log.With().Str("logger", "Redis-Pub").Str("channel", channel).Logger(),
		client:        client,
		channel:       channel,
		notifications: notifications,
		marshaler:     defaultMarshaler,
	}
}

// Publish runs until the notifications channel is closed, or `ctx` is done.
// Notifications that cannot be published are logged and dropped.
func (p *RedisPublisher) Publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Redis publisher cancelled")
			return
		case n, more := <-p.notifications:
			if !more {
				p.logger.Info().Msg("Redis publisher exiting")
				return
			}
			p.publish(ctx, n)
		}
	}
}

func (p *RedisPublisher) publish(ctx context.Context, n observable.Notification) {
	body, err := p.marshaler.MarshalToText(NotificationToProto(n))
	if err != nil {
		p.logger.Error().Err(err).Str("notification_id", n.ID).Msg("cannot marshal notification")
		return
	}
	receivers, err := p.client.Publish(ctx, p.channel, body).Result()
	if err != nil {
		p.logger.Error().Err(err).Str("notification_id", n.ID).Msg("cannot publish notification")
		return
	}
	p.logger.Trace().Int64("receivers", receivers).Str("notification_id", n.ID).Msg("published")
}
