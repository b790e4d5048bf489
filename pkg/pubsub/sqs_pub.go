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
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/rs/zerolog/log"

	"github.com/massenz/go-machina/pkg/observable"
)

// NewSqsPublisher will create a new `Publisher` to send the notifications received on
// `channel` to an SQS queue.
func NewSqsPublisher(channel <-chan observable.Notification, client sqsiface.SQSAPI) *SqsPublisher {
	return &SqsPublisher{
		logger:        log.With().Str("logger", "SQS-Pub").Logger(),
		client:        client,
		notifications: channel,
		marshaler:     defaultMarshaler,
	}
}

// Publish receives notifications from the SqsPublisher channel, and sends a message to
// `topic`, until the channel is closed.
// It only fails if the queue for `topic` cannot be found.
func (s *SqsPublisher) Publish(topic string) error {
	queueUrl, err := GetQueueUrl(s.client, topic)
	if err != nil {
		return err
	}
	s.logger = s.logger.With().Str("topic", topic).Logger()
	delay := int64(0)
	for n := range s.notifications {
		body, err := s.marshaler.MarshalToText(NotificationToProto(n))
		if err != nil {
			s.logger.Error().Err(err).Str("notification_id", n.ID).Msg("cannot marshal notification")
			continue
		}
		msgResult, err := s.client.SendMessage(&sqs.SendMessageInput{
			DelaySeconds: &delay,
			MessageBody:  aws.String(body),
			QueueUrl:     &queueUrl,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("notification_id", n.ID).Msg("cannot publish notification")
			continue
		}
		s.logger.Debug().Msgf("notification successfully posted to SQS: %s", aws.StringValue(msgResult.MessageId))
	}
	s.logger.Info().Msg("SQS publisher exiting")
	return nil
}
