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
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"
)

// NewSqsSubscriber will create a new `Subscriber` to listen to incoming EdgeRequests from a
// SQS queue.
func NewSqsSubscriber(requests chan<- EdgeRequest, client sqsiface.SQSAPI) *SqsSubscriber {
	return &SqsSubscriber{
		logger:               log.With().Str("logger", "SQS-Sub").Logger(),
		client:               client,
		requests:             requests,
		marshaler:            defaultMarshaler,
		Timeout:              DefaultVisibilityTimeout,
		PollingInterval:      DefaultPollingInterval,
		MessageRemoveRetries: DefaultRetries,
	}
}

// Subscribe runs until `ctx` is done, polling `topic` for incoming EdgeRequests.
//
// Messages are processed, and removed from the queue, in the order received; a message that
// cannot be decoded is logged and removed.
func (s *SqsSubscriber) Subscribe(ctx context.Context, topic string) error {
	queueUrl, err := GetQueueUrl(s.client, topic)
	if err != nil {
		return err
	}
	s.logger = s.logger.With().Str("topic", topic).Str("queue", queueUrl).Logger()
	s.logger.Info().Msg("SQS subscriber started")

	timeout := int64(s.Timeout.Seconds())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("SQS Subscriber terminating")
			return nil
		default:
		}
		start := time.Now()
		s.logger.Trace().Msgf("Polling SQS at %v", start)
		msgResult, err := s.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
			AttributeNames: []*string{
				aws.String(sqs.MessageSystemAttributeNameSentTimestamp),
			},
			MessageAttributeNames: []*string{
				aws.String(sqs.QueueAttributeNameAll),
			},
			QueueUrl:            &queueUrl,
			MaxNumberOfMessages: aws.Int64(10),
			VisibilityTimeout:   &timeout,
		})
		if err == nil {
			if len(msgResult.Messages) > 0 {
				s.logger.Debug().Msgf("Got %d messages", len(msgResult.Messages))
			} else {
				s.logger.Trace().Msg("no messages in queue")
			}
			for _, msg := range msgResult.Messages {
				s.ProcessMessage(ctx, msg, queueUrl)
			}
		} else if ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("error receiving SQS message")
		}
		timeLeft := s.PollingInterval - time.Since(start)
		if timeLeft > 0 {
			s.logger.Trace().Msgf("sleeping for %v", timeLeft)
			select {
			case <-ctx.Done():
			case <-time.After(timeLeft):
			}
		}
	}
}

// ProcessMessage decodes `msg` and sends the EdgeRequest it carries on the requests channel,
// then removes it from the queue; undelivered requests are left for SQS to redeliver.
func (s *SqsSubscriber) ProcessMessage(ctx context.Context, msg *sqs.Message, queueUrl string) {
	logger := s.logger.With().Str("message_id", aws.StringValue(msg.MessageId)).Logger()
	logger.Trace().Msg("processing SQS message")

	request, err := s.decode(msg)
	if err != nil {
		logger.Error().Err(err).Msg("message is not a valid request")
		s.remove(msg, queueUrl)
		return
	}
	select {
	case s.requests <- request:
		s.remove(msg, queueUrl)
	case <-ctx.Done():
		logger.Warn().Str("request_id", request.ID).Msg("request not delivered, subscriber terminating")
	}
}

func (s *SqsSubscriber) decode(msg *sqs.Message) (EdgeRequest, error) {
	if msg.Body == nil {
		return EdgeRequest{}, fmt.Errorf("%w: message has no body", ErrInvalidEncoding)
	}
	var body structpb.Struct
	if err := s.marshaler.UnmarshalFromText(*msg.Body, &body); err != nil {
		return EdgeRequest{}, err
	}
	return EdgeRequestFromProto(&body)
}

func (s *SqsSubscriber) remove(msg *sqs.Message, queueUrl string) {
	for i := 0; i < s.MessageRemoveRetries; i++ {
		_, err := s.client.DeleteMessage(&sqs.DeleteMessageInput{
			QueueUrl:      &queueUrl,
			ReceiptHandle: msg.ReceiptHandle,
		})
		if err == nil {
			s.logger.Trace().Msgf("message %v removed", aws.StringValue(msg.MessageId))
			return
		}
		s.logger.Error().Err(err).Int("attempt", i+1).
			Msgf("failed to remove message %v from SQS", aws.StringValue(msg.MessageId))
	}
}
