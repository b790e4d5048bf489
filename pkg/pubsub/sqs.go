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
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
)

// NewSqsClient connects to AWS and obtains an SQS client; an empty `awsEndpointUrl` will
// connect by default to AWS; use a different (possibly local) URL for a LocalStack test deployment.
func NewSqsClient(awsEndpointUrl string) (sqsiface.SQSAPI, error) {
	var sess *session.Session
	if awsEndpointUrl == "" {
		sess = session.Must(session.NewSessionWithOptions(session.Options{
			SharedConfigState: session.SharedConfigEnable,
		}))
	} else {
		region, found := os.LookupEnv("AWS_REGION")
		if !found {
			return nil, fmt.Errorf("%w: cannot connect to SQS provider at %s",
				ErrNoRegion, awsEndpointUrl)
		}
		sess = session.Must(session.NewSessionWithOptions(session.Options{
			SharedConfigState: session.SharedConfigEnable,
			Config: aws.Config{
				Endpoint: aws.String(awsEndpointUrl),
				Region:   aws.String(region),
			},
		}))
	}
	return sqs.New(sess), nil
}

// GetQueueUrl retrieves from AWS SQS the URL for the queue, given the topic name
func GetQueueUrl(client sqsiface.SQSAPI, topic string) (string, error) {
	out, err := client.GetQueueUrl(&sqs.GetQueueUrlInput{
		QueueName: &topic,
	})
	if err != nil {
		return "", fmt.Errorf("%w for topic %s: %v", ErrNoQueue, topic, err)
	}
	if out.QueueUrl == nil {
		return "", fmt.Errorf("%w for topic %s", ErrNoQueue, topic)
	}
	return *out.QueueUrl, nil
}
