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
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/massenz/go-machina/pkg/observable"
)

// ProtoTextMarshaler allows for marshaling and unmarshaling of Protobuf messages to and from
// text, for brokers (SQS, Redis Pub/Sub) that carry strings.
type ProtoTextMarshaler interface {
	MarshalToText(proto.Message) (string, error)
	UnmarshalFromText(string, proto.Message) error
}

// Base64ProtoMarshaler encodes the Protobuf message as a Base64 string.
type Base64ProtoMarshaler struct{}

func (m *Base64ProtoMarshaler) MarshalToText(msg proto.Message) (string, error) {
	data, err := proto.Marshal(msg)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (m *Base64ProtoMarshaler) UnmarshalFromText(text string, msg proto.Message) error {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if err = proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return nil
}

var defaultMarshaler = &Base64ProtoMarshaler{}

// NotificationToProto renders `n` as a Struct; states and edges are rendered with fmt.Sprint,
// a missing value becomes a null.
func NotificationToProto(n observable.Notification) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":        structpb.NewStringValue(n.ID),
		"machina":   structpb.NewStringValue(n.Machina),
		"kind":      structpb.NewNumberValue(float64(n.Kind)),
		"event":     structpb.NewStringValue(n.Event),
		"old":       render(n.Value.Old),
		"new":       render(n.Value.New),
		"timestamp": structpb.NewStringValue(n.Timestamp.Format(time.RFC3339Nano)),
	}}
}

// NotificationFromProto is the reverse of NotificationToProto: the values in the Change are
// strings (or nil), whatever their type was when the notification was sent.
func NotificationFromProto(s *structpb.Struct) (observable.Notification, error) {
	fields := s.GetFields()
	n := observable.Notification{
		ID:      fields["id"].GetStringValue(),
		Machina: fields["machina"].GetStringValue(),
		Kind:    observable.NotificationType(fields["kind"].GetNumberValue()),
		Event:   fields["event"].GetStringValue(),
		Value: observable.Change{
			Old: unrender(fields["old"]),
			New: unrender(fields["new"]),
		},
	}
	if n.Event == "" || n.Kind == observable.None {
		return n, fmt.Errorf("%w: not a notification", ErrInvalidEncoding)
	}
	if ts := fields["timestamp"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return n, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		n.Timestamp = t
	}
	return n, nil
}

// DecodeNotification reverses the encoding used by the publishers, for their consumers.
func DecodeNotification(text string) (observable.Notification, error) {
	var body structpb.Struct
	if err := defaultMarshaler.UnmarshalFromText(text, &body); err != nil {
		return observable.Notification{}, err
	}
	return NotificationFromProto(&body)
}

func EdgeRequestToProto(r EdgeRequest) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":        structpb.NewStringValue(r.ID),
		"machina":   structpb.NewStringValue(r.Machina),
		"edge":      structpb.NewStringValue(r.Edge),
		"sender":    structpb.NewStringValue(r.Sender),
		"timestamp": structpb.NewStringValue(r.Timestamp.Format(time.RFC3339Nano)),
	}}
}

// EdgeRequestFromProto fills in the ID and timestamp, if the sender left them out.
func EdgeRequestFromProto(s *structpb.Struct) (EdgeRequest, error) {
	fields := s.GetFields()
	r := EdgeRequest{
		ID:      fields["id"].GetStringValue(),
		Machina: fields["machina"].GetStringValue(),
		Edge:    fields["edge"].GetStringValue(),
		Sender:  fields["sender"].GetStringValue(),
	}
	if r.Edge == "" {
		return r, ErrMissingEdge
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Timestamp = time.Now()
	if ts := fields["timestamp"].GetStringValue(); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			r.Timestamp = t
		}
	}
	return r, nil
}

func render(v any) *structpb.Value {
	if v == nil {
		return structpb.NewNullValue()
	}
	return structpb.NewStringValue(fmt.Sprint(v))
}

func unrender(v *structpb.Value) any {
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		return s.StringValue
	}
	return nil
}
