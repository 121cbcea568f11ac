// Package kafka publishes session events to a Kafka topic. Messages are
// keyed by attempt id, or by session id when no attempt was registered, so
// that one session's events stay ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/okian/proctor/internal/domain/model"
)

// ErrNoBrokers is returned when the publisher is configured without brokers.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes events as JSON messages.
type Publisher struct {
	writer MessageWriter
	topic  string
}

type message struct {
	SessionID string         `json:"session_id"`
	AttemptID string         `json:"attempt_id"`
	EventType string         `json:"event_type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	TS        int64          `json:"ts"`
}

// New creates a publisher backed by a kafka-go writer.
func New(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewWithWriter(w, topic), nil
}

// NewWithWriter creates a publisher over an existing writer.
func NewWithWriter(w MessageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

// Publish writes one event.
func (p *Publisher) Publish(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: events travel by value
	value, err := json.Marshal(message{
		SessionID: e.SessionID,
		AttemptID: e.AttemptID,
		EventType: e.Type,
		Metadata:  e.Metadata,
		TS:        e.TS.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("kafka: encode event: %w", err)
	}
	key := e.AttemptID
	if key == "" {
		key = e.SessionID
	}
	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  e.TS,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
