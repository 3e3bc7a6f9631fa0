// Package kafka carries screening jobs and their results over Kafka with
// segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/keyshape/pkg/errors"
)

// Header keys set on dead-lettered messages.
const (
	HeaderOriginalTopic = "original_topic"
	HeaderError         = "error_message"
	HeaderAttempts      = "attempts"
	HeaderEventType     = "event_type"
)

// Message is a consumed record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMessage is a record to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes one message.  A non-nil error triggers retries.
type Handler func(ctx context.Context, msg *Message) error

// Publisher is the write side used by consumers for dead letters and by
// workers for results.
type Publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// Envelope wraps every payload published by keyshape.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope with a random id.
func NewEnvelope(eventType, source string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event payload")
	}
	return &Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// DecodeEnvelope parses data and unmarshals its payload into dest.
func DecodeEnvelope(data []byte, dest interface{}) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "malformed event envelope")
	}
	if dest != nil {
		if err := json.Unmarshal(env.Payload, dest); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "malformed event payload")
		}
	}
	return &env, nil
}
