package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyshape/internal/config"
)

func fastOptions(dlq Publisher) ConsumerOptions {
	return ConsumerOptions{
		MaxRetries:      2,
		RetryBackoff:    time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
		DLQTopic:        "requests.dlq",
		DLQ:             dlq,
		FetchErrorPause: time.Millisecond,
	}
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(config.KafkaConfig{}, []string{"t"}, nil, nil)
	assert.Error(t, err)
	_, err = NewConsumer(config.KafkaConfig{Brokers: []string{"b:9092"}}, []string{"t"}, nil, nil)
	assert.Error(t, err)
	_, err = NewConsumer(config.KafkaConfig{Brokers: []string{"b:9092"}, GroupID: "g"}, nil, nil, nil)
	assert.Error(t, err)
}

func TestConsumer_StartRequiresHandler(t *testing.T) {
	c := NewConsumerWithReader(newFakeReader(), fastOptions(nil), nil)
	assert.Equal(t, ErrNoHandler, c.Start(context.Background()))
}

func TestConsumer_DispatchAndCommit(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Topic: "requests", Offset: 1, Value: []byte("a"), Headers: []kafka.Header{{Key: "k", Value: []byte("v")}}},
		kafka.Message{Topic: "requests", Offset: 2, Value: []byte("b")},
		kafka.Message{Topic: "unknown", Offset: 3, Value: []byte("c")},
	)
	c := NewConsumerWithReader(r, fastOptions(nil), nil)

	var seen atomic.Int32
	var header atomic.Value
	c.Subscribe("requests", func(_ context.Context, msg *Message) error {
		if msg.Offset == 1 {
			header.Store(msg.Headers["k"])
		}
		seen.Add(1)
		return nil
	})

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, ErrAlreadyRunning, c.Start(context.Background()))

	assert.Eventually(t, func() bool { return r.commits() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, int32(2), seen.Load())
	assert.Equal(t, "v", header.Load())
	assert.True(t, r.closed)

	s := c.Stats()
	assert.Equal(t, int64(3), s.Consumed)
	assert.Equal(t, int64(2), s.Processed)
	assert.Equal(t, int64(1), s.Dropped)
}

func TestConsumer_RetryThenSucceed(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "requests", Value: []byte("x")})
	dlq := &recordingPublisher{}
	c := NewConsumerWithReader(r, fastOptions(dlq), nil)

	var calls atomic.Int32
	c.Subscribe("requests", func(context.Context, *Message) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return r.commits() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, dlq.published())
	s := c.Stats()
	assert.Equal(t, int64(2), s.Retried)
	assert.Equal(t, int64(1), s.Processed)
}

func TestConsumer_DeadLetterAfterRetries(t *testing.T) {
	r := newFakeReader(kafka.Message{
		Topic:   "requests",
		Key:     []byte("job-1"),
		Value:   []byte("payload"),
		Headers: []kafka.Header{{Key: "trace", Value: []byte("t1")}},
	})
	dlq := &recordingPublisher{}
	c := NewConsumerWithReader(r, fastOptions(dlq), nil)

	var calls atomic.Int32
	c.Subscribe("requests", func(context.Context, *Message) error {
		calls.Add(1)
		return errors.New("bad shape")
	})
	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return r.commits() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, int32(3), calls.Load())
	msgs := dlq.published()
	require.Len(t, msgs, 1)
	dl := msgs[0]
	assert.Equal(t, "requests.dlq", dl.Topic)
	assert.Equal(t, []byte("job-1"), dl.Key)
	assert.Equal(t, "requests", dl.Headers[HeaderOriginalTopic])
	assert.Equal(t, "bad shape", dl.Headers[HeaderError])
	assert.Equal(t, "3", dl.Headers[HeaderAttempts])
	assert.Equal(t, "t1", dl.Headers["trace"])
	assert.Equal(t, int64(1), c.Stats().DeadLettered)
}

func TestConsumer_NoDLQDrops(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "requests", Value: []byte("x")})
	opts := fastOptions(nil)
	opts.MaxRetries = 0
	c := NewConsumerWithReader(r, opts, nil)
	c.Subscribe("requests", func(context.Context, *Message) error { return errors.New("fail") })

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return r.commits() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	assert.Equal(t, int64(1), c.Stats().Dropped)
}
