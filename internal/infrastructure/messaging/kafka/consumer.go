package kafka

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/keyshape/internal/config"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")
	ErrNoHandler      = errors.New(errors.ErrCodeValidation, "no handler subscribed")
)

// Reader abstracts *kafka.Reader for tests.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerStats is a snapshot of consumer counters.
type ConsumerStats struct {
	Consumed     int64
	Processed    int64
	Retried      int64
	DeadLettered int64
	Dropped      int64
}

// ConsumerOptions tunes retry and dead-letter behaviour.
type ConsumerOptions struct {
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	DLQTopic     string
	DLQ          Publisher
	// FetchErrorPause throttles the loop after a fetch failure.
	FetchErrorPause time.Duration
}

// Consumer fetches messages, dispatches them by topic, retries failures with
// exponential backoff and dead-letters what still fails.  Offsets are
// committed after every handled message, including dead-lettered ones.
type Consumer struct {
	reader Reader
	opts   ConsumerOptions
	logger logging.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	consumed, processed, retried, deadLettered, dropped atomic.Int64
}

// NewConsumer builds a group reader over topics from the service config.
func NewConsumer(cfg config.KafkaConfig, topics []string, dlq Publisher, log logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka group id required")
	}
	if len(topics) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "at least one topic required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
	return NewConsumerWithReader(r, ConsumerOptions{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		DLQTopic:     cfg.DLQTopic,
		DLQ:          dlq,
	}, log), nil
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(r Reader, opts ConsumerOptions, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.FetchErrorPause <= 0 {
		opts.FetchErrorPause = time.Second
	}
	return &Consumer{
		reader:   r,
		opts:     opts,
		logger:   log,
		handlers: make(map[string]Handler),
	}
}

// Subscribe registers handler for topic, replacing any previous one.
func (c *Consumer) Subscribe(topic string, handler Handler) {
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()
	c.logger.Info("subscribed to topic", logging.String("topic", topic))
}

// Start runs the consume loop in the background until Close or ctx ends.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	n := len(c.handlers)
	c.mu.RUnlock()
	if n == 0 {
		return ErrNoHandler
	}
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		c.loop(ctx)
	}()
	c.logger.Info("kafka consumer started")
	return nil
}

func (c *Consumer) loop(ctx context.Context) {
	for ctx.Err() == nil {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.FetchErrorPause):
			}
			continue
		}
		c.consumed.Add(1)
		c.handle(ctx, m)
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed",
				logging.String("topic", m.Topic),
				logging.Int64("offset", m.Offset),
				logging.Err(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	c.mu.RLock()
	handler, ok := c.handlers[m.Topic]
	c.mu.RUnlock()
	if !ok {
		c.dropped.Add(1)
		c.logger.Warn("no handler for topic", logging.String("topic", m.Topic))
		return
	}

	msg := fromKafkaMessage(m)
	attempts, err := c.process(ctx, msg, handler)
	if err == nil {
		c.processed.Add(1)
		return
	}
	if ctx.Err() != nil {
		return
	}

	c.logger.Error("message failed after retries",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Int("attempts", attempts),
		logging.Err(err))
	c.deadLetter(ctx, msg, attempts, err)
}

// process runs handler once plus up to MaxRetries retries.
func (c *Consumer) process(ctx context.Context, msg *Message, handler Handler) (int, error) {
	backoff := c.opts.RetryBackoff
	attempts := 1
	err := handler(ctx, msg)
	for err != nil && attempts <= c.opts.MaxRetries {
		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(backoff):
		}
		c.retried.Add(1)
		attempts++
		err = handler(ctx, msg)

		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
	return attempts, err
}

func (c *Consumer) deadLetter(ctx context.Context, msg *Message, attempts int, cause error) {
	if c.opts.DLQ == nil || c.opts.DLQTopic == "" {
		c.dropped.Add(1)
		return
	}
	headers := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderOriginalTopic] = msg.Topic
	headers[HeaderError] = cause.Error()
	headers[HeaderAttempts] = strconv.Itoa(attempts)

	err := c.opts.DLQ.Publish(ctx, &ProducerMessage{
		Topic:   c.opts.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		c.dropped.Add(1)
		c.logger.Error("dead letter publish failed", logging.Err(err))
		return
	}
	c.deadLettered.Add(1)
}

// Stats returns a snapshot of the counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed:     c.consumed.Load(),
		Processed:    c.processed.Load(),
		Retried:      c.retried.Load(),
		DeadLettered: c.deadLettered.Load(),
		Dropped:      c.dropped.Load(),
	}
}

// Close stops the loop, waits for the in-flight message and closes the
// reader.  It is idempotent.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	c.cancel()
	<-c.done
	err := c.reader.Close()
	s := c.Stats()
	c.logger.Info("kafka consumer closed",
		logging.Int64("consumed", s.Consumed),
		logging.Int64("dead_lettered", s.DeadLettered))
	return err
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}
