package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/keyshape/pkg/errors"
)

// PingBrokers succeeds when at least one broker accepts a connection.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return errors.Wrap(lastErr, errors.ErrCodeServiceUnavailable, "no kafka broker reachable")
}
