package kafka

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyshape/pkg/errors"
)

func TestPingBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	// Reserve a port and release it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = PingBrokers(ctx, []string{addr})
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}
