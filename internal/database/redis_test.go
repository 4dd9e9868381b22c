package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0", zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, PingRedis(client)(context.Background()))
	mr.Close()
	assert.Error(t, PingRedis(client)(context.Background()))
}

func TestConnectRedisBadURI(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "not-a-uri", zap.NewNop())
	assert.ErrorContains(t, err, "parse redis uri")
}
