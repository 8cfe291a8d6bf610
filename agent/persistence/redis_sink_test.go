package persistence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedisSink(t *testing.T, maxLen int64) (*miniredis.Miniredis, *RedisSink) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultSinkConfig().Redis
	cfg.Addr = mr.Addr()
	cfg.MaxLen = maxLen

	sink, err := NewRedisSink(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return mr, sink
}

func TestRedisSink(t *testing.T) {
	mr, sink := setupTestRedisSink(t, 0)
	runSinkContract(t, sink)

	items, err := mr.List("agentchat:chat:chat-1")
	require.NoError(t, err)
	assert.Len(t, items, 4)
	assert.NoError(t, sink.Ping(context.Background()))
}

func TestRedisSink_TrimsToMaxLen(t *testing.T) {
	_, sink := setupTestRedisSink(t, 2)
	ctx := context.Background()

	history := sampleHistory(5)
	for _, msg := range history {
		require.NoError(t, sink.Append(ctx, "chat", msg))
	}

	got, err := sink.Snapshot(ctx, "chat")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, history[3].ID, got[0].ID)
	assert.Equal(t, history[4].ID, got[1].ID)
}

func TestRedisSink_SkipsCorruptEntries(t *testing.T) {
	mr, sink := setupTestRedisSink(t, 0)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, "chat", sampleHistory(1)[0]))
	_, err := mr.Push("agentchat:chat:chat", "{not json")
	require.NoError(t, err)

	got, err := sink.Snapshot(ctx, "chat")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNewRedisSink_ConnectionFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultSinkConfig().Redis
	cfg.Addr = addr
	_, err = NewRedisSink(cfg, nil)
	assert.Error(t, err)
}
