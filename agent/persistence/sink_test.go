package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentchat/types"
)

func sampleHistory(n int) []types.Message {
	msgs := make([]types.Message, 0, n)
	for i := 1; i <= n; i++ {
		msg := types.NewMessage(types.AgentID(fmt.Sprintf("agent:%d", i%2)), fmt.Sprintf("message %d", i)).
			From(types.AgentID(fmt.Sprintf("agent:%d", i%2)), fmt.Sprintf("agent-%d", i%2)).
			WithCausalIndex(uint64(i))
		if i == n {
			msg = msg.WithFunction("lookup", json.RawMessage(`{"q":"go"}`))
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// runSinkContract 校验所有后端共同遵守的行为
func runSinkContract(t *testing.T, sink HistorySink) {
	t.Helper()
	ctx := context.Background()

	t.Run("AppendAndSnapshot", func(t *testing.T) {
		history := sampleHistory(4)
		for _, msg := range history {
			require.NoError(t, sink.Append(ctx, "chat-1", msg))
		}

		got, err := sink.Snapshot(ctx, "chat-1")
		require.NoError(t, err)
		require.Len(t, got, len(history))
		for i := range history {
			assert.Equal(t, history[i].ID, got[i].ID)
			assert.Equal(t, history[i].Content, got[i].Content)
			assert.Equal(t, history[i].Sender, got[i].Sender)
			assert.Equal(t, history[i].CausalIndex, got[i].CausalIndex)
		}
		require.NotNil(t, got[3].Function)
		assert.Equal(t, "lookup", got[3].Function.Name)
		assert.JSONEq(t, `{"q":"go"}`, string(got[3].Function.Arguments))
	})

	t.Run("ChatsAreIsolated", func(t *testing.T) {
		require.NoError(t, sink.Append(ctx, "chat-2", sampleHistory(1)[0]))
		got, err := sink.Snapshot(ctx, "chat-2")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("UnknownChatIsEmpty", func(t *testing.T) {
		got, err := sink.Snapshot(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("RejectsEmptyChatID", func(t *testing.T) {
		assert.ErrorIs(t, sink.Append(ctx, "", sampleHistory(1)[0]), ErrInvalidInput)
	})
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	runSinkContract(t, sink)
	assert.ElementsMatch(t, []string{"chat-1", "chat-2"}, sink.Chats())

	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Append(context.Background(), "chat-1", sampleHistory(1)[0]), ErrSinkClosed)
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	runSinkContract(t, sink)
	require.NoError(t, sink.Close())

	// 重新打开后历史仍然可读
	reopened, err := NewFileSink(dir)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Snapshot(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestFileSink_SanitizesChatID(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(context.Background(), "team/alpha:1", sampleHistory(1)[0]))
	got, err := sink.Snapshot(context.Background(), "team/alpha:1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNewHistorySink(t *testing.T) {
	cfg := DefaultSinkConfig()
	sink, err := NewHistorySink(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, StoreTypeMemory, TypeOf(sink))

	cfg.Type = StoreTypeFile
	cfg.BaseDir = t.TempDir()
	sink, err = NewHistorySink(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, StoreTypeFile, TypeOf(sink))
	require.NoError(t, sink.Close())

	cfg.Type = "cassandra"
	_, err = NewHistorySink(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSinkConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SinkConfig)
		wantErr bool
	}{
		{name: "default", mutate: func(*SinkConfig) {}},
		{name: "file without dir", mutate: func(c *SinkConfig) { c.Type = StoreTypeFile; c.BaseDir = "" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *SinkConfig) { c.Type = StoreTypeRedis; c.Redis.Addr = "" }, wantErr: true},
		{name: "redis negative max len", mutate: func(c *SinkConfig) { c.Type = StoreTypeRedis; c.Redis.MaxLen = -1 }, wantErr: true},
		{name: "sql without dsn", mutate: func(c *SinkConfig) { c.Type = StoreTypeSQL; c.SQL.DSN = "" }, wantErr: true},
		{name: "sql default", mutate: func(c *SinkConfig) { c.Type = StoreTypeSQL }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSinkConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type customSink struct{ HistorySink }

func TestTypeOf_Custom(t *testing.T) {
	assert.Equal(t, StoreType("custom"), TypeOf(customSink{}))
}
