package context

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BaSui01/agentchat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockTokenCounter struct{}

func (m *mockTokenCounter) CountTokens(text string) int {
	return len(text) / 4
}

type mockSummarizer struct {
	result string
	err    error
	calls  int
}

func (m *mockSummarizer) Summarize(_ context.Context, msgs []types.Message) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.result, nil
}

// --- helpers ---

func textMsg(content string) types.Message { return types.NewMessage("agent:a", content) }
func sysMsg(content string) types.Message  { return types.NewSystemMessage(content) }

func contents(msgs []types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestWindowManager_SlidingWindow_KeepsLastN(t *testing.T) {
	t.Parallel()
	wm := NewWindowManager(WindowConfig{
		Strategy:    StrategySlidingWindow,
		MaxMessages: 3,
	}, &mockTokenCounter{}, nil)

	messages := []types.Message{
		textMsg("m1"), textMsg("m2"), textMsg("m3"), textMsg("m4"), textMsg("m5"),
	}

	out, err := wm.Apply(context.Background(), messages)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m4", "m5"}, contents(out))
	assert.Len(t, messages, 5, "input must not be modified")
}

func TestWindowManager_SlidingWindow_KeepsSystemMsg(t *testing.T) {
	t.Parallel()
	wm := NewWindowManager(WindowConfig{
		Strategy:      StrategySlidingWindow,
		MaxMessages:   2,
		KeepSystemMsg: true,
	}, &mockTokenCounter{}, nil)

	messages := []types.Message{
		sysMsg("rules"), textMsg("m1"), textMsg("m2"), textMsg("m3"),
	}

	out, err := wm.Apply(context.Background(), messages)
	require.NoError(t, err)
	assert.Equal(t, []string{"rules", "m2", "m3"}, contents(out))
}

func TestWindowManager_TokenBudget_KeepsContiguousSuffix(t *testing.T) {
	t.Parallel()
	// each 40-char message costs 10 + 4 overhead = 14 tokens
	long := strings.Repeat("x", 40)
	wm := NewWindowManager(WindowConfig{
		Strategy:  StrategyTokenBudget,
		MaxTokens: 30,
	}, &mockTokenCounter{}, nil)

	messages := []types.Message{
		textMsg("a"), textMsg(long + "1"), textMsg(long + "2"), textMsg(long + "3"),
	}

	out, err := wm.Apply(context.Background(), messages)
	require.NoError(t, err)
	assert.Equal(t, []string{long + "2", long + "3"}, contents(out))
}

func TestWindowManager_TokenBudget_ReserveTokens(t *testing.T) {
	t.Parallel()
	wm := NewWindowManager(WindowConfig{
		Strategy:      StrategyTokenBudget,
		MaxTokens:     10,
		ReserveTokens: 10,
	}, &mockTokenCounter{}, nil)

	out, err := wm.Apply(context.Background(), []types.Message{textMsg("hello")})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestWindowManager_TokenBudget_KeepLastN(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("y", 400)
	wm := NewWindowManager(WindowConfig{
		Strategy:  StrategyTokenBudget,
		MaxTokens: 10,
		KeepLastN: 1,
	}, &mockTokenCounter{}, nil)

	out, err := wm.Apply(context.Background(), []types.Message{textMsg("old"), textMsg(long)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, long, out[0].Content)
}

func TestWindowManager_Summarize_WithMockSummarizer(t *testing.T) {
	t.Parallel()
	sum := &mockSummarizer{result: "summary of earlier turns"}
	wm := NewWindowManager(WindowConfig{
		Strategy:  StrategySummarize,
		MaxTokens: 20,
		KeepLastN: 1,
	}, &mockTokenCounter{}, sum)

	long := strings.Repeat("z", 40)
	out, err := wm.Apply(context.Background(), []types.Message{
		textMsg(long), textMsg(long), textMsg("last"),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, types.KindSystem, out[0].Kind)
	assert.Equal(t, "summary of earlier turns", out[0].Content)
	assert.Equal(t, "last", out[1].Content)
	assert.Equal(t, 1, sum.calls)
}

func TestWindowManager_Summarize_ErrorFallsBackToTokenBudget(t *testing.T) {
	t.Parallel()
	sum := &mockSummarizer{err: errors.New("unavailable")}
	wm := NewWindowManager(WindowConfig{
		Strategy:  StrategySummarize,
		MaxTokens: 10,
	}, &mockTokenCounter{}, sum)

	long := strings.Repeat("z", 40)
	out, err := wm.Apply(context.Background(), []types.Message{textMsg(long), textMsg("tail")})
	require.NoError(t, err)
	assert.Equal(t, []string{"tail"}, contents(out))
}

func TestWindowManager_Summarize_WithinBudget_NoTrim(t *testing.T) {
	t.Parallel()
	sum := &mockSummarizer{result: "unused"}
	wm := NewWindowManager(WindowConfig{
		Strategy:  StrategySummarize,
		MaxTokens: 1000,
	}, &mockTokenCounter{}, sum)

	messages := []types.Message{textMsg("a"), textMsg("b")}
	out, err := wm.Apply(context.Background(), messages)
	require.NoError(t, err)
	assert.Equal(t, messages, out)
	assert.Zero(t, sum.calls)
}

func TestWindowManager_GetStatus(t *testing.T) {
	t.Parallel()
	wm := NewWindowManager(WindowConfig{MaxTokens: 5}, &mockTokenCounter{}, nil)

	status := wm.GetStatus([]types.Message{textMsg(strings.Repeat("q", 40))})
	assert.Equal(t, 14, status.TotalTokens)
	assert.Equal(t, 1, status.MessageCount)
	assert.Equal(t, 5, status.MaxTokens)
	assert.True(t, status.Trimmed)
}

func TestWindowManager_NilTokenCounter_UsesDefaultEstimation(t *testing.T) {
	t.Parallel()
	wm := NewWindowManager(WindowConfig{}, nil, nil)
	assert.Equal(t, 5, wm.EstimateTokens([]types.Message{textMsg("abc")}))
}

func TestWindowManager_EmptyMessages(t *testing.T) {
	t.Parallel()
	wm := NewWindowManager(WindowConfig{Strategy: StrategyTokenBudget, MaxTokens: 10}, nil, nil)
	out, err := wm.Apply(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestTiktokenCounter_FallsBackOnUnknownEncoding(t *testing.T) {
	t.Parallel()
	counter := NewTiktokenCounter("no_such_encoding", nil)

	assert.Equal(t, 0, counter.CountTokens(""))
	assert.Equal(t, types.NewEstimateTokenizer().CountTokens("hello world"), counter.CountTokens("hello world"))
	assert.Error(t, counter.Err())
	assert.Equal(t, "no_such_encoding", counter.Encoding())
}
