package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentchat/agent/conversation"
	"github.com/BaSui01/agentchat/agent/hitl"
	"github.com/BaSui01/agentchat/agent/persistence"
	"github.com/BaSui01/agentchat/agent/responder"
	"github.com/BaSui01/agentchat/config"
	"github.com/BaSui01/agentchat/testutil"
	"github.com/BaSui01/agentchat/types"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Chat.MaxRounds = 3
	cfg.Mailbox.GracePeriod = time.Second
	cfg.Persistence.Type = "memory"
	cfg.Agents = []config.AgentSpec{
		{Name: "A", Kind: "echo"},
		{Name: "B", Kind: "rules", Default: "ok"},
	}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, attach func(*hitl.InterruptManager) error) *app {
	t.Helper()
	require.NoError(t, cfg.Validate())
	a, err := assemble(context.Background(), cfg, appIO{in: strings.NewReader(""), out: io.Discard}, zaptest.NewLogger(t), attach)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func names(history []types.Message) []string {
	out := make([]string, len(history))
	for i, m := range history {
		out[i] = m.SenderName
	}
	return out
}

func TestApp_RoundRobinRun(t *testing.T) {
	ctx := testutil.TestContext(t)
	a := newTestApp(t, testConfig(), nil)

	res, err := a.Run(ctx, "start")
	require.NoError(t, err)

	assert.Equal(t, conversation.ReasonMaxRounds, res.Reason)
	assert.Equal(t, []string{"A", "B", "A"}, names(res.History))
	assert.Equal(t, "ok", res.History[1].Content)
	testutil.AssertStrictlyIncreasing(t, res.History)

	assert.Equal(t, persistence.StoreTypeMemory, persistence.TypeOf(a.sink))
	stored, err := a.sink.Snapshot(ctx, res.ChatID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestApp_SelectorAgentDoesNotSpeak(t *testing.T) {
	cfg := testConfig()
	cfg.Chat.Policy = "auto"
	cfg.Chat.Selector = "judge"
	cfg.Agents = append(cfg.Agents, config.AgentSpec{Name: "judge", Kind: "rules", Default: "B"})

	a := newTestApp(t, cfg, nil)
	agents := a.chat.Agents()
	require.Len(t, agents, 2)
	for _, ag := range agents {
		assert.NotEqual(t, "judge", ag.Name())
	}

	res, err := a.Run(testutil.TestContext(t), "start")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "B", "B"}, names(res.History))
}

func TestApp_MetricsEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"

	a := newTestApp(t, cfg, nil)
	_, err := a.Run(testutil.TestContext(t), "start")
	require.NoError(t, err)

	resp, err := http.Get("http://" + a.metricsSrv.Addr() + cfg.Metrics.Path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), cfg.Metrics.Namespace+"_chat_terminations_total")
}

func TestApp_AttachFailureReleasesResources(t *testing.T) {
	cfg := testConfig()
	boom := errors.New("boom")
	_, err := assemble(context.Background(), cfg, appIO{in: strings.NewReader("")}, zaptest.NewLogger(t),
		func(*hitl.InterruptManager) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a := newTestApp(t, testConfig(), func(m *hitl.InterruptManager) error {
		return m.Attach("test", hitl.NewChannelSource())
	})
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestBuildResponder_Rules(t *testing.T) {
	spec := config.AgentSpec{
		Name:    "R",
		Kind:    "rules",
		Default: "fallback",
		Rules: []config.RuleSpec{
			{Contains: "weather", Reply: "sunny"},
			{Function: "lookup", Reply: "found"},
		},
		Functions: []string{"lookup", "echo_args"},
	}
	r := buildResponder(spec, nil)

	assert.True(t, responder.Handles(r, "lookup"))
	assert.True(t, responder.Handles(r, "echo_args"))
	assert.False(t, responder.Handles(r, "other"))

	ctx := context.Background()
	tests := []struct {
		name string
		in   types.Message
		want string
	}{
		{"contains", types.NewMessage("", "What's the WEATHER?"), "sunny"},
		{"function", types.NewMessage("", "").WithFunction("lookup", nil), "found"},
		{"echoes arguments", types.NewMessage("", "").WithFunction("echo_args", []byte(`{"q":1}`)), `{"q":1}`},
		{"default", types.NewMessage("", "hello"), "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Respond(ctx, tt.in, responder.Context{})
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].Content)
		})
	}
}

func TestBuildResponder_Kinds(t *testing.T) {
	assert.IsType(t, responder.Echo{}, buildResponder(config.AgentSpec{Kind: "echo"}, nil))
	assert.IsType(t, &responder.Human{}, buildResponder(config.AgentSpec{Kind: "human"}, hitl.NewConsoleInput(strings.NewReader(""), nil)))
}

func TestMiddlewareFor(t *testing.T) {
	assert.Empty(t, middlewareFor(config.AgentSpec{}, nil))
	assert.Len(t, middlewareFor(config.AgentSpec{RateLimit: 5, Timeout: time.Second, Retries: 2}, nil), 3)
}

func TestBuildSelector(t *testing.T) {
	tests := []struct {
		policy string
		want   string
	}{
		{"round_robin", "round_robin"},
		{"random", "random"},
		{"manual", "manual"},
		{"auto", "auto"},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			sel := buildSelector(config.ChatConfig{Policy: tt.policy, Seed: 7}, nil, hitl.NewConsoleInput(strings.NewReader(""), nil), nil)
			p, ok := sel.(interface{ Policy() string })
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Policy())
		})
	}
}

func TestBuildSink_None(t *testing.T) {
	cfg := testConfig()
	cfg.Persistence.Type = "none"
	sink, err := buildSink(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, sink)
}

func TestPrintTranscript(t *testing.T) {
	prompt := types.NewMessage("agent:a", "hi").From("agent:a", "A").WithCausalIndex(1)
	failure := types.NewErrorMessage("agent:b", "", "", types.NewError(types.ErrTimeout, "slow")).
		From("agent:b", "B").WithCausalIndex(2)

	var buf bytes.Buffer
	printTranscript(&buf, &conversation.Result{
		History: []types.Message{prompt, failure},
		Rounds:  2,
		Reason:  conversation.ReasonMaxRounds,
		Removed: []conversation.Removal{{Name: "C", Err: errors.New("gone")}},
	})

	out := buf.String()
	assert.Contains(t, out, "[1] A: hi")
	assert.Contains(t, out, "[2] B (error TIMEOUT)")
	assert.Contains(t, out, "-- max_rounds after 2 rounds")
	assert.Contains(t, out, "-- removed C: gone")
}

func TestInitLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger := initLogger(config.LogConfig{Level: "debug", Format: format, OutputPaths: []string{"stderr"}})
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)
	assert.Contains(t, buf.String(), "AgentChat "+Version)
}
