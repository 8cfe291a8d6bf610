package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/testutil"
	"github.com/BaSui01/agentchat/testutil/mocks"
)

func TestGroupChatManager_Lifecycle(t *testing.T) {
	ctx := testutil.TestContext(t)
	mgr := NewGroupChatManager(zaptest.NewLogger(t), nil)

	cfg := DefaultGroupChatConfig()
	cfg.MaxRounds = 2
	chat, err := mgr.Create([]*agent.Agent{
		newAgent("A", mocks.Replying("a")),
		newAgent("B", mocks.Replying("b")),
	}, nil, cfg, WithChatID("standup"))
	require.NoError(t, err)
	assert.Equal(t, "standup", chat.ID())

	got, ok := mgr.Get("standup")
	require.True(t, ok)
	assert.Same(t, chat, got)

	infos := mgr.List()
	require.Len(t, infos, 1)
	assert.Equal(t, StatusPending, infos[0].Status)
	assert.Equal(t, 2, infos[0].Agents)

	res, err := mgr.Run(ctx, "standup", startPrompt())
	require.NoError(t, err)
	assert.Len(t, res.History, 2)

	stored, err := mgr.Result("standup")
	require.NoError(t, err)
	assert.Same(t, res, stored)

	info := mgr.List()[0]
	assert.Equal(t, StatusCompleted, info.Status)
	assert.Equal(t, 2, info.Rounds)
	assert.Equal(t, ReasonMaxRounds, info.Reason)
	assert.Empty(t, info.Error)

	_, err = mgr.Create(nil, nil, DefaultGroupChatConfig(), WithChatID("standup"))
	assert.Error(t, err)

	_, err = mgr.Run(ctx, "standup", startPrompt())
	assert.ErrorIs(t, err, ErrChatAlreadyRun)
	assert.Equal(t, StatusCompleted, mgr.List()[0].Status)
}

func TestGroupChatManager_UnknownChat(t *testing.T) {
	mgr := NewGroupChatManager(nil, nil)

	_, err := mgr.Run(testutil.TestContext(t), "missing", startPrompt())
	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.ErrorIs(t, mgr.Interrupt("missing"), ErrChatNotFound)
	_, err = mgr.Result("missing")
	assert.ErrorIs(t, err, ErrChatNotFound)
	_, ok := mgr.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, mgr.List())
}

func TestGroupChatManager_Interrupt(t *testing.T) {
	ctx := testutil.TestContext(t)
	mgr := NewGroupChatManager(zaptest.NewLogger(t), nil)
	slow := mocks.NewScriptedResponder(mocks.Step{Block: true})
	chat, err := mgr.Create([]*agent.Agent{newAgent("D", slow)}, nil, DefaultGroupChatConfig())
	require.NoError(t, err)

	done := make(chan *Result, 1)
	go func() {
		res, _ := mgr.Run(ctx, chat.ID(), startPrompt())
		done <- res
	}()

	_, ok := testutil.WaitForChannel(slow.Started(), 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, mgr.List()[0].Status)
	require.NoError(t, mgr.Interrupt(chat.ID()))

	res, ok := testutil.WaitForChannel(done, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, ReasonInterrupted, res.Reason)
}
