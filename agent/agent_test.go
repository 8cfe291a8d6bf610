package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentchat/agent/mailbox"
	"github.com/BaSui01/agentchat/agent/responder"
	"github.com/BaSui01/agentchat/testutil"
	"github.com/BaSui01/agentchat/testutil/mocks"
	"github.com/BaSui01/agentchat/types"
)

func turnCollector() (Outbox, <-chan Turn) {
	ch := make(chan Turn, 64)
	return OutboxFunc(func(turn Turn) { ch <- turn }), ch
}

func nextTurn(t *testing.T, ch <-chan Turn) Turn {
	t.Helper()
	turn, ok := testutil.WaitForChannel(ch, 2*time.Second)
	require.True(t, ok, "timed out waiting for turn")
	return turn
}

func waitDone(t *testing.T, a *Agent) {
	t.Helper()
	_, ok := testutil.WaitForChannel(a.Done(), 2*time.Second)
	require.True(t, ok, "agent loop did not exit")
}

func TestAgent_EchoTurn(t *testing.T) {
	ctx := testutil.TestContext(t)
	a := New(responder.Echo{}, WithName("assistant"))
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	in := types.NewMessage("agent:user", "hello")
	require.NoError(t, a.Send(in))

	turn := nextTurn(t, turns)
	assert.Equal(t, a.ID(), turn.Agent)
	assert.Equal(t, in.ID, turn.Input.ID)
	assert.NoError(t, turn.Err)
	require.Len(t, turn.Output, 1)

	reply := turn.Output[0]
	assert.Equal(t, "hello", reply.Content)
	assert.Equal(t, a.ID(), reply.Sender)
	assert.Equal(t, "assistant", reply.SenderName)
	assert.Equal(t, in.ID, reply.InReplyTo)
	assert.Zero(t, reply.CausalIndex)
	assert.Equal(t, 1, a.Turns())

	assert.ErrorIs(t, a.Start(ctx, out, nil), ErrAlreadyStarted)
}

func TestAgent_StartWithoutResponder(t *testing.T) {
	a := New(nil)
	assert.ErrorIs(t, a.Start(context.Background(), nil, nil), ErrResponderNotSet)
}

func TestAgent_TransientErrorContinues(t *testing.T) {
	ctx := testutil.TestContext(t)
	r := mocks.NewScriptedResponder(
		mocks.Step{Err: errors.New("flaky")},
		mocks.Step{Replies: []string{"recovered"}},
	)
	a := New(r)
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	first := types.NewMessage("agent:user", "one")
	require.NoError(t, a.Send(first))
	require.NoError(t, a.Send(types.NewMessage("agent:user", "two")))

	turn := nextTurn(t, turns)
	require.Error(t, turn.Err)
	assert.False(t, turn.Fatal)
	require.Len(t, turn.Output, 1)
	errMsg := turn.Output[0]
	assert.True(t, errMsg.IsError())
	assert.Equal(t, types.AgentID("agent:user"), errMsg.Recipient)
	assert.Equal(t, first.ID, errMsg.InReplyTo)
	assert.Equal(t, types.ErrRespondTransient, errMsg.ErrorCode)

	turn = nextTurn(t, turns)
	assert.NoError(t, turn.Err)
	assert.Equal(t, "recovered", turn.Output[0].Content)
	assert.True(t, a.Alive())
}

func TestAgent_FatalErrorTerminates(t *testing.T) {
	ctx := testutil.TestContext(t)
	boom := errors.New("unrecoverable")
	a := New(mocks.NewScriptedResponder(mocks.Step{Err: responder.Fatal(boom)}))
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	require.NoError(t, a.Send(types.NewMessage("", "go")))
	turn := nextTurn(t, turns)
	assert.True(t, turn.Fatal)
	assert.Empty(t, turn.Output)
	assert.ErrorIs(t, turn.Err, boom)

	waitDone(t, a)
	assert.ErrorIs(t, a.Err(), boom)
	assert.Equal(t, ExitFatal, a.ExitReason())
	assert.False(t, a.Alive())
}

func TestAgent_PanicIsFatal(t *testing.T) {
	ctx := testutil.TestContext(t)
	a := New(responder.Func(func(context.Context, types.Message, responder.Context) ([]types.Message, error) {
		panic("bad state")
	}))
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))
	require.NoError(t, a.Send(types.NewMessage("", "go")))

	turn := nextTurn(t, turns)
	assert.True(t, turn.Fatal)
	waitDone(t, a)
	assert.True(t, types.IsErrorCode(a.Err(), types.ErrInternalError))
}

func TestAgent_MaxTurns(t *testing.T) {
	ctx := testutil.TestContext(t)
	a := New(responder.Echo{}, WithMaxTurns(1))
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	require.NoError(t, a.Send(types.NewMessage("", "first")))
	_ = a.Send(types.NewMessage("", "second"))

	turn := nextTurn(t, turns)
	assert.Equal(t, "first", turn.Output[0].Content)

	waitDone(t, a)
	assert.Equal(t, ExitMaxTurns, a.ExitReason())
	assert.Equal(t, 1, a.Turns())

	late := types.NewMessage("", "late")
	err := a.Send(late)
	require.Error(t, err)
	assert.ErrorIs(t, err, mailbox.ErrMailboxClosed)
	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, late.ID, sendErr.Message().ID)
}

func TestAgent_TerminalPredicate(t *testing.T) {
	ctx := testutil.TestContext(t)
	r := mocks.Replying("ack")
	a := New(r, WithTerminationWords("TERMINATE"))
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	require.NoError(t, a.Send(types.NewMessage("", "work")))
	nextTurn(t, turns)

	require.NoError(t, a.Send(types.NewMessage("", "please terminate now")))
	waitDone(t, a)
	assert.Equal(t, ExitTerminalMessage, a.ExitReason())
	assert.Equal(t, 1, r.CallCount())
}

func TestAgent_CancelInFlightTurn(t *testing.T) {
	ctx := testutil.TestContext(t)
	r := mocks.NewScriptedResponder(mocks.Step{Block: true})
	r.Default = mocks.Step{Replies: []string{"fresh"}}
	a := New(r)
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	in := types.NewMessage("", "slow")
	require.NoError(t, a.Send(in))
	_, ok := testutil.WaitForChannel(r.Started(), 2*time.Second)
	require.True(t, ok)

	a.CancelTurn(in.ID)
	turn := nextTurn(t, turns)
	assert.True(t, turn.Cancelled)
	assert.Empty(t, turn.Output, "partial output must be dropped")
	assert.Equal(t, 0, a.Turns())

	require.NoError(t, a.Send(types.NewMessage("", "next")))
	turn = nextTurn(t, turns)
	assert.False(t, turn.Cancelled)
	assert.Equal(t, "fresh", turn.Output[0].Content)
}

func TestAgent_CancelQueuedTurn(t *testing.T) {
	ctx := testutil.TestContext(t)
	r := mocks.Replying("never")
	a := New(r)

	in := types.NewMessage("", "queued")
	require.NoError(t, a.Send(in))
	a.CancelTurn(in.ID)

	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	turn := nextTurn(t, turns)
	assert.True(t, turn.Cancelled)
	assert.Equal(t, 0, r.CallCount())
}

func TestAgent_ResponderCancellationIsTransient(t *testing.T) {
	ctx := testutil.TestContext(t)
	upstream := fmt.Errorf("upstream http: %w", context.Canceled)
	r := mocks.NewScriptedResponder(mocks.Step{Err: upstream})
	r.Default = mocks.Step{Replies: []string{"back"}}
	a := New(r)
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	in := types.NewMessage("agent:user", "go")
	require.NoError(t, a.Send(in))

	turn := nextTurn(t, turns)
	assert.False(t, turn.Cancelled)
	assert.False(t, turn.Fatal)
	assert.ErrorIs(t, turn.Err, context.Canceled)
	require.Len(t, turn.Output, 1)
	assert.True(t, turn.Output[0].IsError())
	assert.Equal(t, types.ErrRespondTransient, turn.Output[0].ErrorCode)
	assert.Equal(t, in.ID, turn.Output[0].InReplyTo)
	assert.Equal(t, 1, a.Turns())

	require.NoError(t, a.Send(types.NewMessage("agent:user", "again")))
	turn = nextTurn(t, turns)
	assert.NoError(t, turn.Err)
	assert.Equal(t, "back", turn.Output[0].Content)
	assert.Equal(t, 2, a.Turns())
	assert.True(t, a.Alive())
}

func TestAgent_CancelFinishedTurnIsIgnored(t *testing.T) {
	ctx := testutil.TestContext(t)
	r := mocks.Replying("pong")
	a := New(r)
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	in := types.NewMessage("", "ping")
	require.NoError(t, a.Send(in))
	turn := nextTurn(t, turns)
	require.False(t, turn.Cancelled)

	a.CancelTurn(in.ID)
	a.CancelTurn("never-sent")

	require.NoError(t, a.Send(in))
	turn = nextTurn(t, turns)
	assert.False(t, turn.Cancelled)
	require.Len(t, turn.Output, 1)
	assert.Equal(t, "pong", turn.Output[0].Content)
	assert.Equal(t, 2, r.CallCount())
}

func TestAgent_TerminateDrains(t *testing.T) {
	ctx := testutil.TestContext(t)
	a := New(responder.Echo{})
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, a.Send(types.NewMessage("", s)))
	}
	require.NoError(t, a.Terminate(ctx))

	assert.Equal(t, ExitDrained, a.ExitReason())
	assert.Len(t, turns, 3)
}

func TestAgent_TerminateAbortsAfterGracePeriod(t *testing.T) {
	ctx := testutil.TestContext(t)
	r := mocks.NewScriptedResponder(mocks.Step{Block: true})
	a := New(r, WithGracePeriod(50*time.Millisecond))
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	require.NoError(t, a.Send(types.NewMessage("", "stuck")))
	_, ok := testutil.WaitForChannel(r.Started(), 2*time.Second)
	require.True(t, ok)

	assert.ErrorIs(t, a.Terminate(ctx), ErrGracePeriodExceeded)
	waitDone(t, a)
	assert.Equal(t, ExitAborted, a.ExitReason())
	assert.True(t, nextTurn(t, turns).Cancelled)
}

func TestAgent_Abort(t *testing.T) {
	ctx := testutil.TestContext(t)
	a := New(responder.Echo{})
	require.NoError(t, a.Start(ctx, nil, nil))
	a.Abort()
	waitDone(t, a)
	assert.Equal(t, ExitAborted, a.ExitReason())
}

func TestAgent_LocalTranscript(t *testing.T) {
	ctx := testutil.TestContext(t)
	r := mocks.Replying("ok")
	a := New(r)
	out, turns := turnCollector()
	require.NoError(t, a.Start(ctx, out, nil))

	require.NoError(t, a.Send(types.NewMessage("", "one")))
	nextTurn(t, turns)
	require.NoError(t, a.Send(types.NewMessage("", "two")))
	nextTurn(t, turns)

	calls := r.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"one", "ok", "two"}, testutil.Contents(calls[1].Conv.History))
	assert.Equal(t, 2, calls[1].Conv.Round)
	assert.Equal(t, a.ID(), calls[1].Conv.Self)
}

func TestGracePeriodFromEnv(t *testing.T) {
	t.Setenv(GracePeriodEnv, "0.5")
	assert.Equal(t, 500*time.Millisecond, New(responder.Echo{}).GracePeriod())

	t.Setenv(GracePeriodEnv, "not-a-number")
	assert.Equal(t, DefaultGracePeriod, New(responder.Echo{}).GracePeriod())

	assert.Equal(t, time.Second, New(responder.Echo{}, WithGracePeriod(time.Second)).GracePeriod())
}

func TestBuilder(t *testing.T) {
	a, err := NewBuilder().
		WithResponder(responder.Echo{}).
		WithMiddleware(responder.WithTimeout(time.Second)).
		WithID("agent:fixed").
		WithName("fixed").
		WithMaxTurns(3).
		WithGracePeriod(time.Second).
		Build()
	require.NoError(t, err)
	assert.Equal(t, types.AgentID("agent:fixed"), a.ID())
	assert.Equal(t, "fixed", a.Name())
	assert.Equal(t, 3, a.MaxTurns())

	_, err = NewBuilder().WithResponder(nil).WithID("").Build()
	assert.Error(t, err)

	_, err = NewBuilder().Build()
	assert.ErrorIs(t, err, ErrResponderNotSet)
}

func TestNew_GeneratesUniqueIDs(t *testing.T) {
	a, b := New(responder.Echo{}), New(responder.Echo{})
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, string(a.ID()), a.Name())
}
