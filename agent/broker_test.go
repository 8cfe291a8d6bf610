package agent

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentchat/agent/responder"
	"github.com/BaSui01/agentchat/testutil"
	"github.com/BaSui01/agentchat/testutil/mocks"
	"github.com/BaSui01/agentchat/types"
)

type tapRecorder struct {
	mu   sync.Mutex
	msgs []types.Message
}

func (r *tapRecorder) record(m types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *tapRecorder) contents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return testutil.Contents(r.msgs)
}

func silent() *mocks.ScriptedResponder { return mocks.NewScriptedResponder() }

func newTestBroker(t *testing.T, agents ...*Agent) *Broker {
	t.Helper()
	b := NewBroker(zaptest.NewLogger(t), nil)
	for _, a := range agents {
		require.NoError(t, b.Register(a))
	}
	return b
}

func TestBroker_DirectSend(t *testing.T) {
	ctx := testutil.TestContext(t)
	target := silent()
	other := silent()
	a, b := New(target), New(other)
	broker := newTestBroker(t, a, b)
	require.NoError(t, broker.Start(ctx))

	require.NoError(t, broker.Send(ctx, types.NewSystemMessage("only you").To(a.ID())))

	testutil.AssertEventuallyTrue(t, func() bool { return target.CallCount() == 1 }, 2*time.Second)
	assert.Equal(t, 0, other.CallCount())
}

func TestBroker_BroadcastExcludesSender(t *testing.T) {
	ctx := testutil.TestContext(t)
	ra, rb, rc := silent(), silent(), silent()
	a, b, c := New(ra), New(rb), New(rc)
	broker := newTestBroker(t, a, b, c)
	require.NoError(t, broker.Start(ctx))

	require.NoError(t, broker.Send(ctx, types.NewMessage(a.ID(), "hello all")))

	testutil.AssertEventuallyTrue(t, func() bool {
		return rb.CallCount() == 1 && rc.CallCount() == 1
	}, 2*time.Second)
	assert.Equal(t, 0, ra.CallCount())
}

func TestBroker_RoutesReplies(t *testing.T) {
	ctx := testutil.TestContext(t)
	listener := silent()
	a := New(mocks.Replying("pong"), WithName("ponger"))
	b := New(listener)
	broker := newTestBroker(t, a, b)

	taps := &tapRecorder{}
	broker.Subscribe(taps.record)
	require.NoError(t, broker.Start(ctx))

	require.NoError(t, broker.Send(ctx, types.NewSystemMessage("ping").To(a.ID())))

	testutil.AssertEventuallyTrue(t, func() bool { return listener.CallCount() == 1 }, 2*time.Second)
	call := listener.Calls()[0]
	assert.Equal(t, "pong", call.Input.Content)
	assert.Equal(t, a.ID(), call.Input.Sender)
	assert.Equal(t, "ponger", call.Input.SenderName)
	assert.Equal(t, []string{"ping", "pong"}, taps.contents())
}

func TestBroker_UnknownRecipient(t *testing.T) {
	ctx := testutil.TestContext(t)
	broker := newTestBroker(t)

	msg := types.NewMessage("", "lost").To("agent:missing")
	err := broker.Send(ctx, msg)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrAgentNotFound))

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, msg.ID, sendErr.Message().ID)
}

func TestBroker_RejectsInvalidMessage(t *testing.T) {
	broker := newTestBroker(t)
	err := broker.Send(testutil.TestContext(t), types.Message{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestBroker_FatalAgentUnregistered(t *testing.T) {
	ctx := testutil.TestContext(t)
	failing := New(mocks.NewScriptedResponder(mocks.Step{Err: responder.Fatal(errors.New("dead"))}))
	healthy := New(silent())
	broker := newTestBroker(t, failing, healthy)
	require.NoError(t, broker.Start(ctx))

	require.NoError(t, broker.Send(ctx, types.NewSystemMessage("boom").To(failing.ID())))

	testutil.AssertEventuallyTrue(t, func() bool { return len(broker.Agents()) == 1 }, 2*time.Second)
	assert.Equal(t, healthy.ID(), broker.Agents()[0].ID())
	waitDone(t, failing)
}

func TestBroker_RegisterAfterStart(t *testing.T) {
	ctx := testutil.TestContext(t)
	broker := newTestBroker(t)
	require.NoError(t, broker.Start(ctx))

	r := silent()
	late := New(r)
	require.NoError(t, broker.Register(late))
	assert.ErrorIs(t, broker.Register(late), ErrDuplicateAgent)

	require.NoError(t, broker.Send(ctx, types.NewSystemMessage("welcome")))
	testutil.AssertEventuallyTrue(t, func() bool { return r.CallCount() == 1 }, 2*time.Second)
	assert.ErrorIs(t, broker.Start(ctx), ErrAlreadyStarted)
}

func TestBroker_UnregisterClosesMailbox(t *testing.T) {
	a := New(silent())
	broker := newTestBroker(t, a)

	require.NoError(t, broker.Unregister(a.ID()))
	assert.ErrorIs(t, broker.Unregister(a.ID()), ErrAgentNotFound)
	assert.False(t, a.Alive())
	assert.Empty(t, broker.Agents())
}

func TestBroker_Stop(t *testing.T) {
	ctx := testutil.TestContext(t)
	a, b := New(silent()), New(silent())
	broker := newTestBroker(t, a, b)
	require.NoError(t, broker.Start(ctx))

	require.NoError(t, broker.Stop(ctx))
	assert.Equal(t, ExitDrained, a.ExitReason())
	assert.Equal(t, ExitDrained, b.ExitReason())
}
