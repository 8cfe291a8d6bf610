package mailbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentchat/types"
)

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	depth    int
}

func (r *recordingRecorder) RecordMailboxSend(_ string, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[outcome]++
}

func (r *recordingRecorder) SetMailboxDepth(_ string, depth int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth = depth
}

func TestMailbox_SendReceiveFIFO(t *testing.T) {
	mb := New[int]()
	for i := 0; i < 5; i++ {
		require.NoError(t, mb.Send(i))
	}
	assert.Equal(t, 5, mb.Len())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, ok, err := mb.Receive(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestMailbox_CloseDrains(t *testing.T) {
	mb := New[string]()
	require.NoError(t, mb.Send("a"))
	require.NoError(t, mb.Send("b"))
	mb.Close()
	mb.Close() // 幂等

	err := mb.Send("c")
	assert.ErrorIs(t, err, ErrMailboxClosed)
	assert.True(t, types.IsErrorCode(err, types.ErrMailboxClosed))

	ctx := context.Background()
	v, ok, err := mb.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok, err = mb.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	for i := 0; i < 3; i++ {
		_, ok, err = mb.Receive(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestMailbox_ReceiveWakesOnClose(t *testing.T) {
	mb := New[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok, _ := mb.Receive(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	mb.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestMailbox_ReceiveWakesOnSend(t *testing.T) {
	mb := New[int]()
	done := make(chan int, 1)
	go func() {
		v, _, _ := mb.Receive(context.Background())
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, mb.Sender().Send(42))

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Receive did not observe the send")
	}
}

func TestMailbox_ReceiveContextCancel(t *testing.T) {
	mb := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := mb.Receive(ctx)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMailbox_Bounded(t *testing.T) {
	rec := &recordingRecorder{}
	mb := New[int](WithCapacity(2), WithName("bounded"), WithRecorder(rec))
	require.NoError(t, mb.Send(1))
	require.NoError(t, mb.Send(2))

	err := mb.Send(3)
	assert.ErrorIs(t, err, ErrMailboxFull)
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, 2, mb.Cap())

	sent := make(chan error, 1)
	go func() {
		sent <- mb.SendContext(context.Background(), 3)
	}()

	select {
	case <-sent:
		t.Fatal("SendContext should wait for capacity")
	case <-time.After(20 * time.Millisecond):
	}

	v, ok := mb.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case err := <-sent:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("SendContext did not resume after a receive")
	}

	stats := mb.Stats()
	assert.Equal(t, int64(3), stats.Sends)
	assert.Equal(t, int64(1), stats.Receives)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, 2, stats.Depth)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 3, rec.outcomes[OutcomeAccepted])
	assert.Equal(t, 1, rec.outcomes[OutcomeFull])
	assert.Equal(t, 2, rec.depth)
}

func TestMailbox_SendContextUnblocksOnClose(t *testing.T) {
	mb := New[int](WithCapacity(1))
	require.NoError(t, mb.Send(1))

	sent := make(chan error, 1)
	go func() {
		sent <- mb.SendContext(context.Background(), 2)
	}()
	time.Sleep(20 * time.Millisecond)
	mb.Close()

	select {
	case err := <-sent:
		assert.ErrorIs(t, err, ErrMailboxClosed)
	case <-time.After(time.Second):
		t.Fatal("SendContext did not return after Close")
	}
}

func TestMailbox_TryReceiveEmpty(t *testing.T) {
	mb := New[int]()
	_, ok := mb.TryReceive()
	assert.False(t, ok)
}

func TestSender_Closed(t *testing.T) {
	mb := New[int]()
	s := mb.Sender()
	assert.False(t, s.Closed())
	mb.Close()
	assert.True(t, s.Closed())
	assert.ErrorIs(t, s.SendContext(context.Background(), 1), ErrMailboxClosed)
	select {
	case <-mb.Done():
	default:
		t.Fatal("Done should be closed")
	}
}
