package conversation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentchat/testutil"
	"github.com/BaSui01/agentchat/types"
)

func TestChatHistory_Append(t *testing.T) {
	h := NewChatHistory()
	_, ok := h.Last()
	assert.False(t, ok)

	first := h.Append(types.NewMessage("agent:a", "one"))
	second := h.Append(types.NewMessage("agent:b", "two").WithCausalIndex(99))

	assert.Equal(t, uint64(1), first.CausalIndex)
	assert.Equal(t, uint64(2), second.CausalIndex, "caller-supplied index is replaced")
	assert.Equal(t, 2, h.Len())

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "two", last.Content)
}

func TestChatHistory_SnapshotIsCopy(t *testing.T) {
	h := NewChatHistory()
	h.Append(types.NewMessage("agent:a", "one"))

	snap := h.Snapshot()
	snap[0].Content = "mutated"
	assert.Equal(t, "one", h.Snapshot()[0].Content)
}

func TestChatHistory_Since(t *testing.T) {
	h := NewChatHistory()
	for _, c := range []string{"a", "b", "c", "d"} {
		h.Append(types.NewMessage("agent:x", c))
	}

	assert.Equal(t, []string{"c", "d"}, testutil.Contents(h.Since(2)))
	assert.Len(t, h.Since(0), 4)
	assert.Empty(t, h.Since(4))
	assert.Empty(t, h.Since(10))
}

func TestChatHistory_View(t *testing.T) {
	h := NewChatHistory()
	for _, c := range []string{"a", "b", "c"} {
		h.Append(types.NewMessage("agent:x", c))
	}
	h.advanceRound()

	full := h.View(0)
	assert.Len(t, full.Snapshot(), 3)
	assert.Equal(t, 1, full.Round())

	windowed := h.View(2)
	assert.Equal(t, []string{"b", "c"}, testutil.Contents(windowed.Snapshot()))

	h.Append(types.NewMessage("agent:x", "d"))
	assert.Equal(t, []string{"c", "d"}, testutil.Contents(windowed.Snapshot()), "view tracks live history")
}

func TestChatHistory_ConcurrentReaders(t *testing.T) {
	h := NewChatHistory()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = h.Snapshot()
				_, _ = h.Last()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		h.Append(types.NewMessage("agent:w", "m"))
	}
	wg.Wait()
	testutil.AssertStrictlyIncreasing(t, h.Snapshot())
}

func TestChatHistory_CausalIndexProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := NewChatHistory()
		contents := rapid.SliceOf(rapid.StringN(0, 8, -1)).Draw(rt, "contents")
		for _, c := range contents {
			h.Append(types.NewMessage("agent:p", c))
		}

		snap := h.Snapshot()
		if len(snap) != len(contents) {
			rt.Fatalf("expected %d messages, got %d", len(contents), len(snap))
		}
		for i, m := range snap {
			if m.CausalIndex != uint64(i+1) {
				rt.Fatalf("message %d has causal index %d", i, m.CausalIndex)
			}
			if m.Content != contents[i] {
				rt.Fatalf("message %d reordered", i)
			}
		}
	})
}
