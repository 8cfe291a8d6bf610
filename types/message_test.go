package types

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentID_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[AgentID]struct{})
	for i := 0; i < 100; i++ {
		id := NewAgentID()
		require.True(t, strings.HasPrefix(id.String(), "agent:"))
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestMessage_BuildersCopy(t *testing.T) {
	t.Parallel()

	orig := NewMessage("agent:a", "hi")
	addressed := orig.To("agent:b").ReplyTo("m-1").WithCausalIndex(7)

	assert.True(t, orig.IsBroadcast())
	assert.Empty(t, orig.InReplyTo)
	assert.Zero(t, orig.CausalIndex)

	assert.Equal(t, AgentID("agent:b"), addressed.Recipient)
	assert.Equal(t, "m-1", addressed.InReplyTo)
	assert.Equal(t, uint64(7), addressed.CausalIndex)
	assert.Equal(t, orig.ID, addressed.ID)
}

func TestMessage_Function(t *testing.T) {
	t.Parallel()

	msg := NewMessage("agent:a", "").WithFunction("search", []byte(`{"q":"go"}`))
	assert.True(t, msg.HasFunction())
	assert.NoError(t, msg.Validate())

	msg.Function.Name = ""
	assert.Error(t, msg.Validate())
}

func TestNewErrorMessage(t *testing.T) {
	t.Parallel()

	coded := NewErrorMessage("agent:a", "agent:b", "m-1", NewError(ErrTimeout, "slow"))
	assert.True(t, coded.IsError())
	assert.Equal(t, ErrTimeout, coded.ErrorCode)
	assert.Equal(t, AgentID("agent:b"), coded.Recipient)
	assert.Equal(t, "m-1", coded.InReplyTo)

	plain := NewErrorMessage("agent:a", "", "", errors.New("boom"))
	assert.Equal(t, ErrInternalError, plain.ErrorCode)
	assert.Equal(t, "boom", plain.Content)
}
