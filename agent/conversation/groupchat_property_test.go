package conversation

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/testutil"
	"github.com/BaSui01/agentchat/testutil/mocks"
	"github.com/BaSui01/agentchat/types"
)

// 任意回复数量组合下，历史的 causal_index 都是 1..n 且每轮只计一次。
func TestProperty_GroupChatHistoryIsGapFree(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 4).Draw(rt, "agents")
		rounds := rapid.IntRange(1, 8).Draw(rt, "rounds")
		broadcast := rapid.Bool().Draw(rt, "broadcast")

		agents := make([]*agent.Agent, n)
		for i := range agents {
			replies := rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("replies%d", i))
			r := mocks.NewScriptedResponder()
			for j := 0; j < replies; j++ {
				r.Default.Replies = append(r.Default.Replies, fmt.Sprintf("a%d-r%d", i, j))
			}
			agents[i] = newAgent(fmt.Sprintf("a%d", i), r)
		}

		cfg := DefaultGroupChatConfig()
		cfg.MaxRounds = rounds
		cfg.BroadcastRounds = broadcast
		chat, err := NewGroupChat(agents, NewRoundRobin(), cfg)
		if err != nil {
			rt.Fatalf("new chat: %v", err)
		}

		res, err := chat.Run(testutil.TestContext(t), types.NewMessage("", "go"))
		if err != nil {
			rt.Fatalf("run: %v", err)
		}
		if res.Rounds != rounds || res.Reason != ReasonMaxRounds {
			rt.Fatalf("expected %d rounds ending at max_rounds, got %d (%s)", rounds, res.Rounds, res.Reason)
		}
		for i, m := range res.History {
			if m.CausalIndex != uint64(i+1) {
				rt.Fatalf("message %d has causal index %d", i, m.CausalIndex)
			}
			if m.Sender == "" {
				rt.Fatalf("message %d has no sender", i)
			}
		}
	})
}
