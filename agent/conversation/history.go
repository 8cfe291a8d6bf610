package conversation

import (
	"sync"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/types"
)

// ChatHistory 是只追加的有序消息序列，由 GroupChat 独占写入。
// causal_index 从 1 开始严格递增，已追加的消息不会被删除或重排。
type ChatHistory struct {
	mu    sync.RWMutex
	msgs  []types.Message
	next  uint64
	round int
}

// NewChatHistory 创建空历史
func NewChatHistory() *ChatHistory {
	return &ChatHistory{next: 1}
}

// Append 为消息分配下一个 causal_index 并追加，返回带序号的副本。
func (h *ChatHistory) Append(msg types.Message) types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg = msg.WithCausalIndex(h.next)
	h.next++
	h.msgs = append(h.msgs, msg)
	return msg
}

// Snapshot 返回历史副本
func (h *ChatHistory) Snapshot() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Last 返回最后一条消息
func (h *ChatHistory) Last() (types.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.msgs) == 0 {
		return types.Message{}, false
	}
	return h.msgs[len(h.msgs)-1], true
}

// Len 返回消息数
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}

// Since 返回 causal_index 大于 index 的消息
func (h *ChatHistory) Since(index uint64) []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	// causal_index 与下标一一对应
	if index >= uint64(len(h.msgs)) {
		return nil
	}
	out := make([]types.Message, len(h.msgs)-int(index))
	copy(out, h.msgs[index:])
	return out
}

// Round 返回已完成的轮次
func (h *ChatHistory) Round() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.round
}

func (h *ChatHistory) advanceRound() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.round++
	return h.round
}

// View 返回供 Responder 使用的只读视图，window > 0 时只暴露最近 window 条。
func (h *ChatHistory) View(window int) agent.HistoryView {
	return historyView{h: h, window: window}
}

type historyView struct {
	h      *ChatHistory
	window int
}

func (v historyView) Snapshot() []types.Message {
	msgs := v.h.Snapshot()
	if v.window > 0 && len(msgs) > v.window {
		msgs = msgs[len(msgs)-v.window:]
	}
	return msgs
}

func (v historyView) Round() int { return v.h.Round() }
