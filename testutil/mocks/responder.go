// Package mocks 提供 Responder 及其外部协作者的测试模拟实现。
//
// 支持固定回复、错误注入、阻塞直到取消与调用记录。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentchat/agent/responder"
	"github.com/BaSui01/agentchat/types"
)

// Step 是 ScriptedResponder 的一次预设行为。
type Step struct {
	Replies []string
	Err     error
	// Block 为 true 时阻塞直到 ctx 取消，随后返回 ctx.Err()
	Block bool
}

// Call 记录一次 Respond 调用。
type Call struct {
	Input types.Message
	Conv  responder.Context
}

// ScriptedResponder 按顺序执行预设步骤，步骤耗尽后重复 Default。
type ScriptedResponder struct {
	mu        sync.Mutex
	steps     []Step
	Default   Step
	calls     []Call
	functions map[string]struct{}
	started   chan struct{}
}

// NewScriptedResponder 创建 ScriptedResponder。
func NewScriptedResponder(steps ...Step) *ScriptedResponder {
	return &ScriptedResponder{
		steps:     steps,
		functions: make(map[string]struct{}),
		started:   make(chan struct{}, 64),
	}
}

// Replying 返回每次都回复 content 的 ScriptedResponder。
func Replying(content string) *ScriptedResponder {
	r := NewScriptedResponder()
	r.Default = Step{Replies: []string{content}}
	return r
}

// WithFunctions 声明可处理的函数。
func (r *ScriptedResponder) WithFunctions(names ...string) *ScriptedResponder {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.functions[n] = struct{}{}
	}
	return r
}

// Respond implements responder.Responder.
func (r *ScriptedResponder) Respond(ctx context.Context, in types.Message, conv responder.Context) ([]types.Message, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Input: in, Conv: conv})
	step := r.Default
	if len(r.steps) > 0 {
		step = r.steps[0]
		r.steps = r.steps[1:]
	}
	r.mu.Unlock()

	select {
	case r.started <- struct{}{}:
	default:
	}

	if step.Block {
		<-ctx.Done()
		return []types.Message{responder.Reply("partial")}, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	out := make([]types.Message, 0, len(step.Replies))
	for _, text := range step.Replies {
		out = append(out, responder.Reply(text))
	}
	return out, nil
}

// HandlesFunction implements responder.FunctionHandler.
func (r *ScriptedResponder) HandlesFunction(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.functions[name]
	return ok
}

// Calls 返回调用记录副本。
func (r *ScriptedResponder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount 返回调用次数。
func (r *ScriptedResponder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Started 在每次 Respond 开始时收到一个信号。
func (r *ScriptedResponder) Started() <-chan struct{} { return r.started }
