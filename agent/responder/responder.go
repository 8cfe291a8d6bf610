package responder

import (
	"context"

	"github.com/BaSui01/agentchat/types"
)

// Context 是 Responder 看到的只读会话上下文。
type Context struct {
	Self    types.AgentID
	Name    string
	History []types.Message // 只读快照，可能已按窗口裁剪
	Round   int
}

// Last 返回历史中最后一条消息。
func (c Context) Last() (types.Message, bool) {
	if len(c.History) == 0 {
		return types.Message{}, false
	}
	return c.History[len(c.History)-1], true
}

// Responder 根据输入消息和会话上下文产生零条或多条回复。
// 所有外部调用（网络、stdin）都在 Respond 内完成，必须在 ctx 取消时尽快返回。
type Responder interface {
	Respond(ctx context.Context, in types.Message, conv Context) ([]types.Message, error)
}

// FunctionHandler 是可选能力：声明可处理的函数调用名。
type FunctionHandler interface {
	HandlesFunction(name string) bool
}

// Handles 报告 r 是否声明处理函数 name。
func Handles(r Responder, name string) bool {
	fh, ok := r.(FunctionHandler)
	return ok && fh.HandlesFunction(name)
}

// Func 将函数适配为 Responder。
type Func func(ctx context.Context, in types.Message, conv Context) ([]types.Message, error)

// Respond implements Responder.
func (f Func) Respond(ctx context.Context, in types.Message, conv Context) ([]types.Message, error) {
	return f(ctx, in, conv)
}

// Reply 构造一条文本回复，发送者信息由 Agent 循环补齐。
func Reply(content string) types.Message {
	return types.NewMessage("", content)
}

// Middleware 包装 Responder。
type Middleware func(Responder) Responder

// Chain 依次应用中间件，第一个中间件位于最外层。
func Chain(r Responder, mws ...Middleware) Responder {
	for i := len(mws) - 1; i >= 0; i-- {
		r = mws[i](r)
	}
	return r
}

// wrapped 在包装时保留内层的 FunctionHandler 能力。
type wrapped struct {
	inner Responder
	fn    Func
}

func (w *wrapped) Respond(ctx context.Context, in types.Message, conv Context) ([]types.Message, error) {
	return w.fn(ctx, in, conv)
}

func (w *wrapped) HandlesFunction(name string) bool {
	return Handles(w.inner, name)
}

// Unwrap 返回被包装的 Responder。
func (w *wrapped) Unwrap() Responder { return w.inner }

func wrap(inner Responder, fn Func) Responder {
	return &wrapped{inner: inner, fn: fn}
}
