package agent

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentchat/agent/responder"
	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/types"
)

// Builder 提供流式构建 Agent 的能力
type Builder struct {
	responder responder.Responder
	opts      []Option
	errors    []error
}

// NewBuilder 创建 Agent 构建器
func NewBuilder() *Builder {
	return &Builder{errors: make([]error, 0)}
}

// WithResponder 设置 Responder
func (b *Builder) WithResponder(r responder.Responder) *Builder {
	if r == nil {
		b.errors = append(b.errors, fmt.Errorf("responder cannot be nil"))
		return b
	}
	b.responder = r
	return b
}

// WithMiddleware 用中间件包装已设置的 Responder
func (b *Builder) WithMiddleware(mws ...responder.Middleware) *Builder {
	if b.responder == nil {
		b.errors = append(b.errors, fmt.Errorf("middleware requires a responder"))
		return b
	}
	b.responder = responder.Chain(b.responder, mws...)
	return b
}

// WithID 指定 Agent ID
func (b *Builder) WithID(id types.AgentID) *Builder {
	if id == "" {
		b.errors = append(b.errors, fmt.Errorf("agent id cannot be empty"))
		return b
	}
	b.opts = append(b.opts, WithID(id))
	return b
}

// WithName 设置名称
func (b *Builder) WithName(name string) *Builder {
	b.opts = append(b.opts, WithName(name))
	return b
}

// WithMaxTurns 设置最大回合数
func (b *Builder) WithMaxTurns(n int) *Builder {
	if n < 0 {
		b.errors = append(b.errors, fmt.Errorf("max turns cannot be negative"))
		return b
	}
	b.opts = append(b.opts, WithMaxTurns(n))
	return b
}

// WithTerminationWords 设置终止词
func (b *Builder) WithTerminationWords(words ...string) *Builder {
	b.opts = append(b.opts, WithTerminationWords(words...))
	return b
}

// WithMailboxCapacity 设置邮箱容量
func (b *Builder) WithMailboxCapacity(n int) *Builder {
	b.opts = append(b.opts, WithMailboxCapacity(n))
	return b
}

// WithGracePeriod 设置宽限期
func (b *Builder) WithGracePeriod(d time.Duration) *Builder {
	b.opts = append(b.opts, WithGracePeriod(d))
	return b
}

// WithLogger 设置日志
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.opts = append(b.opts, WithLogger(logger))
	return b
}

// WithMetrics 设置指标收集器
func (b *Builder) WithMetrics(m *metrics.Collector) *Builder {
	b.opts = append(b.opts, WithMetrics(m))
	return b
}

// Build 构建 Agent
func (b *Builder) Build() (*Agent, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("builder errors: %w", errors.Join(b.errors...))
	}
	if b.responder == nil {
		return nil, ErrResponderNotSet
	}
	return New(b.responder, b.opts...), nil
}
