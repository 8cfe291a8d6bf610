package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentchat/types"
)

// ProviderCall 记录一次 Generate 调用。
type ProviderCall struct {
	Prompt  string
	History []types.Message
}

// MockProvider 是 responder.Provider 的模拟实现
type MockProvider struct {
	mu       sync.RWMutex
	response string
	err      error
	calls    []ProviderCall
	fn       func(ctx context.Context, prompt string, history []types.Message) (string, error)
}

// NewMockProvider 创建返回固定响应的 MockProvider
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{response: response}
}

// WithError 注入错误
func (p *MockProvider) WithError(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	return p
}

// WithFunc 使用自定义生成函数
func (p *MockProvider) WithFunc(fn func(ctx context.Context, prompt string, history []types.Message) (string, error)) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn = fn
	return p
}

// Generate implements responder.Provider.
func (p *MockProvider) Generate(ctx context.Context, prompt string, history []types.Message) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, ProviderCall{Prompt: prompt, History: history})
	fn, resp, err := p.fn, p.response, p.err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, history)
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

// Calls 返回调用记录
func (p *MockProvider) Calls() []ProviderCall {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ProviderCall, len(p.calls))
	copy(out, p.calls)
	return out
}
