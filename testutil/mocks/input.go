package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/BaSui01/agentchat/agent/responder"
)

// MockInput 是 responder.InputProvider 的模拟实现，按顺序返回预设答案，
// 答案耗尽后返回 io.EOF。
type MockInput struct {
	mu      sync.Mutex
	answers []string
	prompts []responder.Context
}

// NewMockInput 创建 MockInput
func NewMockInput(answers ...string) *MockInput {
	return &MockInput{answers: answers}
}

// PromptUser implements responder.InputProvider.
func (m *MockInput) PromptUser(ctx context.Context, conv responder.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, conv)
	if len(m.answers) == 0 {
		return "", io.EOF
	}
	a := m.answers[0]
	m.answers = m.answers[1:]
	return a, nil
}

// Prompts 返回提示次数
func (m *MockInput) Prompts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
