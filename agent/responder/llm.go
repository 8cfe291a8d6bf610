package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	agentcontext "github.com/BaSui01/agentchat/agent/context"
	"github.com/BaSui01/agentchat/types"
)

// Provider 是外部模型能力。实现位于本模块之外。
type Provider interface {
	Generate(ctx context.Context, prompt string, history []types.Message) (string, error)
}

// ProviderFunc 将函数适配为 Provider。
type ProviderFunc func(ctx context.Context, prompt string, history []types.Message) (string, error)

// Generate implements Provider.
func (f ProviderFunc) Generate(ctx context.Context, prompt string, history []types.Message) (string, error) {
	return f(ctx, prompt, history)
}

// LLMOption 配置 LLM Responder。
type LLMOption func(*LLM)

// WithSystemPrompt 设置系统提示词，作为历史的首条系统消息传给 Provider。
func WithSystemPrompt(prompt string) LLMOption {
	return func(l *LLM) { l.systemPrompt = prompt }
}

// WithWindow 设置历史窗口。
func WithWindow(w *agentcontext.WindowManager) LLMOption {
	return func(l *LLM) { l.window = w }
}

// WithFunctions 声明可处理的函数调用。
func WithFunctions(names ...string) LLMOption {
	return func(l *LLM) {
		for _, n := range names {
			l.functions[n] = struct{}{}
		}
	}
}

// WithLLMLogger 设置日志。
func WithLLMLogger(logger *zap.Logger) LLMOption {
	return func(l *LLM) { l.logger = logger }
}

// LLM 是基于外部 Provider 的 Responder。
type LLM struct {
	provider     Provider
	systemPrompt string
	window       *agentcontext.WindowManager
	functions    map[string]struct{}
	logger       *zap.Logger
}

// NewLLM 创建 LLM Responder。
func NewLLM(provider Provider, opts ...LLMOption) *LLM {
	l := &LLM{
		provider:  provider,
		functions: make(map[string]struct{}),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "llm_responder"))
	return l
}

// Respond implements Responder.
func (l *LLM) Respond(ctx context.Context, in types.Message, conv Context) ([]types.Message, error) {
	if l.provider == nil {
		return nil, Fatal(types.NewError(types.ErrInvalidRequest, "provider not set"))
	}

	history := conv.History
	if l.window != nil {
		trimmed, err := l.window.Apply(ctx, history)
		if err != nil {
			return nil, Transient(err)
		}
		history = trimmed
	}
	if l.systemPrompt != "" {
		withSystem := make([]types.Message, 0, len(history)+1)
		withSystem = append(withSystem, types.NewSystemMessage(l.systemPrompt))
		history = append(withSystem, history...)
	}

	text, err := l.provider.Generate(ctx, buildPrompt(in), history)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if Classify(err) == ClassFatal {
			return nil, Fatal(err)
		}
		l.logger.Debug("provider call failed", zap.String("agent", conv.Name), zap.Error(err))
		if _, ok := types.AsError(err); ok {
			return nil, Transient(err)
		}
		return nil, Transient(types.NewError(types.ErrProviderFailure, "generate failed").
			WithCause(err).WithRetryable(true))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return []types.Message{Reply(text)}, nil
}

// HandlesFunction implements FunctionHandler.
func (l *LLM) HandlesFunction(name string) bool {
	_, ok := l.functions[name]
	return ok
}

func buildPrompt(in types.Message) string {
	if in.Function == nil {
		return in.Content
	}
	args := string(in.Function.Arguments)
	if args == "" {
		args = "{}"
	}
	if in.Content == "" {
		return fmt.Sprintf("call %s(%s)", in.Function.Name, args)
	}
	return fmt.Sprintf("%s\ncall %s(%s)", in.Content, in.Function.Name, args)
}
