package responder

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/BaSui01/agentchat/types"
)

// InputProvider 是外部人工输入能力。
type InputProvider interface {
	PromptUser(ctx context.Context, conv Context) (string, error)
}

// Human 是由人工输入驱动的 Responder。
type Human struct {
	input     InputProvider
	functions map[string]struct{}
}

// NewHuman 创建人工 Responder，functions 为该用户可以处理的函数调用。
func NewHuman(input InputProvider, functions ...string) *Human {
	h := &Human{input: input, functions: make(map[string]struct{})}
	for _, f := range functions {
		h.functions[f] = struct{}{}
	}
	return h
}

// Respond implements Responder. 空输入产生零条回复；输入流结束视为致命错误。
func (h *Human) Respond(ctx context.Context, _ types.Message, conv Context) ([]types.Message, error) {
	text, err := h.input.PromptUser(ctx, conv)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, Fatal(types.NewError(types.ErrFatal, "user input closed").WithCause(err))
		}
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return []types.Message{Reply(text)}, nil
}

// HandlesFunction implements FunctionHandler.
func (h *Human) HandlesFunction(name string) bool {
	_, ok := h.functions[name]
	return ok
}
