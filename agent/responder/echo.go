package responder

import (
	"context"
	"strings"

	"github.com/BaSui01/agentchat/types"
)

// Echo 原样回显输入内容。
type Echo struct{}

// Respond implements Responder.
func (Echo) Respond(_ context.Context, in types.Message, _ Context) ([]types.Message, error) {
	return []types.Message{Reply(in.Content)}, nil
}

// Rule 是一条规则：Match 命中时以 Reply 生成回复。
type Rule struct {
	Name  string
	Match func(in types.Message) bool
	Reply func(in types.Message, conv Context) ([]types.Message, error)
}

// Rules 按顺序匹配规则，第一条命中的规则生效。
type Rules struct {
	rules     []Rule
	fallback  Responder
	functions map[string]struct{}
}

// NewRules 创建规则 Responder。fallback 为 nil 时未命中返回零条消息。
func NewRules(fallback Responder, rules ...Rule) *Rules {
	return &Rules{rules: rules, fallback: fallback, functions: make(map[string]struct{})}
}

// Contains 返回匹配内容子串（不区分大小写）的规则。
func Contains(substr, reply string) Rule {
	lower := strings.ToLower(substr)
	return Rule{
		Name: "contains:" + substr,
		Match: func(in types.Message) bool {
			return strings.Contains(strings.ToLower(in.Content), lower)
		},
		Reply: func(types.Message, Context) ([]types.Message, error) {
			return []types.Message{Reply(reply)}, nil
		},
	}
}

// OnFunction 返回处理指定函数调用的规则，并声明该函数能力。
func (r *Rules) OnFunction(name string, handle func(call types.FunctionCall, conv Context) (string, error)) *Rules {
	r.functions[name] = struct{}{}
	r.rules = append(r.rules, Rule{
		Name: "function:" + name,
		Match: func(in types.Message) bool {
			return in.Function != nil && in.Function.Name == name
		},
		Reply: func(in types.Message, conv Context) ([]types.Message, error) {
			out, err := handle(*in.Function, conv)
			if err != nil {
				return nil, err
			}
			return []types.Message{Reply(out)}, nil
		},
	})
	return r
}

// Respond implements Responder.
func (r *Rules) Respond(ctx context.Context, in types.Message, conv Context) ([]types.Message, error) {
	for _, rule := range r.rules {
		if rule.Match != nil && rule.Match(in) {
			return rule.Reply(in, conv)
		}
	}
	if r.fallback != nil {
		return r.fallback.Respond(ctx, in, conv)
	}
	return nil, nil
}

// HandlesFunction implements FunctionHandler.
func (r *Rules) HandlesFunction(name string) bool {
	_, ok := r.functions[name]
	return ok
}
