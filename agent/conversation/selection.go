package conversation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentchat/agent/responder"
	"github.com/BaSui01/agentchat/types"
)

var (
	// ErrNoEligibleSpeaker 没有可发言的 Agent，会话正常结束
	ErrNoEligibleSpeaker = types.NewError(types.ErrNoEligibleSpeaker, "no eligible speaker")

	// ErrSelectionPolicyViolation 选择策略返回了不在注册表中的 Agent
	ErrSelectionPolicyViolation = types.NewError(types.ErrSelectionPolicyViolation, "selector returned an agent that is not live")
)

// Candidate 是一个可被选中的在线 Agent。
type Candidate struct {
	ID        types.AgentID
	Name      string
	Seq       int // 注册序号，单调递增
	Responder responder.Responder
}

// SelectionRequest 是一次发言人选择的输入。
type SelectionRequest struct {
	History    []types.Message
	Candidates []Candidate // 按注册顺序
	Previous   types.AgentID
	Round      int
}

// Last 返回历史中最后一条消息。
func (r SelectionRequest) Last() (types.Message, bool) {
	if len(r.History) == 0 {
		return types.Message{}, false
	}
	return r.History[len(r.History)-1], true
}

// Lookup 按 ID 或名称（不区分大小写）查找候选人。
func (r SelectionRequest) Lookup(key string) (Candidate, bool) {
	key = strings.TrimSpace(key)
	for _, c := range r.Candidates {
		if string(c.ID) == key {
			return c, true
		}
	}
	for _, c := range r.Candidates {
		if strings.EqualFold(c.Name, key) {
			return c, true
		}
	}
	return Candidate{}, false
}

// Selector 决定下一位发言人。返回在线 Agent 的 ID 或 ErrNoEligibleSpeaker。
type Selector interface {
	NextSpeaker(ctx context.Context, req SelectionRequest) (types.AgentID, error)
}

// SelectorFunc 将函数适配为 Selector。
type SelectorFunc func(ctx context.Context, req SelectionRequest) (types.AgentID, error)

// NextSpeaker implements Selector.
func (f SelectorFunc) NextSpeaker(ctx context.Context, req SelectionRequest) (types.AgentID, error) {
	return f(ctx, req)
}

type policyNamer interface {
	Policy() string
}

func policyOf(s Selector) string {
	if p, ok := s.(policyNamer); ok {
		return p.Policy()
	}
	return "custom"
}

// =============================================================================
// RoundRobin
// =============================================================================

// RoundRobin 按注册顺序循环选择，跳过已终止的 Agent。
type RoundRobin struct {
	mu      sync.Mutex
	lastSeq int
	started bool
}

// NewRoundRobin 创建轮询选择器
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

// Policy 返回策略名
func (s *RoundRobin) Policy() string { return "round_robin" }

// NextSpeaker implements Selector.
func (s *RoundRobin) NextSpeaker(_ context.Context, req SelectionRequest) (types.AgentID, error) {
	if len(req.Candidates) == 0 {
		return "", ErrNoEligibleSpeaker
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := req.Candidates[0]
	if s.started {
		for _, c := range req.Candidates {
			if c.Seq > s.lastSeq {
				next = c
				break
			}
		}
	}
	s.lastSeq = next.Seq
	s.started = true
	return next.ID, nil
}

// =============================================================================
// Random
// =============================================================================

// Random 在候选人中均匀随机选择。
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom 创建随机选择器
func NewRandom() *Random {
	return &Random{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededRandom 创建可复现的随机选择器
func NewSeededRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Policy 返回策略名
func (s *Random) Policy() string { return "random" }

// NextSpeaker implements Selector.
func (s *Random) NextSpeaker(_ context.Context, req SelectionRequest) (types.AgentID, error) {
	if len(req.Candidates) == 0 {
		return "", ErrNoEligibleSpeaker
	}
	s.mu.Lock()
	i := s.rng.IntN(len(req.Candidates))
	s.mu.Unlock()
	return req.Candidates[i].ID, nil
}

// =============================================================================
// Manual
// =============================================================================

// Chooser 由外部输入（控制台、通道等）选择发言人，可返回 ID 或名称。
type Chooser interface {
	Choose(ctx context.Context, req SelectionRequest) (string, error)
}

// ChooserFunc 将函数适配为 Chooser。
type ChooserFunc func(ctx context.Context, req SelectionRequest) (string, error)

// Choose implements Chooser.
func (f ChooserFunc) Choose(ctx context.Context, req SelectionRequest) (string, error) {
	return f(ctx, req)
}

// DefaultManualAttempts 无效输入的最大重试次数
const DefaultManualAttempts = 3

// Manual 由 Chooser 指定发言人，多次无效后回退为轮询。
type Manual struct {
	chooser     Chooser
	maxAttempts int
	fallback    *RoundRobin
	logger      *zap.Logger
}

// ManualOption 配置 Manual
type ManualOption func(*Manual)

// WithMaxAttempts 设置无效输入的最大重试次数
func WithMaxAttempts(n int) ManualOption {
	return func(m *Manual) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithManualLogger 设置日志
func WithManualLogger(logger *zap.Logger) ManualOption {
	return func(m *Manual) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManual 创建手动选择器
func NewManual(chooser Chooser, opts ...ManualOption) *Manual {
	m := &Manual{
		chooser:     chooser,
		maxAttempts: DefaultManualAttempts,
		fallback:    NewRoundRobin(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "manual_selector"))
	return m
}

// Policy 返回策略名
func (s *Manual) Policy() string { return "manual" }

// NextSpeaker implements Selector.
func (s *Manual) NextSpeaker(ctx context.Context, req SelectionRequest) (types.AgentID, error) {
	if len(req.Candidates) == 0 {
		return "", ErrNoEligibleSpeaker
	}
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		choice, err := s.chooser.Choose(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			s.logger.Warn("chooser failed", zap.Int("attempt", attempt), zap.Error(err))
			if errors.Is(err, ErrNoEligibleSpeaker) {
				return "", err
			}
			continue
		}
		if c, ok := req.Lookup(choice); ok {
			return c.ID, nil
		}
		s.logger.Warn("invalid speaker choice", zap.String("choice", choice), zap.Int("attempt", attempt))
	}
	s.logger.Warn("falling back to round robin", zap.Int("attempts", s.maxAttempts))
	return s.fallback.NextSpeaker(ctx, req)
}

// =============================================================================
// Auto
// =============================================================================

// Auto 通过一个选择用 Responder 决定发言人。
// 最后一条消息携带函数调用时，候选人限定为声明了对应处理器的 Agent；
// 无匹配时使用全部候选人，仅一个匹配时直接选中。
type Auto struct {
	responder responder.Responder
	fallback  *RoundRobin
	logger    *zap.Logger
}

// NewAuto 创建自动选择器，r 为 nil 时只做函数过滤与轮询。
func NewAuto(r responder.Responder, logger *zap.Logger) *Auto {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auto{
		responder: r,
		fallback:  NewRoundRobin(),
		logger:    logger.With(zap.String("component", "auto_selector")),
	}
}

// Policy 返回策略名
func (s *Auto) Policy() string { return "auto" }

// NextSpeaker implements Selector.
func (s *Auto) NextSpeaker(ctx context.Context, req SelectionRequest) (types.AgentID, error) {
	if len(req.Candidates) == 0 {
		return "", ErrNoEligibleSpeaker
	}

	eligible := req
	if last, ok := req.Last(); ok && last.HasFunction() {
		matched := FilterByFunction(req.Candidates, last.Function.Name)
		switch len(matched) {
		case 0:
			s.logger.Warn("no candidate handles function, using full candidate set",
				zap.String("function", last.Function.Name))
		case 1:
			return matched[0].ID, nil
		default:
			eligible.Candidates = matched
		}
	}

	if s.responder == nil {
		return s.fallback.NextSpeaker(ctx, eligible)
	}

	prompt := types.NewSystemMessage(selectionPrompt(eligible.Candidates))
	replies, err := s.responder.Respond(ctx, prompt, responder.Context{
		History: req.History,
		Round:   req.Round,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Warn("selector responder failed, falling back to round robin", zap.Error(err))
		return s.fallback.NextSpeaker(ctx, eligible)
	}
	for _, reply := range replies {
		if c, ok := parseSpeaker(reply.Content, eligible.Candidates); ok {
			return c.ID, nil
		}
	}
	s.logger.Debug("unparseable selector reply, falling back to round robin")
	return s.fallback.NextSpeaker(ctx, eligible)
}

// FilterByFunction 返回声明了 name 处理器的候选人。
func FilterByFunction(candidates []Candidate, name string) []Candidate {
	var matched []Candidate
	for _, c := range candidates {
		if responder.Handles(c.Responder, name) {
			matched = append(matched, c)
		}
	}
	return matched
}

func selectionPrompt(candidates []Candidate) string {
	var sb strings.Builder
	sb.WriteString("Select the next speaker. Reply with exactly one name from:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s\n", c.Name)
	}
	return sb.String()
}

// parseSpeaker 先做整句精确匹配，再取最早出现的候选人名。
func parseSpeaker(reply string, candidates []Candidate) (Candidate, bool) {
	trimmed := strings.Trim(strings.TrimSpace(reply), ".\"'`")
	for _, c := range candidates {
		if strings.EqualFold(trimmed, c.Name) || trimmed == string(c.ID) {
			return c, true
		}
	}
	lower := strings.ToLower(reply)
	best, bestAt := Candidate{}, -1
	for _, c := range candidates {
		if c.Name == "" {
			continue
		}
		at := strings.Index(lower, strings.ToLower(c.Name))
		if at >= 0 && (bestAt < 0 || at < bestAt || (at == bestAt && len(c.Name) > len(best.Name))) {
			best, bestAt = c, at
		}
	}
	return best, bestAt >= 0
}
