package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/agent/mailbox"
	"github.com/BaSui01/agentchat/agent/persistence"
	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/types"
)

const tracerName = "github.com/BaSui01/agentchat/agent/conversation"

// TerminationReason 会话结束原因
type TerminationReason string

const (
	ReasonMaxRounds         TerminationReason = "max_rounds"
	ReasonTerminalMessage   TerminationReason = "terminal_message"
	ReasonNoEligibleSpeaker TerminationReason = "no_eligible_speaker"
	ReasonInterrupted       TerminationReason = "interrupted"
	ReasonCancelled         TerminationReason = "cancelled"
	ReasonAborted           TerminationReason = "aborted"
)

var (
	// ErrDispatchInFlight 派发进行中时不允许修改注册表
	ErrDispatchInFlight = errors.New("registry cannot change while a dispatch is in flight")

	// ErrChatAlreadyRun 每个 GroupChat 只能运行一次
	ErrChatAlreadyRun = errors.New("group chat already run")

	errDispatchTimeout = types.NewError(types.ErrTimeout, "dispatch timed out").WithRetryable(true)
	errInterrupted     = types.NewError(types.ErrInterrupted, "dispatch interrupted")
	errAgentExited     = errors.New("agent exited")
)

// GroupChatConfig 群聊配置
type GroupChatConfig struct {
	// MaxRounds 最大轮次，0 表示不限
	MaxRounds int `json:"max_rounds" yaml:"max_rounds"`

	// DispatchTimeout 单轮等待回复的上限，0 表示协作式等待
	DispatchTimeout time.Duration `json:"dispatch_timeout" yaml:"dispatch_timeout"`

	// TerminationWords 命中任一关键词（不区分大小写）即结束
	TerminationWords []string `json:"termination_words" yaml:"termination_words"`

	// AdminName / AdminID 中断时接管发言的管理员
	AdminName string        `json:"admin_name" yaml:"admin_name"`
	AdminID   types.AgentID `json:"admin_id" yaml:"admin_id"`

	// HistoryWindow Responder 可见的最近消息数，0 表示全部
	HistoryWindow int `json:"history_window" yaml:"history_window"`

	// BroadcastRounds 每轮并发派发给所有在线 Agent
	BroadcastRounds bool `json:"broadcast_rounds" yaml:"broadcast_rounds"`
}

// DefaultGroupChatConfig 返回默认配置
func DefaultGroupChatConfig() GroupChatConfig {
	return GroupChatConfig{
		MaxRounds:        10,
		TerminationWords: []string{"TERMINATE"},
	}
}

// Validate 校验配置
func (c GroupChatConfig) Validate() error {
	if c.MaxRounds < 0 {
		return fmt.Errorf("max_rounds cannot be negative")
	}
	if c.DispatchTimeout < 0 {
		return fmt.Errorf("dispatch_timeout cannot be negative")
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history_window cannot be negative")
	}
	return nil
}

// Removal 记录一个被移出注册表的 Agent。
type Removal struct {
	Agent types.AgentID `json:"agent"`
	Name  string        `json:"name"`
	Err   error         `json:"-"`
}

// Result 会话结果
type Result struct {
	ChatID     string            `json:"chat_id"`
	History    []types.Message   `json:"history"`
	Rounds     int               `json:"rounds"`
	Reason     TerminationReason `json:"reason"`
	Removed    []Removal         `json:"removed,omitempty"`
	SinkErrors []error           `json:"-"`
	Duration   time.Duration     `json:"duration"`
}

// Senders 返回历史的发送者序列
func (r *Result) Senders() []types.AgentID {
	out := make([]types.AgentID, len(r.History))
	for i, m := range r.History {
		out[i] = m.Sender
	}
	return out
}

// Option 配置 GroupChat
type Option func(*GroupChat)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(g *GroupChat) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(g *GroupChat) { g.metrics = m }
}

// WithTracer 设置 Tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(g *GroupChat) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithSink 设置历史追加钩子
func WithSink(s persistence.HistorySink) Option {
	return func(g *GroupChat) { g.sink = s }
}

// WithInterrupts 订阅外部中断信号
func WithInterrupts(ch <-chan struct{}) Option {
	return func(g *GroupChat) { g.external = ch }
}

// WithChatID 指定会话 ID
func WithChatID(id string) Option {
	return func(g *GroupChat) {
		if id != "" {
			g.id = id
		}
	}
}

type member struct {
	agent *agent.Agent
	seq   int
}

type turnKey struct {
	agent types.AgentID
	msgID string
}

// GroupChat 持有 Agent 注册表、聊天历史与发言人选择策略，驱动轮次推进。
// 它协调但不独占 Agent 的执行：每个 Agent 运行自己的循环，
// 回合结果经 Deliver 进入 GroupChat 的收件箱。
type GroupChat struct {
	id       string
	cfg      GroupChatConfig
	selector Selector
	history  *ChatHistory
	view     agent.HistoryView
	terminal func(types.Message) bool
	inbox    *mailbox.Mailbox[agent.Turn]

	logger   *zap.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
	sink     persistence.HistorySink
	external <-chan struct{}

	mu       sync.Mutex
	members  []*member
	retired  []*member
	nextSeq  int
	inflight bool
	ran      bool
	agentCtx context.Context

	// stale 记录已放弃的派发，迟到的回合按次数丢弃
	stale map[turnKey]int

	// interruptSig 在中断挂起时关闭，消费后换成新通道，所有观察者都能看到同一次中断
	intrMu       sync.Mutex
	pending      bool
	interruptSig chan struct{}
}

// NewGroupChat 创建群聊，agents 按给定顺序注册。selector 为 nil 时使用轮询。
func NewGroupChat(agents []*agent.Agent, selector Selector, cfg GroupChatConfig, opts ...Option) (*GroupChat, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if selector == nil {
		selector = NewRoundRobin()
	}
	g := &GroupChat{
		id:          "chat_" + uuid.NewString(),
		cfg:         cfg,
		selector:    selector,
		history:     NewChatHistory(),
		terminal:    agent.ContainsAny(cfg.TerminationWords...),
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
		stale:        make(map[turnKey]int),
		interruptSig: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.view = g.history.View(cfg.HistoryWindow)
	g.logger = g.logger.With(zap.String("component", "groupchat"), zap.String("chat_id", g.id))
	g.inbox = mailbox.New[agent.Turn](mailbox.WithName("groupchat"))

	for _, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("agent cannot be nil")
		}
		if g.lookupLocked(a.ID()) != nil {
			return nil, fmt.Errorf("%w: %s", agent.ErrDuplicateAgent, a.ID())
		}
		g.members = append(g.members, &member{agent: a, seq: g.nextSeq})
		g.nextSeq++
	}
	return g, nil
}

// ID 返回会话 ID
func (g *GroupChat) ID() string { return g.id }

// Config 返回配置
func (g *GroupChat) Config() GroupChatConfig { return g.cfg }

// History 返回历史快照
func (g *GroupChat) History() []types.Message { return g.history.Snapshot() }

// Rounds 返回已完成轮次
func (g *GroupChat) Rounds() int { return g.history.Round() }

// Agents 按注册顺序返回在线 Agent
func (g *GroupChat) Agents() []*agent.Agent {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*agent.Agent, 0, len(g.members))
	for _, m := range g.members {
		if m.agent.Alive() {
			out = append(out, m.agent)
		}
	}
	return out
}

// Add 在轮次边界加入 Agent；会话运行中会立即启动其循环。
func (g *GroupChat) Add(a *agent.Agent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight {
		return ErrDispatchInFlight
	}
	if g.lookupLocked(a.ID()) != nil {
		return fmt.Errorf("%w: %s", agent.ErrDuplicateAgent, a.ID())
	}
	if g.agentCtx != nil {
		if err := a.Start(g.agentCtx, g, g.view); err != nil {
			return err
		}
	}
	g.members = append(g.members, &member{agent: a, seq: g.nextSeq})
	g.nextSeq++
	return nil
}

// Remove 在轮次边界移除 Agent 并关闭其邮箱。
func (g *GroupChat) Remove(id types.AgentID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight {
		return ErrDispatchInFlight
	}
	m := g.detachLocked(id)
	if m == nil {
		return agent.ErrAgentNotFound
	}
	m.agent.Close()
	return nil
}

// Interrupt 发出中断信号，可在任意 goroutine 调用，重复调用会被合并。
func (g *GroupChat) Interrupt() {
	g.intrMu.Lock()
	defer g.intrMu.Unlock()
	if g.pending {
		return
	}
	g.pending = true
	close(g.interruptSig)
}

func (g *GroupChat) interruptSignal() <-chan struct{} {
	g.intrMu.Lock()
	defer g.intrMu.Unlock()
	return g.interruptSig
}

func (g *GroupChat) interruptPending() bool {
	g.intrMu.Lock()
	defer g.intrMu.Unlock()
	return g.pending
}

func (g *GroupChat) consumeInterrupt() {
	g.intrMu.Lock()
	defer g.intrMu.Unlock()
	if !g.pending {
		return
	}
	g.pending = false
	g.interruptSig = make(chan struct{})
}

// Deliver implements agent.Outbox.
func (g *GroupChat) Deliver(turn agent.Turn) {
	if err := g.inbox.Send(turn); err != nil {
		g.logger.Debug("chat finished, dropping turn",
			zap.String("agent_id", string(turn.Agent)), zap.String("input_id", turn.Input.ID))
	}
}

// Run 驱动会话直到终止。prompt 作为第 0 轮输入，不写入历史。
func (g *GroupChat) Run(ctx context.Context, prompt types.Message) (*Result, error) {
	if err := prompt.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid prompt").WithCause(err)
	}

	g.mu.Lock()
	if g.ran {
		g.mu.Unlock()
		return nil, ErrChatAlreadyRun
	}
	g.ran = true
	agentCtx, cancelAgents := context.WithCancel(ctx)
	defer cancelAgents()
	g.agentCtx = agentCtx
	members := append([]*member(nil), g.members...)
	g.mu.Unlock()

	ctx, span := g.tracer.Start(ctx, "groupchat.run", trace.WithAttributes(
		attribute.String("chat.id", g.id),
		attribute.Int("chat.agents", len(members)),
		attribute.String("chat.policy", policyOf(g.selector)),
	))
	defer span.End()

	start := time.Now()
	res := &Result{ChatID: g.id}

	for _, m := range members {
		if err := m.agent.Start(agentCtx, g, g.view); err != nil {
			g.shutdown(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("start agent %s: %w", m.agent.ID(), err)
		}
	}

	stopForward := g.forwardInterrupts()
	defer stopForward()

	g.logger.Info("group chat started",
		zap.Int("agents", len(members)),
		zap.String("policy", policyOf(g.selector)),
		zap.Int("max_rounds", g.cfg.MaxRounds))

	runErr := g.loop(ctx, prompt, res)

	g.shutdown(ctx)
	res.History = g.history.Snapshot()
	res.Rounds = g.history.Round()
	res.Duration = time.Since(start)

	g.metrics.RecordChatTermination(string(res.Reason))
	span.SetAttributes(
		attribute.String("chat.reason", string(res.Reason)),
		attribute.Int("chat.rounds", res.Rounds),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	g.logger.Info("group chat ended",
		zap.String("reason", string(res.Reason)),
		zap.Int("rounds", res.Rounds),
		zap.Int("messages", len(res.History)),
		zap.Int("removed", len(res.Removed)),
		zap.Duration("duration", res.Duration))
	return res, runErr
}

// loop 是轮次状态机：SelectSpeaker → Dispatch → Record → CheckTermination。
func (g *GroupChat) loop(ctx context.Context, prompt types.Message, res *Result) error {
	var previous types.AgentID
	prevOverride := false

	for {
		if err := ctx.Err(); err != nil {
			res.Reason = ReasonCancelled
			return err
		}

		targets, override, reason, err := g.selectSpeakers(ctx, previous, prevOverride, res)
		if reason != "" {
			res.Reason = reason
			return err
		}

		input := prompt
		if last, ok := g.history.Last(); ok {
			input = last
		}

		round := g.history.Round() + 1
		roundCtx, span := g.tracer.Start(ctx, "groupchat.round", trace.WithAttributes(
			attribute.Int("chat.round", round),
			attribute.Int("chat.speakers", len(targets)),
			attribute.Bool("chat.admin_override", override),
		))
		dr := g.dispatch(roundCtx, input, targets)
		recorded, last := g.collect(ctx, input, targets, dr, res)
		span.End()

		switch {
		case errors.Is(dr.cause, errInterrupted):
			if override || g.admin() == nil {
				res.Reason = ReasonInterrupted
				return nil
			}
			g.logger.Info("dispatch interrupted, admin takes the next turn")
		case dr.cause != nil && ctx.Err() != nil:
			res.Reason = ReasonCancelled
			return ctx.Err()
		}

		if len(targets) == 1 {
			previous = targets[0].agent.ID()
		} else {
			previous = ""
		}
		prevOverride = override

		if !recorded {
			// 回合失败（致命、退出或被中断），不计轮次
			continue
		}

		n := g.history.advanceRound()
		g.metrics.RecordChatRound(g.id)

		if g.cfg.MaxRounds > 0 && n >= g.cfg.MaxRounds {
			res.Reason = ReasonMaxRounds
			return nil
		}
		if last != nil && g.terminal(*last) {
			res.Reason = ReasonTerminalMessage
			return nil
		}
	}
}

// selectSpeakers 返回本轮发言人。中断挂起时由管理员接管。
func (g *GroupChat) selectSpeakers(ctx context.Context, previous types.AgentID, prevOverride bool, res *Result) ([]*member, bool, TerminationReason, error) {
	g.pruneExited(res)

	if g.interruptPending() {
		return g.overrideSpeaker(prevOverride)
	}

	candidates := g.candidates()
	if len(candidates) == 0 {
		g.metrics.RecordSpeakerSelection(policyOf(g.selector), "no_eligible")
		return nil, false, ReasonNoEligibleSpeaker, nil
	}

	if g.cfg.BroadcastRounds {
		g.metrics.RecordSpeakerSelection("broadcast", "selected")
		return g.membersFor(excludeSender(candidates, g.lastSender())), false, "", nil
	}

	selCtx, cancel := g.watchInterrupts(ctx)
	id, err := g.selector.NextSpeaker(selCtx, SelectionRequest{
		History:    g.history.Snapshot(),
		Candidates: candidates,
		Previous:   previous,
		Round:      g.history.Round(),
	})
	cancel(nil)

	if g.interruptPending() {
		return g.overrideSpeaker(prevOverride)
	}

	policy := policyOf(g.selector)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoEligibleSpeaker):
			g.metrics.RecordSpeakerSelection(policy, "no_eligible")
			return nil, false, ReasonNoEligibleSpeaker, nil
		case ctx.Err() != nil:
			return nil, false, ReasonCancelled, ctx.Err()
		default:
			g.metrics.RecordSpeakerSelection(policy, "error")
			return nil, false, ReasonAborted, fmt.Errorf("select speaker: %w", err)
		}
	}

	m := g.lookup(id)
	if m == nil || !m.agent.Alive() || !containsCandidate(candidates, id) {
		g.metrics.RecordSpeakerSelection(policy, "violation")
		g.logger.Error("selector returned a non-live agent", zap.String("agent_id", string(id)))
		return nil, false, ReasonAborted, fmt.Errorf("%w: %s", ErrSelectionPolicyViolation, id)
	}
	g.metrics.RecordSpeakerSelection(policy, "selected")
	g.logger.Debug("speaker selected", zap.String("agent_id", string(id)), zap.String("policy", policy))
	return []*member{m}, false, "", nil
}

func (g *GroupChat) overrideSpeaker(prevOverride bool) ([]*member, bool, TerminationReason, error) {
	admin := g.admin()
	if admin == nil || prevOverride {
		return nil, false, ReasonInterrupted, nil
	}
	g.consumeInterrupt()
	g.metrics.RecordSpeakerSelection("admin_override", "selected")
	g.logger.Info("interrupt received, transferring control to admin",
		zap.String("admin_id", string(admin.agent.ID())))
	return []*member{admin}, true, "", nil
}

type dispatchResult struct {
	turns     map[types.AgentID]agent.Turn
	exited    map[types.AgentID]error
	abandoned []*member
	cause     error
}

// dispatch 将 input 投递给 targets 并等待各自的回合结果。
func (g *GroupChat) dispatch(ctx context.Context, input types.Message, targets []*member) dispatchResult {
	g.setInflight(true)
	defer g.setInflight(false)

	waitCtx, cancel := g.watchInterrupts(ctx)
	defer cancel(nil)
	if g.cfg.DispatchTimeout > 0 {
		var cancelTimeout context.CancelFunc
		waitCtx, cancelTimeout = context.WithTimeoutCause(waitCtx, g.cfg.DispatchTimeout, errDispatchTimeout)
		defer cancelTimeout()
	}

	dr := dispatchResult{
		turns:  make(map[types.AgentID]agent.Turn),
		exited: make(map[types.AgentID]error),
	}
	pending := make(map[turnKey]*member, len(targets))

	var mu sync.Mutex
	var eg errgroup.Group
	for _, m := range targets {
		eg.Go(func() error {
			err := m.agent.SendContext(waitCtx, input)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				dr.exited[m.agent.ID()] = err
				return nil
			}
			pending[turnKey{m.agent.ID(), input.ID}] = m
			return nil
		})
	}
	_ = eg.Wait()

	for _, m := range pending {
		go g.watchExit(waitCtx, m, input)
	}

	for len(pending) > 0 {
		turn, ok, err := g.inbox.Receive(waitCtx)
		if err != nil || !ok {
			break
		}
		key := turnKey{turn.Agent, turn.Input.ID}
		_, want := pending[key]

		if errors.Is(turn.Err, errAgentExited) {
			if want {
				dr.exited[turn.Agent] = g.exitError(pending[key])
				delete(pending, key)
			}
			continue
		}
		if n := g.stale[key]; n > 0 {
			if n == 1 {
				delete(g.stale, key)
			} else {
				g.stale[key] = n - 1
			}
			continue
		}
		if !want {
			g.logger.Debug("dropping unexpected turn",
				zap.String("agent_id", string(turn.Agent)), zap.String("input_id", turn.Input.ID))
			continue
		}
		delete(pending, key)
		dr.turns[turn.Agent] = turn
	}

	if len(pending) > 0 {
		dr.cause = context.Cause(waitCtx)
		for key, m := range pending {
			m.agent.CancelTurn(key.msgID)
			g.stale[key]++
			dr.abandoned = append(dr.abandoned, m)
		}
	} else if g.interruptPending() {
		dr.cause = errInterrupted
	}
	return dr
}

// collect 按注册顺序记录回合输出，返回是否完成了一轮及本轮最后一条消息。
func (g *GroupChat) collect(ctx context.Context, input types.Message, targets []*member, dr dispatchResult, res *Result) (bool, *types.Message) {
	recorded := false
	var last *types.Message

	for _, m := range targets {
		id := m.agent.ID()
		if turn, ok := dr.turns[id]; ok {
			switch {
			case turn.Cancelled:
				g.logger.Debug("turn cancelled, output dropped", zap.String("agent_id", string(id)))
			case turn.Fatal:
				g.retire(m, turn.Err, res)
			default:
				for _, out := range turn.Output {
					stored := g.record(ctx, out, res)
					last = &stored
				}
				recorded = true
			}
			continue
		}
		if err, ok := dr.exited[id]; ok {
			g.retire(m, err, res)
		}
	}

	if errors.Is(dr.cause, errDispatchTimeout) {
		for _, m := range targets {
			if !isAbandoned(dr, m) {
				continue
			}
			id := m.agent.ID()
			g.logger.Warn("dispatch timed out", zap.String("agent_id", string(id)),
				zap.Duration("timeout", g.cfg.DispatchTimeout))
			errMsg := types.NewErrorMessage(id, input.Sender, input.ID, errDispatchTimeout).From(id, m.agent.Name())
			stored := g.record(ctx, errMsg, res)
			last = &stored
			recorded = true
		}
	}
	return recorded, last
}

func isAbandoned(dr dispatchResult, m *member) bool {
	for _, a := range dr.abandoned {
		if a == m {
			return true
		}
	}
	return false
}

// record 分配 causal_index 并通知 Sink。
func (g *GroupChat) record(ctx context.Context, msg types.Message, res *Result) types.Message {
	stored := g.history.Append(msg)
	if g.sink == nil {
		return stored
	}
	start := time.Now()
	err := g.sink.Append(context.WithoutCancel(ctx), g.id, stored)
	g.metrics.RecordSinkAppend(string(persistence.TypeOf(g.sink)), time.Since(start), err)
	if err != nil {
		g.logger.Warn("history sink append failed",
			zap.Uint64("causal_index", stored.CausalIndex), zap.Error(err))
		res.SinkErrors = append(res.SinkErrors, err)
	}
	return stored
}

func (g *GroupChat) watchInterrupts(ctx context.Context) (context.Context, context.CancelCauseFunc) {
	wctx, cancel := context.WithCancelCause(ctx)
	sig := g.interruptSignal()
	go func() {
		select {
		case <-sig:
			cancel(errInterrupted)
		case <-wctx.Done():
		}
	}()
	return wctx, cancel
}

func (g *GroupChat) watchExit(ctx context.Context, m *member, input types.Message) {
	select {
	case <-m.agent.Done():
		_ = g.inbox.Send(agent.Turn{
			Agent:     m.agent.ID(),
			AgentName: m.agent.Name(),
			Input:     input,
			Err:       errAgentExited,
		})
	case <-ctx.Done():
	}
}

func (g *GroupChat) forwardInterrupts() func() {
	if g.external == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case _, ok := <-g.external:
				if !ok {
					return
				}
				g.Interrupt()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func (g *GroupChat) exitError(m *member) error {
	if err := m.agent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", errAgentExited, m.agent.ExitReason())
}

// pruneExited 移除循环已退出的 Agent（达到最大回合数或命中终止词）。
func (g *GroupChat) pruneExited(res *Result) {
	g.mu.Lock()
	var gone []*member
	for _, m := range g.members {
		if !m.agent.Alive() {
			gone = append(gone, m)
		}
	}
	g.mu.Unlock()
	for _, m := range gone {
		g.retire(m, g.exitError(m), res)
	}
}

// retire 将 Agent 移出注册表并记录原因。
func (g *GroupChat) retire(m *member, err error, res *Result) {
	g.mu.Lock()
	detached := g.detachLocked(m.agent.ID())
	g.mu.Unlock()
	if detached == nil {
		return
	}
	m.agent.Close()
	res.Removed = append(res.Removed, Removal{Agent: m.agent.ID(), Name: m.agent.Name(), Err: err})
	g.logger.Warn("agent removed from registry",
		zap.String("agent_id", string(m.agent.ID())),
		zap.String("agent_name", m.agent.Name()),
		zap.Error(err))
}

// shutdown 关闭所有邮箱并在各自宽限期内等待循环退出。
func (g *GroupChat) shutdown(ctx context.Context) {
	g.mu.Lock()
	all := append(append([]*member(nil), g.members...), g.retired...)
	g.agentCtx = nil
	g.mu.Unlock()

	stopCtx := context.WithoutCancel(ctx)
	var eg errgroup.Group
	for _, m := range all {
		eg.Go(func() error {
			if err := m.agent.Terminate(stopCtx); err != nil {
				g.logger.Warn("agent did not stop cleanly",
					zap.String("agent_id", string(m.agent.ID())), zap.Error(err))
			}
			return nil
		})
	}
	_ = eg.Wait()
	g.inbox.Close()
}

func (g *GroupChat) setInflight(v bool) {
	g.mu.Lock()
	g.inflight = v
	g.mu.Unlock()
}

func (g *GroupChat) candidates() []Candidate {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Candidate, 0, len(g.members))
	for _, m := range g.members {
		if !m.agent.Alive() {
			continue
		}
		out = append(out, Candidate{
			ID:        m.agent.ID(),
			Name:      m.agent.Name(),
			Seq:       m.seq,
			Responder: m.agent.Responder(),
		})
	}
	return out
}

func (g *GroupChat) membersFor(candidates []Candidate) []*member {
	out := make([]*member, 0, len(candidates))
	for _, c := range candidates {
		if m := g.lookup(c.ID); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (g *GroupChat) admin() *member {
	if g.cfg.AdminID == "" && g.cfg.AdminName == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.members {
		if !m.agent.Alive() {
			continue
		}
		if (g.cfg.AdminID != "" && m.agent.ID() == g.cfg.AdminID) ||
			(g.cfg.AdminID == "" && m.agent.Name() == g.cfg.AdminName) {
			return m
		}
	}
	return nil
}

func (g *GroupChat) lookup(id types.AgentID) *member {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookupLocked(id)
}

func (g *GroupChat) lookupLocked(id types.AgentID) *member {
	for _, m := range g.members {
		if m.agent.ID() == id {
			return m
		}
	}
	return nil
}

func (g *GroupChat) detachLocked(id types.AgentID) *member {
	for i, m := range g.members {
		if m.agent.ID() == id {
			g.members = append(g.members[:i:i], g.members[i+1:]...)
			g.retired = append(g.retired, m)
			return m
		}
	}
	return nil
}

func (g *GroupChat) lastSender() types.AgentID {
	if last, ok := g.history.Last(); ok {
		return last.Sender
	}
	return ""
}

// excludeSender 广播时不把消息回送给发送者，除非只剩它一个
func excludeSender(candidates []Candidate, sender types.AgentID) []Candidate {
	if sender == "" {
		return candidates
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ID != sender {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}

func containsCandidate(candidates []Candidate, id types.AgentID) bool {
	for _, c := range candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}
