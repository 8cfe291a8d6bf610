package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentchat/agent/mailbox"
	"github.com/BaSui01/agentchat/agent/responder"
	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/types"
)

// ExitReason 描述 Agent 循环退出的原因。
type ExitReason string

const (
	ExitNone            ExitReason = ""
	ExitDrained         ExitReason = "drained"
	ExitMaxTurns        ExitReason = "max_turns"
	ExitTerminalMessage ExitReason = "terminal_message"
	ExitFatal           ExitReason = "fatal"
	ExitAborted         ExitReason = "aborted"
)

// Turn 是一次消息处理的结果，由 Agent 上报给 Outbox。
type Turn struct {
	Agent     types.AgentID
	AgentName string
	Input     types.Message
	Output    []types.Message // 可恢复错误时为一条 error 类型消息
	Err       error
	Fatal     bool
	Cancelled bool // 已取消，输出已丢弃
	Duration  time.Duration
}

// Outbox 接收 Agent 的回合结果。Deliver 不得阻塞。
type Outbox interface {
	Deliver(turn Turn)
}

// OutboxFunc 将函数适配为 Outbox。
type OutboxFunc func(turn Turn)

// Deliver implements Outbox.
func (f OutboxFunc) Deliver(turn Turn) { f(turn) }

// HistoryView 提供 Responder 可见的只读历史。
type HistoryView interface {
	Snapshot() []types.Message
	Round() int
}

// Agent 是包装 Mailbox 与 Responder 的 Actor。
// 它只通过 Outbox 产生副作用，从不直接访问其他 Agent。
type Agent struct {
	id              types.AgentID
	name            string
	responder       responder.Responder
	mailbox         *mailbox.Mailbox[types.Message]
	mailboxCapacity int
	maxTurns        int
	terminal        func(types.Message) bool
	gracePeriod     time.Duration
	logger          *zap.Logger
	metrics         *metrics.Collector

	turns   atomic.Int64
	started atomic.Bool
	done    chan struct{}

	mu         sync.Mutex
	err        error
	exit       ExitReason
	cancelLoop context.CancelFunc
	cancelTurn context.CancelFunc
	inflight   string
	queued     map[string]int // 经 Send/SendContext 入队、尚未出队的消息
	skip       map[string]int
}

// New 创建 Agent。
func New(r responder.Responder, opts ...Option) *Agent {
	a := &Agent{
		id:        types.NewAgentID(),
		responder: r,
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
		queued:    make(map[string]int),
		skip:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.name == "" {
		a.name = string(a.id)
	}
	if a.gracePeriod <= 0 {
		a.gracePeriod = gracePeriodFromEnv()
	}
	a.logger = a.logger.With(
		zap.String("component", "agent"),
		zap.String("agent_id", string(a.id)),
		zap.String("agent_name", a.name),
	)

	mbOpts := []mailbox.Option{mailbox.WithCapacity(a.mailboxCapacity), mailbox.WithName(a.name)}
	if a.metrics != nil {
		mbOpts = append(mbOpts, mailbox.WithRecorder(a.metrics))
	}
	a.mailbox = mailbox.New[types.Message](mbOpts...)
	return a
}

// ID 返回 Agent ID。
func (a *Agent) ID() types.AgentID { return a.id }

// Name 返回显示名称。
func (a *Agent) Name() string { return a.name }

// Responder 返回 Agent 持有的 Responder。
func (a *Agent) Responder() responder.Responder { return a.responder }

// Turns 返回已完成的回合数。
func (a *Agent) Turns() int { return int(a.turns.Load()) }

// MaxTurns 返回最大回合数，0 表示不限。
func (a *Agent) MaxTurns() int { return a.maxTurns }

// GracePeriod 返回 Terminate 的宽限期。
func (a *Agent) GracePeriod() time.Duration { return a.gracePeriod }

// Done 在循环退出后关闭。
func (a *Agent) Done() <-chan struct{} { return a.done }

// Err 返回导致 Agent 终止的致命错误。
func (a *Agent) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// ExitReason 返回循环退出原因，运行中返回 ExitNone。
func (a *Agent) ExitReason() ExitReason {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exit
}

// Alive 报告 Agent 是否仍在接收消息。
func (a *Agent) Alive() bool {
	select {
	case <-a.done:
		return false
	default:
		return !a.mailbox.Closed()
	}
}

// Send 向 Agent 的邮箱投递消息。失败时返回携带原消息的 *SendError。
func (a *Agent) Send(msg types.Message) error {
	a.track(msg.ID, 1)
	if err := a.mailbox.Send(msg); err != nil {
		a.track(msg.ID, -1)
		return &SendError{Msg: msg, Err: err}
	}
	return nil
}

// SendContext 同 Send，有界邮箱满时等待。
func (a *Agent) SendContext(ctx context.Context, msg types.Message) error {
	a.track(msg.ID, 1)
	if err := a.mailbox.SendContext(ctx, msg); err != nil {
		a.track(msg.ID, -1)
		return &SendError{Msg: msg, Err: err}
	}
	return nil
}

func (a *Agent) track(msgID string, delta int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trackLocked(msgID, delta)
}

func (a *Agent) trackLocked(msgID string, delta int) {
	n := a.queued[msgID] + delta
	if n <= 0 {
		delete(a.queued, msgID)
		return
	}
	a.queued[msgID] = n
}

// Sender 返回邮箱的只写句柄。
func (a *Agent) Sender() mailbox.Sender[types.Message] { return a.mailbox.Sender() }

// Start 启动事件循环。view 为 nil 时 Agent 使用自身的本地记录作为上下文。
func (a *Agent) Start(ctx context.Context, out Outbox, view HistoryView) error {
	if a.responder == nil {
		return ErrResponderNotSet
	}
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if out == nil {
		out = OutboxFunc(func(Turn) {})
	}
	var local *transcript
	if view == nil {
		local = &transcript{}
		view = local
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancelLoop = cancel
	a.mu.Unlock()

	a.metrics.RecordAgentLifecycle("started")
	a.logger.Debug("agent started", zap.Int("max_turns", a.maxTurns))

	go a.run(loopCtx, out, view, local)
	return nil
}

func (a *Agent) run(ctx context.Context, out Outbox, view HistoryView, local *transcript) {
	defer close(a.done)
	defer a.mailbox.Close()

	for {
		if ctx.Err() != nil {
			a.finish(ExitAborted)
			return
		}
		msg, ok, err := a.mailbox.Receive(ctx)
		if err != nil || (!ok && ctx.Err() != nil) {
			a.finish(ExitAborted)
			return
		}
		if !ok {
			a.finish(ExitDrained)
			return
		}

		if reason, stop := a.shouldStop(msg); stop {
			a.mailbox.Close()
			a.finish(reason)
			return
		}

		if local != nil {
			local.record(true, msg)
		}
		turn := a.dispatch(ctx, msg, view)
		if local != nil && !turn.Cancelled {
			local.record(false, turn.Output...)
		}
		out.Deliver(turn)

		if turn.Fatal {
			a.finish(ExitFatal)
			return
		}
	}
}

// shouldStop 在每次派发前检查终止策略。
func (a *Agent) shouldStop(msg types.Message) (ExitReason, bool) {
	if a.maxTurns > 0 && a.Turns() >= a.maxTurns {
		return ExitMaxTurns, true
	}
	if a.terminal != nil && a.terminal(msg) {
		return ExitTerminalMessage, true
	}
	return ExitNone, false
}

func (a *Agent) dispatch(ctx context.Context, msg types.Message, view HistoryView) Turn {
	turn := Turn{Agent: a.id, AgentName: a.name, Input: msg}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.trackLocked(msg.ID, -1)
	if n := a.skip[msg.ID]; n > 0 {
		if n == 1 {
			delete(a.skip, msg.ID)
		} else {
			a.skip[msg.ID] = n - 1
		}
		a.mu.Unlock()
		turn.Cancelled = true
		a.metrics.RecordAgentTurn(a.name, "cancelled", 0)
		return turn
	}
	a.inflight = msg.ID
	a.cancelTurn = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inflight = ""
		a.cancelTurn = nil
		a.mu.Unlock()
	}()

	conv := responder.Context{
		Self:    a.id,
		Name:    a.name,
		History: view.Snapshot(),
		Round:   view.Round(),
	}

	start := time.Now()
	output, err := a.respond(turnCtx, msg, conv)
	turn.Duration = time.Since(start)

	switch {
	// 只有回合本身被取消才丢弃输出；Responder 内部返回的取消错误按可恢复处理
	case turnCtx.Err() != nil:
		turn.Cancelled = true
		a.metrics.RecordAgentTurn(a.name, "cancelled", turn.Duration)
		a.logger.Debug("turn cancelled, output dropped", zap.String("input_id", msg.ID))

	case err == nil:
		turn.Output = a.stamp(output, msg)
		a.turns.Add(1)
		a.metrics.RecordAgentTurn(a.name, "ok", turn.Duration)

	case responder.IsFatal(err):
		turn.Err = err
		turn.Fatal = true
		a.mu.Lock()
		a.err = err
		a.mu.Unlock()
		a.metrics.RecordAgentTurn(a.name, "fatal", turn.Duration)
		a.logger.Error("responder failed fatally", zap.String("input_id", msg.ID), zap.Error(err))

	default:
		turn.Err = err
		errMsg := types.NewErrorMessage(a.id, msg.Sender, msg.ID, responder.AsTypedError(err)).From(a.id, a.name)
		turn.Output = []types.Message{errMsg}
		a.turns.Add(1)
		a.metrics.RecordAgentTurn(a.name, "transient", turn.Duration)
		a.logger.Warn("responder failed", zap.String("input_id", msg.ID), zap.Error(err))
	}
	return turn
}

// respond 调用 Responder，panic 视为致命错误。
func (a *Agent) respond(ctx context.Context, msg types.Message, conv responder.Context) (out []types.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = responder.Fatal(types.NewError(types.ErrInternalError, fmt.Sprintf("responder panic: %v", r)))
		}
	}()
	return a.responder.Respond(ctx, msg, conv)
}

// stamp 补齐回复的发送者、回复关系与元数据，返回新切片。
func (a *Agent) stamp(output []types.Message, in types.Message) []types.Message {
	if len(output) == 0 {
		return nil
	}
	stamped := make([]types.Message, 0, len(output))
	for _, m := range output {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Kind == "" {
			m.Kind = types.KindText
		}
		if m.InReplyTo == "" {
			m.InReplyTo = in.ID
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		m = m.From(a.id, a.name).WithCausalIndex(0)
		stamped = append(stamped, m)
	}
	return stamped
}

func (a *Agent) finish(reason ExitReason) {
	a.mu.Lock()
	a.exit = reason
	cancel := a.cancelLoop
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	event := "stopped"
	switch reason {
	case ExitFatal:
		event = "failed"
	case ExitAborted:
		event = "aborted"
	}
	a.metrics.RecordAgentLifecycle(event)
	a.logger.Debug("agent stopped", zap.String("reason", string(reason)), zap.Int("turns", a.Turns()))
}

// CancelTurn 取消处理 msgID 的回合。消息仍在队列中时将在出队后直接丢弃，
// 已处理完的消息不受影响。只跟踪经 Send/SendContext 投递的消息。
func (a *Agent) CancelTurn(msgID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inflight == msgID && a.cancelTurn != nil {
		a.cancelTurn()
		return
	}
	if a.queued[msgID] > a.skip[msgID] {
		a.skip[msgID]++
	}
}

// Close 关闭邮箱，已排队的消息仍会被处理。
func (a *Agent) Close() {
	a.mailbox.Close()
}

// Terminate 关闭邮箱并在宽限期内等待循环退出，超时后中止。
func (a *Agent) Terminate(ctx context.Context) error {
	a.mailbox.Close()
	if !a.started.Load() {
		return nil
	}

	timer := time.NewTimer(a.gracePeriod)
	defer timer.Stop()

	select {
	case <-a.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	a.logger.Warn("grace period exceeded, aborting agent", zap.Duration("grace_period", a.gracePeriod))
	a.Abort()
	return ErrGracePeriodExceeded
}

// Abort 立即取消循环与进行中的回合。
func (a *Agent) Abort() {
	a.mu.Lock()
	cancel := a.cancelLoop
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.mailbox.Close()
}

// transcript 是未接入群聊的 Agent 的本地上下文。
type transcript struct {
	mu    sync.Mutex
	msgs  []types.Message
	round int
}

func (t *transcript) record(input bool, msgs ...types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, msgs...)
	if input {
		t.round++
	}
}

func (t *transcript) Snapshot() []types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

func (t *transcript) Round() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.round
}
