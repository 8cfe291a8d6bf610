package agent

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentchat/agent/mailbox"
	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/types"
)

// Broker 在独立运行（不经群聊编排）的 Agent 之间路由消息。
//   - 指定接收者的消息投递到该 Agent 的邮箱
//   - 广播投递给发送时刻已注册的所有 Agent（发送者除外），至少一次
//   - 致命失败的 Agent 会被注销
type Broker struct {
	mu      sync.RWMutex
	agents  map[types.AgentID]*Agent
	order   []types.AgentID
	taps    []func(types.Message)
	ctx     context.Context
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewBroker 创建 Broker。
func NewBroker(logger *zap.Logger, m *metrics.Collector) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		agents:  make(map[types.AgentID]*Agent),
		logger:  logger.With(zap.String("component", "broker")),
		metrics: m,
	}
}

// Register 注册 Agent；Broker 已启动时立即启动其循环。
func (b *Broker) Register(a *Agent) error {
	b.mu.Lock()
	if _, exists := b.agents[a.ID()]; exists {
		b.mu.Unlock()
		return ErrDuplicateAgent
	}
	b.agents[a.ID()] = a
	b.order = append(b.order, a.ID())
	ctx := b.ctx
	b.mu.Unlock()

	if ctx != nil {
		return a.Start(ctx, b, nil)
	}
	return nil
}

// Unregister 注销 Agent 并关闭其邮箱。
func (b *Broker) Unregister(id types.AgentID) error {
	b.mu.Lock()
	a, ok := b.agents[id]
	if !ok {
		b.mu.Unlock()
		return ErrAgentNotFound
	}
	delete(b.agents, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	a.Close()
	return nil
}

// Subscribe 注册一个旁路监听，接收所有经 Broker 路由的消息。
func (b *Broker) Subscribe(tap func(types.Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taps = append(b.taps, tap)
}

// Agents 按注册顺序返回已注册的 Agent。
func (b *Broker) Agents() []*Agent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Agent, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.agents[id])
	}
	return out
}

// Start 启动所有已注册 Agent 的循环。
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.ctx != nil {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.ctx = ctx
	b.mu.Unlock()

	for _, a := range b.Agents() {
		if err := a.Start(ctx, b, nil); err != nil {
			return err
		}
	}
	return nil
}

// Stop 并发终止所有 Agent，每个 Agent 受其宽限期约束。
func (b *Broker) Stop(ctx context.Context) error {
	var g errgroup.Group
	for _, a := range b.Agents() {
		g.Go(func() error {
			return a.Terminate(ctx)
		})
	}
	return g.Wait()
}

// Send 路由一条消息，有界邮箱满时等待。
func (b *Broker) Send(ctx context.Context, msg types.Message) error {
	if err := msg.Validate(); err != nil {
		return &SendError{Msg: msg, Err: types.NewError(types.ErrInvalidRequest, err.Error())}
	}
	return b.route(ctx, msg, true)
}

// Deliver implements Outbox. 回合输出以非阻塞方式路由。
func (b *Broker) Deliver(turn Turn) {
	for _, out := range turn.Output {
		if out.IsError() && out.IsBroadcast() {
			// 无接收者的错误消息只交给监听方
			b.tap(out)
			continue
		}
		if err := b.route(context.Background(), out, false); err != nil {
			b.logger.Warn("failed to route turn output",
				zap.String("agent_id", string(turn.Agent)),
				zap.String("message_id", out.ID),
				zap.Error(err))
		}
	}
	if turn.Fatal {
		b.logger.Error("agent failed, unregistering",
			zap.String("agent_id", string(turn.Agent)), zap.Error(turn.Err))
		_ = b.Unregister(turn.Agent)
	}
}

func (b *Broker) route(ctx context.Context, msg types.Message, wait bool) error {
	b.tap(msg)

	if !msg.IsBroadcast() {
		b.mu.RLock()
		a, ok := b.agents[msg.Recipient]
		b.mu.RUnlock()
		if !ok {
			b.metrics.RecordBrokerRoute("direct", "not_found")
			return &SendError{Msg: msg, Err: ErrAgentNotFound}
		}
		err := b.deliverTo(ctx, a, msg, wait)
		b.metrics.RecordBrokerRoute("direct", routeStatus(err))
		return err
	}

	// 快照发送时刻的注册表
	b.mu.RLock()
	targets := make([]*Agent, 0, len(b.order))
	for _, id := range b.order {
		if id != msg.Sender {
			targets = append(targets, b.agents[id])
		}
	}
	b.mu.RUnlock()

	var g errgroup.Group
	for _, a := range targets {
		g.Go(func() error {
			err := b.deliverTo(ctx, a, msg, wait)
			if errors.Is(err, mailbox.ErrMailboxClosed) {
				b.logger.Debug("skipping closed mailbox",
					zap.String("agent_id", string(a.ID())), zap.String("message_id", msg.ID))
				b.metrics.RecordBrokerRoute("broadcast", "skipped")
				return nil
			}
			b.metrics.RecordBrokerRoute("broadcast", routeStatus(err))
			return err
		})
	}
	return g.Wait()
}

func (b *Broker) deliverTo(ctx context.Context, a *Agent, msg types.Message, wait bool) error {
	if wait {
		return a.SendContext(ctx, msg)
	}
	return a.Send(msg)
}

func (b *Broker) tap(msg types.Message) {
	b.mu.RLock()
	taps := b.taps
	b.mu.RUnlock()
	for _, t := range taps {
		t(msg)
	}
}

func routeStatus(err error) string {
	if err != nil {
		return "failed"
	}
	return "delivered"
}
