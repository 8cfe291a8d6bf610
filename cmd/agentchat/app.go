package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/agent/conversation"
	"github.com/BaSui01/agentchat/agent/hitl"
	"github.com/BaSui01/agentchat/agent/persistence"
	"github.com/BaSui01/agentchat/agent/responder"
	"github.com/BaSui01/agentchat/config"
	"github.com/BaSui01/agentchat/internal/database"
	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/internal/server"
	"github.com/BaSui01/agentchat/internal/telemetry"
	"github.com/BaSui01/agentchat/types"
)

// appIO 人工输入输出
type appIO struct {
	in  io.Reader
	out io.Writer
}

// app 持有一次群聊运行所需的全部组件
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	chat       *conversation.GroupChat
	sink       persistence.HistorySink
	interrupts *hitl.InterruptManager
	telemetry  *telemetry.Providers
	metricsSrv *server.Manager
}

// newApp 按配置组装群聊并订阅进程信号。
func newApp(ctx context.Context, cfg *config.Config, stdio appIO, cancel context.CancelFunc, logger *zap.Logger) (*app, error) {
	return assemble(ctx, cfg, stdio, logger, func(m *hitl.InterruptManager) error {
		return m.Attach("signal", hitl.NewSignalSource(cancel, hitl.WithSignalLogger(logger)))
	})
}

func assemble(_ context.Context, cfg *config.Config, stdio appIO, logger *zap.Logger, attach func(*hitl.InterruptManager) error) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.telemetry = providers

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector = metrics.NewCollectorWithRegistry(cfg.Metrics.Namespace, reg, logger)

		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.Metrics.Addr
		srvCfg.Path = cfg.Metrics.Path
		a.metricsSrv = server.NewMetricsServer(srvCfg, reg, logger)
		if err := a.metricsSrv.Start(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	console := hitl.NewConsoleInput(stdio.in, stdio.out)

	agents, selectorResponder, err := buildAgents(cfg, console, collector, logger)
	if err != nil {
		return nil, err
	}
	selector := buildSelector(cfg.Chat, selectorResponder, console, logger)

	a.sink, err = buildSink(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create history sink: %w", err)
	}

	a.interrupts = hitl.NewInterruptManager(nil, logger)
	if attach != nil {
		if err := attach(a.interrupts); err != nil {
			return nil, fmt.Errorf("failed to attach interrupt source: %w", err)
		}
	}

	opts := []conversation.Option{
		conversation.WithLogger(logger),
		conversation.WithMetrics(collector),
		conversation.WithInterrupts(a.interrupts.Interrupts()),
	}
	if providers != nil {
		opts = append(opts, conversation.WithTracer(providers.Tracer("agentchat")))
	}
	if a.sink != nil {
		opts = append(opts, conversation.WithSink(a.sink))
	}

	a.chat, err = conversation.NewGroupChat(agents, selector, chatConfig(cfg.Chat), opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Run 以 prompt 开场运行群聊
func (a *app) Run(ctx context.Context, prompt string) (*conversation.Result, error) {
	return a.chat.Run(ctx, types.NewMessage("", prompt))
}

// Close 释放所有组件，可重复调用
func (a *app) Close() error {
	var errs []error
	if a.interrupts != nil {
		errs = append(errs, a.interrupts.Close())
		a.interrupts = nil
	}
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
		a.sink = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.metricsSrv != nil {
		errs = append(errs, a.metricsSrv.Shutdown(shutdownCtx))
		a.metricsSrv = nil
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(shutdownCtx))
		a.telemetry = nil
	}
	return errors.Join(errs...)
}

func chatConfig(c config.ChatConfig) conversation.GroupChatConfig {
	return conversation.GroupChatConfig{
		MaxRounds:        c.MaxRounds,
		DispatchTimeout:  c.DispatchTimeout,
		TerminationWords: c.TerminationWords,
		AdminName:        c.AdminName,
		HistoryWindow:    c.HistoryWindow,
		BroadcastRounds:  c.BroadcastRounds,
	}
}

// buildAgents 按注册顺序创建 Agent。Chat.Selector 指定的 Agent 不参与发言，
// 其 Responder 作为 auto 策略的选择器返回。
func buildAgents(cfg *config.Config, console *hitl.ConsoleInput, collector *metrics.Collector, logger *zap.Logger) ([]*agent.Agent, responder.Responder, error) {
	var (
		agents   []*agent.Agent
		selector responder.Responder
	)
	for _, spec := range cfg.Agents {
		r := buildResponder(spec, console)

		if cfg.Chat.Selector != "" && strings.EqualFold(spec.Name, cfg.Chat.Selector) {
			selector = r
			continue
		}

		b := agent.NewBuilder().
			WithResponder(r).
			WithMiddleware(middlewareFor(spec, logger)...).
			WithName(spec.Name).
			WithMaxTurns(spec.MaxTurns).
			WithLogger(logger).
			WithMetrics(collector)
		if len(spec.TerminationWords) > 0 {
			b = b.WithTerminationWords(spec.TerminationWords...)
		}
		if capacity := spec.MailboxCapacity; capacity > 0 {
			b = b.WithMailboxCapacity(capacity)
		} else if cfg.Mailbox.Capacity > 0 {
			b = b.WithMailboxCapacity(cfg.Mailbox.Capacity)
		}
		if cfg.Mailbox.GracePeriod > 0 {
			b = b.WithGracePeriod(cfg.Mailbox.GracePeriod)
		}

		ag, err := b.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}
		agents = append(agents, ag)
	}
	if len(agents) == 0 {
		return nil, nil, config.ErrNoAgents
	}
	return agents, selector, nil
}

func buildResponder(spec config.AgentSpec, console *hitl.ConsoleInput) responder.Responder {
	switch spec.Kind {
	case "human":
		return responder.NewHuman(console, spec.Functions...)
	case "rules":
		var fallback responder.Responder
		if spec.Default != "" {
			fallback = responder.Func(func(context.Context, types.Message, responder.Context) ([]types.Message, error) {
				return []types.Message{responder.Reply(spec.Default)}, nil
			})
		}

		var matches []responder.Rule
		for _, rs := range spec.Rules {
			if rs.Function == "" {
				matches = append(matches, responder.Contains(rs.Contains, rs.Reply))
			}
		}
		rules := responder.NewRules(fallback, matches...)
		for _, rs := range spec.Rules {
			if rs.Function != "" {
				rules.OnFunction(rs.Function, constReply(rs.Reply))
			}
		}
		// 未配置规则的声明函数回显参数
		for _, fn := range spec.Functions {
			if !rules.HandlesFunction(fn) {
				rules.OnFunction(fn, func(call types.FunctionCall, _ responder.Context) (string, error) {
					return string(call.Arguments), nil
				})
			}
		}
		return rules
	default:
		return responder.Echo{}
	}
}

func constReply(reply string) func(types.FunctionCall, responder.Context) (string, error) {
	return func(types.FunctionCall, responder.Context) (string, error) { return reply, nil }
}

func middlewareFor(spec config.AgentSpec, logger *zap.Logger) []responder.Middleware {
	var mws []responder.Middleware
	if spec.RateLimit > 0 {
		burst := spec.Burst
		if burst <= 0 {
			burst = 1
		}
		mws = append(mws, responder.WithRateLimit(rate.NewLimiter(rate.Limit(spec.RateLimit), burst)))
	}
	if spec.Timeout > 0 {
		mws = append(mws, responder.WithTimeout(spec.Timeout))
	}
	if spec.Retries > 0 {
		policy := responder.DefaultRetryPolicy()
		policy.MaxRetries = spec.Retries
		mws = append(mws, responder.WithRetry(policy, logger))
	}
	return mws
}

func buildSelector(c config.ChatConfig, auto responder.Responder, chooser conversation.Chooser, logger *zap.Logger) conversation.Selector {
	switch c.Policy {
	case "random":
		if c.Seed != 0 {
			return conversation.NewSeededRandom(c.Seed)
		}
		return conversation.NewRandom()
	case "manual":
		return conversation.NewManual(chooser,
			conversation.WithMaxAttempts(c.ManualAttempts),
			conversation.WithManualLogger(logger))
	case "auto":
		return conversation.NewAuto(auto, logger)
	default:
		return conversation.NewRoundRobin()
	}
}

// buildSink 返回 nil 表示不持久化
func buildSink(cfg *config.Config, logger *zap.Logger) (persistence.HistorySink, error) {
	p := cfg.Persistence
	if p.Type == "" || p.Type == "none" {
		return nil, nil
	}

	pool := database.DefaultPoolConfig()
	if p.SQL.MaxOpenConns > 0 {
		pool.MaxOpenConns = p.SQL.MaxOpenConns
	}
	if p.SQL.MaxIdleConns > 0 {
		pool.MaxIdleConns = p.SQL.MaxIdleConns
	}
	if p.SQL.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = p.SQL.ConnMaxLifetime
	}

	return persistence.NewHistorySink(persistence.SinkConfig{
		Type:    persistence.StoreType(p.Type),
		BaseDir: p.BaseDir,
		Redis: persistence.RedisSinkConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			KeyPrefix:   cfg.Redis.KeyPrefix,
			MaxLen:      cfg.Redis.MaxLen,
			DialTimeout: cfg.Redis.DialTimeout,
		},
		SQL: persistence.SQLSinkConfig{
			DSN:         p.SQL.DSN,
			AutoMigrate: p.SQL.AutoMigrate,
			MaxRetries:  p.SQL.MaxRetries,
			Pool:        pool,
		},
	}, logger)
}

// printTranscript 打印会话记录
func printTranscript(w io.Writer, res *conversation.Result) {
	for _, m := range res.History {
		name := m.SenderName
		if name == "" {
			name = "user"
		}
		if m.IsError() {
			fmt.Fprintf(w, "[%d] %s (error %s): %s\n", m.CausalIndex, name, m.ErrorCode, m.Content)
			continue
		}
		fmt.Fprintf(w, "[%d] %s: %s\n", m.CausalIndex, name, m.Content)
	}
	fmt.Fprintf(w, "-- %s after %d rounds\n", res.Reason, res.Rounds)
	for _, r := range res.Removed {
		fmt.Fprintf(w, "-- removed %s: %v\n", r.Name, r.Err)
	}
}
