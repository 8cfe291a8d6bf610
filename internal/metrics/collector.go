// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全，
// 未配置指标的组件可以直接传 nil。
type Collector struct {
	// Agent 指标
	agentTurnsTotal   *prometheus.CounterVec
	agentTurnDuration *prometheus.HistogramVec
	agentLifecycle    *prometheus.CounterVec

	// Mailbox 指标
	mailboxSendsTotal *prometheus.CounterVec
	mailboxDepth      *prometheus.GaugeVec

	// GroupChat 指标
	chatRoundsTotal       *prometheus.CounterVec
	chatTerminationsTotal *prometheus.CounterVec
	speakerSelections     *prometheus.CounterVec

	// Broker 指标
	brokerRoutedTotal *prometheus.CounterVec

	// 持久化钩子指标
	sinkAppendsTotal   *prometheus.CounterVec
	sinkAppendDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 在默认注册表上创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 在指定注册表上创建指标收集器
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// Agent 指标
	c.agentTurnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_turns_total",
			Help:      "Total number of agent turns by outcome",
		},
		[]string{"agent", "outcome"}, // outcome: ok, transient, fatal, cancelled
	)

	c.agentTurnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_turn_duration_seconds",
			Help:      "Responder call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	c.agentLifecycle = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_lifecycle_events_total",
			Help:      "Agent loop lifecycle events",
		},
		[]string{"event"}, // started, stopped, terminated, aborted, failed
	)

	// Mailbox 指标
	c.mailboxSendsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailbox_sends_total",
			Help:      "Total number of mailbox sends by outcome",
		},
		[]string{"mailbox", "outcome"},
	)

	c.mailboxDepth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mailbox_depth",
			Help:      "Number of messages queued in a mailbox",
		},
		[]string{"mailbox"},
	)

	// GroupChat 指标
	c.chatRoundsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_rounds_total",
			Help:      "Total number of completed group chat rounds",
		},
		[]string{"chat"},
	)

	c.chatTerminationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_terminations_total",
			Help:      "Group chat sessions by termination reason",
		},
		[]string{"reason"},
	)

	c.speakerSelections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speaker_selections_total",
			Help:      "Speaker selection decisions by policy and outcome",
		},
		[]string{"policy", "outcome"}, // outcome: selected, admin_override, none, violation
	)

	c.brokerRoutedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_routed_total",
			Help:      "Messages routed by the broker",
		},
		[]string{"kind", "status"}, // kind: direct, broadcast
	)

	// 持久化钩子指标
	c.sinkAppendsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_sink_appends_total",
			Help:      "History sink append notifications by status",
		},
		[]string{"sink", "status"},
	)

	c.sinkAppendDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_sink_append_duration_seconds",
			Help:      "History sink append duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🤖 Agent 指标
// =============================================================================

// RecordAgentTurn 记录一次 Responder 调用
func (c *Collector) RecordAgentTurn(agent, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.agentTurnsTotal.WithLabelValues(agent, outcome).Inc()
	c.agentTurnDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordAgentLifecycle 记录 Agent 循环生命周期事件
func (c *Collector) RecordAgentLifecycle(event string) {
	if c == nil {
		return
	}
	c.agentLifecycle.WithLabelValues(event).Inc()
}

// =============================================================================
// 📬 Mailbox 指标
// =============================================================================

// RecordMailboxSend 记录一次发送结果
func (c *Collector) RecordMailboxSend(mailbox, outcome string) {
	if c == nil {
		return
	}
	c.mailboxSendsTotal.WithLabelValues(mailbox, outcome).Inc()
}

// SetMailboxDepth 更新邮箱深度
func (c *Collector) SetMailboxDepth(mailbox string, depth int) {
	if c == nil {
		return
	}
	c.mailboxDepth.WithLabelValues(mailbox).Set(float64(depth))
}

// =============================================================================
// 💬 GroupChat 指标
// =============================================================================

// RecordChatRound 记录完成的轮次
func (c *Collector) RecordChatRound(chat string) {
	if c == nil {
		return
	}
	c.chatRoundsTotal.WithLabelValues(chat).Inc()
}

// RecordChatTermination 记录会话终止原因
func (c *Collector) RecordChatTermination(reason string) {
	if c == nil {
		return
	}
	c.chatTerminationsTotal.WithLabelValues(reason).Inc()
}

// RecordSpeakerSelection 记录发言人选择
func (c *Collector) RecordSpeakerSelection(policy, outcome string) {
	if c == nil {
		return
	}
	c.speakerSelections.WithLabelValues(policy, outcome).Inc()
}

// RecordBrokerRoute 记录 Broker 路由
func (c *Collector) RecordBrokerRoute(kind, status string) {
	if c == nil {
		return
	}
	c.brokerRoutedTotal.WithLabelValues(kind, status).Inc()
}

// =============================================================================
// 💾 持久化钩子指标
// =============================================================================

// RecordSinkAppend 记录历史追加通知
func (c *Collector) RecordSinkAppend(sink string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.sinkAppendsTotal.WithLabelValues(sink, status).Inc()
	c.sinkAppendDuration.WithLabelValues(sink).Observe(duration.Seconds())
}
