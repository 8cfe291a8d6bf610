package agent

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/types"
)

// GracePeriodEnv 覆盖默认宽限期（秒）。
const GracePeriodEnv = "AGENT_GRACE_PERIOD_SECONDS"

// DefaultGracePeriod 是 Terminate 在中止前等待的默认时长。
const DefaultGracePeriod = 3 * time.Second

// Option 配置 Agent。
type Option func(*Agent)

// WithID 指定 Agent ID（默认自动生成）。
func WithID(id types.AgentID) Option {
	return func(a *Agent) {
		if id != "" {
			a.id = id
		}
	}
}

// WithName 设置显示名称。
func WithName(name string) Option {
	return func(a *Agent) { a.name = name }
}

// WithMaxTurns 设置最大回合数，0 表示不限。
func WithMaxTurns(n int) Option {
	return func(a *Agent) { a.maxTurns = n }
}

// WithTerminalPredicate 设置终止谓词：收到匹配的消息时 Agent 停止消费。
func WithTerminalPredicate(p func(types.Message) bool) Option {
	return func(a *Agent) { a.terminal = p }
}

// WithTerminationWords 收到包含任一终止词的消息时停止。
func WithTerminationWords(words ...string) Option {
	return WithTerminalPredicate(ContainsAny(words...))
}

// WithMailboxCapacity 设置邮箱容量，0 表示无界。
func WithMailboxCapacity(n int) Option {
	return func(a *Agent) { a.mailboxCapacity = n }
}

// WithGracePeriod 设置 Terminate 的宽限期。
func WithGracePeriod(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.gracePeriod = d
		}
	}
}

// WithLogger 设置日志。
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(m *metrics.Collector) Option {
	return func(a *Agent) { a.metrics = m }
}

// ContainsAny 返回匹配任一关键词（不区分大小写）的谓词。
func ContainsAny(words ...string) func(types.Message) bool {
	lowered := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			lowered = append(lowered, strings.ToLower(w))
		}
	}
	return func(m types.Message) bool {
		if len(lowered) == 0 {
			return false
		}
		content := strings.ToLower(m.Content)
		for _, w := range lowered {
			if strings.Contains(content, w) {
				return true
			}
		}
		return false
	}
}

// gracePeriodFromEnv 读取环境变量，无效时返回默认值。
func gracePeriodFromEnv() time.Duration {
	raw := strings.TrimSpace(os.Getenv(GracePeriodEnv))
	if raw == "" {
		return DefaultGracePeriod
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return DefaultGracePeriod
	}
	return time.Duration(secs * float64(time.Second))
}
