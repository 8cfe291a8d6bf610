// =============================================================================
// 📦 AgentChat 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Chat:        DefaultChatConfig(),
		Mailbox:     DefaultMailboxConfig(),
		Log:         DefaultLogConfig(),
		Redis:       DefaultRedisConfig(),
		Persistence: DefaultPersistenceConfig(),
		Metrics:     DefaultMetricsConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultChatConfig 返回默认群聊配置
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Policy:           "round_robin",
		MaxRounds:        10,
		TerminationWords: []string{"TERMINATE"},
		ManualAttempts:   3,
	}
}

// DefaultMailboxConfig 返回默认邮箱配置
func DefaultMailboxConfig() MailboxConfig {
	return MailboxConfig{
		Capacity:    0,
		GracePeriod: 3 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		Password:    "",
		DB:          0,
		PoolSize:    10,
		KeyPrefix:   "agentchat:",
		MaxLen:      0,
		DialTimeout: 5 * time.Second,
	}
}

// DefaultPersistenceConfig 返回默认历史钩子配置
func DefaultPersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		Type:    "none",
		BaseDir: "./data/history",
		SQL: SQLConfig{
			DSN:             "file:agentchat.db",
			AutoMigrate:     true,
			MaxRetries:      3,
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Hour,
		},
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Path:      "/metrics",
		Namespace: "agentchat",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentchat",
		SampleRate:   0.1,
		Insecure:     true,
	}
}
