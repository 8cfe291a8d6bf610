package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/agentchat/internal/database"
	"github.com/BaSui01/agentchat/types"
)

// Common errors
var (
	ErrSinkClosed   = errors.New("history sink is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType 存储后端类型
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
)

// HistorySink 接收群聊历史的追加通知。
// 调用方保证同一 chatID 内按 causal_index 顺序逐条调用 Append。
type HistorySink interface {
	// Append 追加一条已记录的消息
	Append(ctx context.Context, chatID string, msg types.Message) error

	// Snapshot 按追加顺序返回 chatID 的全部消息
	Snapshot(ctx context.Context, chatID string) ([]types.Message, error)

	// Close 释放资源
	Close() error
}

// Typed 由内置 Sink 实现，用于指标标签。
type Typed interface {
	Type() StoreType
}

// TypeOf 返回 Sink 的后端类型，未知实现返回 "custom"。
func TypeOf(s HistorySink) StoreType {
	if t, ok := s.(Typed); ok {
		return t.Type()
	}
	return "custom"
}

// SinkConfig 历史 Sink 配置
type SinkConfig struct {
	// Type 存储后端类型
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir file 后端的根目录
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis 配置（仅 Type 为 redis 时使用）
	Redis RedisSinkConfig `json:"redis" yaml:"redis"`

	// SQL 配置（仅 Type 为 sql 时使用）
	SQL SQLSinkConfig `json:"sql" yaml:"sql"`
}

// RedisSinkConfig Redis 后端配置
type RedisSinkConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix 所有键的前缀
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// MaxLen 每个会话保留的最大消息数，0 表示不裁剪
	MaxLen int64 `json:"max_len" yaml:"max_len"`

	// DialTimeout 建连超时
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// SQLSinkConfig SQL 后端配置
type SQLSinkConfig struct {
	// DSN sqlite 数据源，如 "file:chat.db" 或 ":memory:"
	DSN string `json:"dsn" yaml:"dsn"`

	// AutoMigrate 启动时自动建表
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate"`

	// MaxRetries 写入事务的最大重试次数
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	Pool database.PoolConfig `json:"pool" yaml:"pool"`
}

// DefaultSinkConfig 返回默认配置
func DefaultSinkConfig() SinkConfig {
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = 1
	pool.MaxIdleConns = 1
	return SinkConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/history",
		Redis: RedisSinkConfig{
			Addr:        "localhost:6379",
			PoolSize:    10,
			KeyPrefix:   "agentchat:",
			DialTimeout: 5 * time.Second,
		},
		SQL: SQLSinkConfig{
			DSN:         "file:agentchat.db",
			AutoMigrate: true,
			MaxRetries:  3,
			Pool:        pool,
		},
	}
}

// Validate 校验配置
func (c SinkConfig) Validate() error {
	switch c.Type {
	case StoreTypeMemory:
	case StoreTypeFile:
		if c.BaseDir == "" {
			return fmt.Errorf("%w: file sink requires base_dir", ErrInvalidInput)
		}
	case StoreTypeRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis sink requires addr", ErrInvalidInput)
		}
		if c.Redis.MaxLen < 0 {
			return fmt.Errorf("%w: redis max_len cannot be negative", ErrInvalidInput)
		}
	case StoreTypeSQL:
		if c.SQL.DSN == "" {
			return fmt.Errorf("%w: sql sink requires dsn", ErrInvalidInput)
		}
		return c.SQL.Pool.Validate()
	default:
		return fmt.Errorf("%w: unsupported history sink type %q", ErrInvalidInput, c.Type)
	}
	return nil
}

func validateChatID(chatID string) error {
	if chatID == "" {
		return fmt.Errorf("%w: chat id is required", ErrInvalidInput)
	}
	return nil
}
