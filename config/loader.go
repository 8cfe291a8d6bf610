// =============================================================================
// 📦 AgentChat 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("chat.yaml").
//	    WithEnvPrefix("AGENTCHAT").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 默认环境变量前缀
const DefaultEnvPrefix = "AGENTCHAT"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentChat 的完整配置结构
type Config struct {
	// Chat 群聊编排配置
	Chat ChatConfig `yaml:"chat" env:"CHAT"`

	// Agents 参与群聊的 Agent，按注册顺序排列（仅 YAML）
	Agents []AgentSpec `yaml:"agents" env:"-"`

	// Mailbox 邮箱默认配置
	Mailbox MailboxConfig `yaml:"mailbox" env:"MAILBOX"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Redis 历史钩子的 Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Persistence 历史追加钩子配置
	Persistence PersistenceConfig `yaml:"persistence" env:"PERSISTENCE"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ChatConfig 群聊配置
type ChatConfig struct {
	// 发言人选择策略: round_robin, random, manual, auto
	Policy string `yaml:"policy" env:"POLICY"`
	// 最大轮次，0 表示不限
	MaxRounds int `yaml:"max_rounds" env:"MAX_ROUNDS"`
	// 单轮等待上限，0 表示不限
	DispatchTimeout time.Duration `yaml:"dispatch_timeout" env:"DISPATCH_TIMEOUT"`
	// 终止关键词
	TerminationWords []string `yaml:"termination_words" env:"TERMINATION_WORDS"`
	// 中断时接管的管理员名称
	AdminName string `yaml:"admin_name" env:"ADMIN_NAME"`
	// Responder 可见的最近消息数
	HistoryWindow int `yaml:"history_window" env:"HISTORY_WINDOW"`
	// 是否每轮广播给所有 Agent
	BroadcastRounds bool `yaml:"broadcast_rounds" env:"BROADCAST_ROUNDS"`
	// Random 策略的种子，0 表示不固定
	Seed uint64 `yaml:"seed" env:"SEED"`
	// Manual 策略无效输入的最大重试次数
	ManualAttempts int `yaml:"manual_attempts" env:"MANUAL_ATTEMPTS"`
	// Auto 策略使用的选择 Agent 名称，为空时只做函数过滤与轮询
	Selector string `yaml:"selector" env:"SELECTOR"`
}

// AgentSpec 描述一个 Agent
type AgentSpec struct {
	// 名称
	Name string `yaml:"name"`
	// 类型: echo, rules, human
	Kind string `yaml:"kind"`
	// rules 类型的匹配规则
	Rules []RuleSpec `yaml:"rules"`
	// rules 类型未命中时的回复，为空则不回复
	Default string `yaml:"default"`
	// 声明可处理的函数调用
	Functions []string `yaml:"functions"`
	// 最大回合数，0 表示不限
	MaxTurns int `yaml:"max_turns"`
	// 收到即退出的关键词
	TerminationWords []string `yaml:"termination_words"`
	// 邮箱容量，0 使用 Mailbox 默认值
	MailboxCapacity int `yaml:"mailbox_capacity"`
	// 每秒请求数，0 表示不限流
	RateLimit float64 `yaml:"rate_limit"`
	// 限流突发
	Burst int `yaml:"burst"`
	// 单回合超时
	Timeout time.Duration `yaml:"timeout"`
	// 可恢复错误的重试次数
	Retries int `yaml:"retries"`
}

// RuleSpec 规则回复：内容包含 Contains（不区分大小写）时回复 Reply
type RuleSpec struct {
	Contains string `yaml:"contains"`
	Function string `yaml:"function"`
	Reply    string `yaml:"reply"`
}

// MailboxConfig 邮箱配置
type MailboxConfig struct {
	// 默认容量，0 表示无界
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// Terminate 宽限期，0 时读取 AGENT_GRACE_PERIOD_SECONDS
	GracePeriod time.Duration `yaml:"grace_period" env:"GRACE_PERIOD"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 每个会话保留的最大消息数，0 表示不裁剪
	MaxLen int64 `yaml:"max_len" env:"MAX_LEN"`
	// 连接超时
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// PersistenceConfig 历史追加钩子配置
type PersistenceConfig struct {
	// 类型: none, memory, file, redis, sql
	Type string `yaml:"type" env:"TYPE"`
	// file 类型的目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// sql 类型配置
	SQL SQLConfig `yaml:"sql" env:"SQL"`
}

// SQLConfig SQL 钩子配置
type SQLConfig struct {
	// 数据源（sqlite 文件或 :memory:）
	DSN string `yaml:"dsn" env:"DSN"`
	// 启动时建表
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	// 可重试错误的最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否暴露 /metrics
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 路径
	Path string `yaml:"path" env:"PATH"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 是否使用明文 gRPC
	Insecure bool `yaml:"insecure" env:"INSECURE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var (
	validPolicies     = map[string]bool{"round_robin": true, "random": true, "manual": true, "auto": true}
	validKinds        = map[string]bool{"echo": true, "rules": true, "human": true}
	validPersistences = map[string]bool{"": true, "none": true, "memory": true, "file": true, "redis": true, "sql": true}
)

// Validate 验证配置，返回所有问题的汇总
func (c *Config) Validate() error {
	var errs []string

	if !validPolicies[c.Chat.Policy] {
		errs = append(errs, fmt.Sprintf("unknown chat policy %q", c.Chat.Policy))
	}
	if c.Chat.MaxRounds < 0 {
		errs = append(errs, "chat.max_rounds cannot be negative")
	}
	if c.Chat.DispatchTimeout < 0 {
		errs = append(errs, "chat.dispatch_timeout cannot be negative")
	}
	if c.Chat.HistoryWindow < 0 {
		errs = append(errs, "chat.history_window cannot be negative")
	}
	if c.Mailbox.Capacity < 0 {
		errs = append(errs, "mailbox.capacity cannot be negative")
	}

	names := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Sprintf("agents[%d]: name is required", i))
		case names[strings.ToLower(a.Name)]:
			errs = append(errs, fmt.Sprintf("agents[%d]: duplicate name %q", i, a.Name))
		}
		names[strings.ToLower(a.Name)] = true
		if !validKinds[a.Kind] {
			errs = append(errs, fmt.Sprintf("agents[%d]: unknown kind %q", i, a.Kind))
		}
		if a.MaxTurns < 0 || a.MailboxCapacity < 0 || a.Retries < 0 || a.RateLimit < 0 {
			errs = append(errs, fmt.Sprintf("agents[%d]: limits cannot be negative", i))
		}
	}
	if c.Chat.AdminName != "" && len(c.Agents) > 0 && !names[strings.ToLower(c.Chat.AdminName)] {
		errs = append(errs, fmt.Sprintf("chat.admin_name %q does not match any agent", c.Chat.AdminName))
	}
	if c.Chat.Selector != "" && len(c.Agents) > 0 && !names[strings.ToLower(c.Chat.Selector)] {
		errs = append(errs, fmt.Sprintf("chat.selector %q does not match any agent", c.Chat.Selector))
	}

	if !validPersistences[c.Persistence.Type] {
		errs = append(errs, fmt.Sprintf("unknown persistence type %q", c.Persistence.Type))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ErrNoAgents 配置中没有 Agent
var ErrNoAgents = errors.New("no agents configured")

// RequireAgents 是要求至少一个 Agent 的验证器
func RequireAgents(c *Config) error {
	if len(c.Agents) == 0 {
		return ErrNoAgents
	}
	return nil
}
