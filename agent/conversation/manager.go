package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/types"
)

// ErrChatNotFound 会话不存在
var ErrChatNotFound = errors.New("chat not found")

// ChatStatus 会话状态
type ChatStatus string

const (
	StatusPending   ChatStatus = "pending"
	StatusRunning   ChatStatus = "running"
	StatusCompleted ChatStatus = "completed"
	StatusFailed    ChatStatus = "failed"
)

// ChatInfo 会话概要
type ChatInfo struct {
	ID     string            `json:"id"`
	Status ChatStatus        `json:"status"`
	Agents int               `json:"agents"`
	Rounds int               `json:"rounds"`
	Reason TerminationReason `json:"reason,omitempty"`
	Error  string            `json:"error,omitempty"`
}

type managedChat struct {
	chat   *GroupChat
	status ChatStatus
	result *Result
	err    error
}

// GroupChatManager 管理多个群聊实例
type GroupChatManager struct {
	mu      sync.RWMutex
	chats   map[string]*managedChat
	order   []string
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewGroupChatManager 创建群聊管理器
func NewGroupChatManager(logger *zap.Logger, m *metrics.Collector) *GroupChatManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupChatManager{
		chats:   make(map[string]*managedChat),
		logger:  logger.With(zap.String("component", "group_chat_manager")),
		metrics: m,
	}
}

// Create 创建并登记群聊，日志与指标默认继承自管理器
func (m *GroupChatManager) Create(agents []*agent.Agent, selector Selector, cfg GroupChatConfig, opts ...Option) (*GroupChat, error) {
	base := []Option{WithLogger(m.logger), WithMetrics(m.metrics)}
	chat, err := NewGroupChat(agents, selector, cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.chats[chat.ID()]; exists {
		return nil, fmt.Errorf("chat %s already exists", chat.ID())
	}
	m.chats[chat.ID()] = &managedChat{chat: chat, status: StatusPending}
	m.order = append(m.order, chat.ID())
	return chat, nil
}

// Run 运行指定会话
func (m *GroupChatManager) Run(ctx context.Context, chatID string, prompt types.Message) (*Result, error) {
	m.mu.Lock()
	mc, ok := m.chats[chatID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrChatNotFound
	}
	if mc.status != StatusPending {
		m.mu.Unlock()
		return nil, ErrChatAlreadyRun
	}
	mc.status = StatusRunning
	m.mu.Unlock()

	res, err := mc.chat.Run(ctx, prompt)

	m.mu.Lock()
	mc.result, mc.err = res, err
	if err != nil {
		mc.status = StatusFailed
	} else {
		mc.status = StatusCompleted
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("chat failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	return res, err
}

// Interrupt 中断指定会话
func (m *GroupChatManager) Interrupt(chatID string) error {
	chat, ok := m.Get(chatID)
	if !ok {
		return ErrChatNotFound
	}
	chat.Interrupt()
	return nil
}

// Get 获取会话
func (m *GroupChatManager) Get(chatID string) (*GroupChat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.chats[chatID]
	if !ok {
		return nil, false
	}
	return mc.chat, true
}

// Result 返回已结束会话的结果
func (m *GroupChatManager) Result(chatID string) (*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	return mc.result, mc.err
}

// List 按创建顺序列出会话
func (m *GroupChatManager) List() []ChatInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChatInfo, 0, len(m.order))
	for _, id := range m.order {
		mc := m.chats[id]
		info := ChatInfo{
			ID:     id,
			Status: mc.status,
			Agents: len(mc.chat.Agents()),
			Rounds: mc.chat.Rounds(),
		}
		if mc.result != nil {
			info.Reason = mc.result.Reason
		}
		if mc.err != nil {
			info.Error = mc.err.Error()
		}
		out = append(out, info)
	}
	return out
}
