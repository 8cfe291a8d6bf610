package persistence

import (
	"context"
	"sync"

	"github.com/BaSui01/agentchat/types"
)

// MemorySink 内存实现，适合开发与测试，进程退出后数据丢失。
type MemorySink struct {
	mu     sync.RWMutex
	chats  map[string][]types.Message
	closed bool
}

// NewMemorySink 创建内存 Sink
func NewMemorySink() *MemorySink {
	return &MemorySink{chats: make(map[string][]types.Message)}
}

// Type implements Typed.
func (s *MemorySink) Type() StoreType { return StoreTypeMemory }

// Append implements HistorySink.
func (s *MemorySink) Append(_ context.Context, chatID string, msg types.Message) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.chats[chatID] = append(s.chats[chatID], msg)
	return nil
}

// Snapshot implements HistorySink.
func (s *MemorySink) Snapshot(_ context.Context, chatID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSinkClosed
	}
	msgs := s.chats[chatID]
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Chats 返回已记录的会话 ID
func (s *MemorySink) Chats() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.chats))
	for id := range s.chats {
		ids = append(ids, id)
	}
	return ids
}

// Close implements HistorySink.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
