package hitl

import "sync"

// ChannelSource 是由代码触发的中断源，Trigger 可在任意 goroutine 调用。
type ChannelSource struct {
	ch   chan struct{}
	once sync.Once
	mu   sync.Mutex
	done bool
}

// NewChannelSource 创建 ChannelSource。
func NewChannelSource() *ChannelSource {
	return &ChannelSource{ch: make(chan struct{}, 1)}
}

// Trigger 发出中断，已有未消费信号时合并，关闭后忽略。
func (s *ChannelSource) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Interrupts implements InterruptSource.
func (s *ChannelSource) Interrupts() <-chan struct{} { return s.ch }

// Close implements InterruptSource.
func (s *ChannelSource) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.done = true
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}
