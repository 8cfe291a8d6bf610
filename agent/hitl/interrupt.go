package hitl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InterruptSource 产生中断信号，重复信号可以合并。
type InterruptSource interface {
	Interrupts() <-chan struct{}
	Close() error
}

// InterruptStatus 中断状态
type InterruptStatus string

const (
	// InterruptStatusDelivered 信号已送达订阅方
	InterruptStatusDelivered InterruptStatus = "delivered"
	// InterruptStatusCoalesced 已有未消费的信号，本次被合并
	InterruptStatusCoalesced InterruptStatus = "coalesced"
	// InterruptStatusDropped 管理器已关闭
	InterruptStatusDropped InterruptStatus = "dropped"
)

// ErrManagerClosed 中断管理器已关闭
var ErrManagerClosed = errors.New("interrupt manager closed")

// Interrupt 是一次中断请求的记录。
type Interrupt struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Reason    string          `json:"reason,omitempty"`
	Status    InterruptStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// InterruptStore 定义中断记录的存储接口。
type InterruptStore interface {
	Save(ctx context.Context, interrupt *Interrupt) error
	List(ctx context.Context, status InterruptStatus) ([]*Interrupt, error)
}

// InterruptManager 汇聚多个中断源，向会话提供单一的中断通道并记录每次请求。
type InterruptManager struct {
	store  InterruptStore
	logger *zap.Logger
	ch     chan struct{}

	mu      sync.Mutex
	closed  bool
	stops   []func()
	sources []InterruptSource
}

// NewInterruptManager 创建中断管理器，store 为 nil 时使用内存存储。
func NewInterruptManager(store InterruptStore, logger *zap.Logger) *InterruptManager {
	if store == nil {
		store = NewInMemoryInterruptStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterruptManager{
		store:  store,
		logger: logger.With(zap.String("component", "interrupt_manager")),
		ch:     make(chan struct{}, 1),
	}
}

// Interrupts implements InterruptSource.
func (m *InterruptManager) Interrupts() <-chan struct{} { return m.ch }

// Raise 发出一次中断。未被消费的信号只保留一个。
func (m *InterruptManager) Raise(ctx context.Context, source, reason string) (*Interrupt, error) {
	interrupt := &Interrupt{
		ID:        "int_" + uuid.NewString(),
		Source:    source,
		Reason:    reason,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	switch {
	case m.closed:
		interrupt.Status = InterruptStatusDropped
	default:
		select {
		case m.ch <- struct{}{}:
			interrupt.Status = InterruptStatusDelivered
		default:
			interrupt.Status = InterruptStatusCoalesced
		}
	}
	m.mu.Unlock()

	m.logger.Info("interrupt raised",
		zap.String("id", interrupt.ID),
		zap.String("source", source),
		zap.String("status", string(interrupt.Status)))

	if err := m.store.Save(ctx, interrupt); err != nil {
		return interrupt, fmt.Errorf("failed to save interrupt: %w", err)
	}
	if interrupt.Status == InterruptStatusDropped {
		return interrupt, ErrManagerClosed
	}
	return interrupt, nil
}

// Attach 将 src 的信号转发为以 name 标记的中断，Close 时一并关闭 src。
func (m *InterruptManager) Attach(name string, src InterruptSource) error {
	done := make(chan struct{})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.stops = append(m.stops, func() { close(done) })
	m.sources = append(m.sources, src)
	m.mu.Unlock()

	go func() {
		for {
			select {
			case _, ok := <-src.Interrupts():
				if !ok {
					return
				}
				if _, err := m.Raise(context.Background(), name, ""); err != nil {
					m.logger.Warn("forward interrupt failed", zap.String("source", name), zap.Error(err))
				}
			case <-done:
				return
			}
		}
	}()
	return nil
}

// History 按时间顺序返回中断记录，status 为空时返回全部。
func (m *InterruptManager) History(ctx context.Context, status InterruptStatus) ([]*Interrupt, error) {
	return m.store.List(ctx, status)
}

// Close implements InterruptSource.
func (m *InterruptManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	stops, sources := m.stops, m.sources
	m.stops, m.sources = nil, nil
	m.mu.Unlock()

	var errs []error
	for _, stop := range stops {
		stop()
	}
	for _, src := range sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InMemoryInterruptStore 在内存中保存中断记录。
type InMemoryInterruptStore struct {
	interrupts map[string]*Interrupt
	mu         sync.RWMutex
}

// NewInMemoryInterruptStore 创建内存中断存储。
func NewInMemoryInterruptStore() *InMemoryInterruptStore {
	return &InMemoryInterruptStore{
		interrupts: make(map[string]*Interrupt),
	}
}

func (s *InMemoryInterruptStore) Save(_ context.Context, interrupt *Interrupt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupts[interrupt.ID] = interrupt
	return nil
}

func (s *InMemoryInterruptStore) List(_ context.Context, status InterruptStatus) ([]*Interrupt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Interrupt
	for _, interrupt := range s.interrupts {
		if status == "" || interrupt.Status == status {
			results = append(results, interrupt)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}
