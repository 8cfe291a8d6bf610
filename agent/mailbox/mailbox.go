package mailbox

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/agentchat/types"
)

var (
	// ErrMailboxClosed 邮箱已关闭，调用方应停止发送。
	ErrMailboxClosed = types.NewError(types.ErrMailboxClosed, "mailbox closed")
	// ErrMailboxFull 有界邮箱已满（仅 Send 返回，可重试）。
	ErrMailboxFull = types.NewError(types.ErrMailboxFull, "mailbox full").WithRetryable(true)
)

// Send outcomes reported to the Recorder.
const (
	OutcomeAccepted = "accepted"
	OutcomeClosed   = "closed"
	OutcomeFull     = "full"
)

// Recorder 接收邮箱指标（由 internal/metrics.Collector 实现）。
type Recorder interface {
	RecordMailboxSend(mailbox, outcome string)
	SetMailboxDepth(mailbox string, depth int)
}

// Option 配置 Mailbox。
type Option func(*options)

type options struct {
	capacity int
	name     string
	recorder Recorder
}

// WithCapacity 设置容量上限，0 表示无界。
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithName 设置用于指标的邮箱名称。
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithRecorder 挂接指标记录器。
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// Mailbox 是单消费者、多生产者的有序队列。
// 入队顺序即出队顺序，同一发送者的消息按发送顺序被消费。
type Mailbox[T any] struct {
	mu       sync.Mutex
	items    []T
	closed   bool
	notify   chan struct{} // 容量 1，唤醒唯一的消费者
	space    chan struct{} // 每次出队后关闭并替换，唤醒等待容量的发送者
	closedCh chan struct{}
	opts     options

	sends    atomic.Int64
	receives atomic.Int64
	rejected atomic.Int64
}

// New 创建邮箱。
func New[T any](opts ...Option) *Mailbox[T] {
	o := options{name: "mailbox"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Mailbox[T]{
		notify:   make(chan struct{}, 1),
		space:    make(chan struct{}),
		closedCh: make(chan struct{}),
		opts:     o,
	}
}

// Send 入队且从不阻塞。
func (m *Mailbox[T]) Send(v T) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.reject(OutcomeClosed)
		return ErrMailboxClosed
	}
	if m.opts.capacity > 0 && len(m.items) >= m.opts.capacity {
		m.mu.Unlock()
		m.reject(OutcomeFull)
		return ErrMailboxFull
	}
	m.enqueueLocked(v)
	m.mu.Unlock()
	return nil
}

// SendContext 入队；有界邮箱满时等待容量、关闭或 ctx 取消。
func (m *Mailbox[T]) SendContext(ctx context.Context, v T) error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			m.reject(OutcomeClosed)
			return ErrMailboxClosed
		}
		if m.opts.capacity == 0 || len(m.items) < m.opts.capacity {
			m.enqueueLocked(v)
			m.mu.Unlock()
			return nil
		}
		space := m.space
		m.mu.Unlock()

		select {
		case <-space:
		case <-m.closedCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Mailbox[T]) enqueueLocked(v T) {
	m.items = append(m.items, v)
	depth := len(m.items)
	m.sends.Add(1)
	select {
	case m.notify <- struct{}{}:
	default:
	}
	if r := m.opts.recorder; r != nil {
		r.RecordMailboxSend(m.opts.name, OutcomeAccepted)
		r.SetMailboxDepth(m.opts.name, depth)
	}
}

func (m *Mailbox[T]) reject(outcome string) {
	m.rejected.Add(1)
	if r := m.opts.recorder; r != nil {
		r.RecordMailboxSend(m.opts.name, outcome)
	}
}

// Receive 挂起直到有消息可读、邮箱关闭且已排空或 ctx 取消。
// 关闭且排空后每次调用都立即返回 ok=false。
func (m *Mailbox[T]) Receive(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			v := m.popLocked()
			m.mu.Unlock()
			return v, true, nil
		}
		if m.closed {
			m.mu.Unlock()
			return zero, false, nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-m.closedCh:
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
}

// TryReceive 非阻塞出队。
func (m *Mailbox[T]) TryReceive() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		var zero T
		return zero, false
	}
	return m.popLocked(), true
}

func (m *Mailbox[T]) popLocked() T {
	var zero T
	v := m.items[0]
	m.items[0] = zero
	m.items = m.items[1:]
	close(m.space)
	m.space = make(chan struct{})

	m.receives.Add(1)
	if r := m.opts.recorder; r != nil {
		r.SetMailboxDepth(m.opts.name, len(m.items))
	}
	return v
}

// Close 幂等关闭，已入队消息仍可被读取。
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.closedCh)
}

// Closed 报告邮箱是否已关闭。
func (m *Mailbox[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Done 在邮箱关闭时关闭。
func (m *Mailbox[T]) Done() <-chan struct{} { return m.closedCh }

// Len 返回当前排队数量。
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Cap 返回容量上限，0 表示无界。
func (m *Mailbox[T]) Cap() int { return m.opts.capacity }

// Stats 返回累计计数。
func (m *Mailbox[T]) Stats() Stats {
	return Stats{
		Sends:    m.sends.Load(),
		Receives: m.receives.Load(),
		Rejected: m.rejected.Load(),
		Depth:    m.Len(),
	}
}

// Stats 邮箱累计统计。
type Stats struct {
	Sends    int64 `json:"sends"`
	Receives int64 `json:"receives"`
	Rejected int64 `json:"rejected"`
	Depth    int   `json:"depth"`
}

// Sender 返回只写句柄，可安全地在多个发送者间共享。
func (m *Mailbox[T]) Sender() Sender[T] { return Sender[T]{mb: m} }

// Sender 是邮箱的只写视图。
type Sender[T any] struct {
	mb *Mailbox[T]
}

// Send 见 Mailbox.Send。
func (s Sender[T]) Send(v T) error { return s.mb.Send(v) }

// SendContext 见 Mailbox.SendContext。
func (s Sender[T]) SendContext(ctx context.Context, v T) error { return s.mb.SendContext(ctx, v) }

// Closed 报告目标邮箱是否已关闭。
func (s Sender[T]) Closed() bool { return s.mb.Closed() }
