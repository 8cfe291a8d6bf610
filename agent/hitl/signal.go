package hitl

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultEscalationWindow 两次信号间隔小于该值时视为强制退出
const DefaultEscalationWindow = 2 * time.Second

// SignalSource 将 SIGINT/SIGTERM 转换为中断。
// 第一次信号产生中断；窗口期内的第二次信号调用 cancel 结束整个程序。
type SignalSource struct {
	ch     chan struct{}
	sigs   chan os.Signal
	cancel context.CancelFunc
	window time.Duration
	logger *zap.Logger
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// SignalOption 配置 SignalSource
type SignalOption func(*SignalSource)

// WithEscalationWindow 设置强制退出窗口
func WithEscalationWindow(d time.Duration) SignalOption {
	return func(s *SignalSource) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithSignalLogger 设置日志
func WithSignalLogger(logger *zap.Logger) SignalOption {
	return func(s *SignalSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// withSignalChannel 用给定通道替代 os/signal 订阅
func withSignalChannel(ch chan os.Signal) SignalOption {
	return func(s *SignalSource) { s.sigs = ch }
}

// NewSignalSource 订阅进程信号，cancel 在强制退出时被调用。
func NewSignalSource(cancel context.CancelFunc, opts ...SignalOption) *SignalSource {
	s := &SignalSource{
		ch:     make(chan struct{}, 1),
		cancel: cancel,
		window: DefaultEscalationWindow,
		logger: zap.NewNop(),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "signal_source"))

	notify := s.sigs == nil
	if notify {
		s.sigs = make(chan os.Signal, 2)
		signal.Notify(s.sigs, os.Interrupt, syscall.SIGTERM)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if notify {
			defer signal.Stop(s.sigs)
		}
		s.loop()
	}()
	return s
}

func (s *SignalSource) loop() {
	var last time.Time
	for {
		select {
		case sig := <-s.sigs:
			now := s.now()
			if !last.IsZero() && now.Sub(last) < s.window {
				s.logger.Warn("second signal received, shutting down", zap.String("signal", sig.String()))
				if s.cancel != nil {
					s.cancel()
				}
				last = time.Time{}
				continue
			}
			last = now
			s.logger.Info("signal received, interrupting", zap.String("signal", sig.String()))
			select {
			case s.ch <- struct{}{}:
			default:
			}
		case <-s.stop:
			return
		}
	}
}

// Interrupts implements InterruptSource.
func (s *SignalSource) Interrupts() <-chan struct{} { return s.ch }

// Close 停止订阅信号。
func (s *SignalSource) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}
