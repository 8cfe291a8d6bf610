package persistence

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BaSui01/agentchat/types"
)

// FileSink 以 JSON Lines 形式为每个会话写一个文件，适合单节点部署。
type FileSink struct {
	baseDir string
	mu      sync.Mutex
	files   map[string]*os.File
	closed  bool
}

// NewFileSink 创建文件 Sink
func NewFileSink(baseDir string) (*FileSink, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileSink{baseDir: baseDir, files: make(map[string]*os.File)}, nil
}

// Type implements Typed.
func (s *FileSink) Type() StoreType { return StoreTypeFile }

func (s *FileSink) path(chatID string) string {
	// 会话 ID 可能包含路径分隔符
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(chatID)
	return filepath.Join(s.baseDir, name+".jsonl")
}

// Append implements HistorySink.
func (s *FileSink) Append(_ context.Context, chatID string, msg types.Message) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	f, ok := s.files[chatID]
	if !ok {
		f, err = os.OpenFile(s.path(chatID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open history file: %w", err)
		}
		s.files[chatID] = f
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Snapshot implements HistorySink.
func (s *FileSink) Snapshot(_ context.Context, chatID string) ([]types.Message, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSinkClosed
	}

	f, err := os.Open(s.path(chatID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	var msgs []types.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var msg types.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode history line: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, scanner.Err()
}

// Close implements HistorySink.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	for id, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, id)
	}
	return firstErr
}
