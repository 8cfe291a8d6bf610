package context

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/BaSui01/agentchat/types"
)

// DefaultEncoding 是未指定编码时使用的 tiktoken 编码。
const DefaultEncoding = "cl100k_base"

// TiktokenCounter 基于 tiktoken 计数，编码在首次使用时懒加载
// （可能需要下载词表）。加载失败时退回 EstimateTokenizer。
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
	fallback types.TokenCounter
	logger   *zap.Logger
}

// NewTiktokenCounter 创建计数器。encoding 为空时使用 DefaultEncoding。
func NewTiktokenCounter(encoding string, logger *zap.Logger) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenCounter{
		encoding: encoding,
		fallback: types.NewEstimateTokenizer(),
		logger:   logger.With(zap.String("component", "tiktoken")),
	}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			t.logger.Warn("tiktoken unavailable, falling back to estimation", zap.Error(t.initErr))
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens implements types.TokenCounter.
func (t *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Err 返回编码加载错误（尚未加载或加载成功时为 nil）。
func (t *TiktokenCounter) Err() error {
	return t.initErr
}

// Encoding 返回编码名称。
func (t *TiktokenCounter) Encoding() string { return t.encoding }
