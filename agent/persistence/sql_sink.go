package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentchat/internal/database"
	"github.com/BaSui01/agentchat/types"
)

// ChatMessageRecord 是群聊历史在关系库中的行模型。
type ChatMessageRecord struct {
	ID          uint   `gorm:"primaryKey"`
	ChatID      string `gorm:"size:128;not null;uniqueIndex:idx_chat_causal"`
	CausalIndex uint64 `gorm:"not null;uniqueIndex:idx_chat_causal"`
	MessageID   string `gorm:"size:64;not null"`
	Sender      string `gorm:"size:64"`
	SenderName  string `gorm:"size:128"`
	Recipient   string `gorm:"size:64"`
	Kind        string `gorm:"size:16"`
	ErrorCode   string `gorm:"size:64"`
	InReplyTo   string `gorm:"size:64"`
	Content     string `gorm:"type:text"`
	Function    string `gorm:"type:text"`
	CreatedAt   time.Time
}

// TableName 指定表名
func (ChatMessageRecord) TableName() string { return "chat_messages" }

func recordFromMessage(chatID string, msg types.Message) (ChatMessageRecord, error) {
	rec := ChatMessageRecord{
		ChatID:      chatID,
		CausalIndex: msg.CausalIndex,
		MessageID:   msg.ID,
		Sender:      string(msg.Sender),
		SenderName:  msg.SenderName,
		Recipient:   string(msg.Recipient),
		Kind:        string(msg.Kind),
		ErrorCode:   string(msg.ErrorCode),
		InReplyTo:   msg.InReplyTo,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
	}
	if msg.Function != nil {
		fn, err := json.Marshal(msg.Function)
		if err != nil {
			return rec, fmt.Errorf("failed to marshal function call: %w", err)
		}
		rec.Function = string(fn)
	}
	return rec, nil
}

func (r ChatMessageRecord) message() (types.Message, error) {
	msg := types.Message{
		ID:          r.MessageID,
		Sender:      types.AgentID(r.Sender),
		SenderName:  r.SenderName,
		Recipient:   types.AgentID(r.Recipient),
		Content:     r.Content,
		Kind:        types.MessageKind(r.Kind),
		ErrorCode:   types.ErrorCode(r.ErrorCode),
		InReplyTo:   r.InReplyTo,
		CausalIndex: r.CausalIndex,
		CreatedAt:   r.CreatedAt,
	}
	if r.Function != "" {
		var fn types.FunctionCall
		if err := json.Unmarshal([]byte(r.Function), &fn); err != nil {
			return msg, fmt.Errorf("failed to decode function call: %w", err)
		}
		msg.Function = &fn
	}
	return msg, nil
}

// SQLSink 基于 GORM 的实现。
type SQLSink struct {
	pool       *database.PoolManager
	maxRetries int
	logger     *zap.Logger
}

// NewSQLSink 使用 sqlite 驱动按 DSN 打开数据库
func NewSQLSink(config SQLSinkConfig, logger *zap.Logger) (*SQLSink, error) {
	db, err := gorm.Open(sqlite.Open(config.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewSQLSinkWithDB(db, config, logger)
}

// NewSQLSinkWithDB 使用调用方提供的 *gorm.DB（任意方言）
func NewSQLSinkWithDB(db *gorm.DB, config SQLSinkConfig, logger *zap.Logger) (*SQLSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := database.NewPoolManager(db, config.Pool, logger)
	if err != nil {
		return nil, err
	}
	if config.AutoMigrate {
		if err := db.AutoMigrate(&ChatMessageRecord{}); err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("failed to migrate chat_messages: %w", err)
		}
	}
	retries := config.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	return &SQLSink{
		pool:       pool,
		maxRetries: retries,
		logger:     logger.With(zap.String("component", "sql_history_sink")),
	}, nil
}

// Type implements Typed.
func (s *SQLSink) Type() StoreType { return StoreTypeSQL }

// Append implements HistorySink.
func (s *SQLSink) Append(ctx context.Context, chatID string, msg types.Message) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}
	rec, err := recordFromMessage(chatID, msg)
	if err != nil {
		return err
	}
	return s.pool.Transact(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
}

// Snapshot implements HistorySink.
func (s *SQLSink) Snapshot(ctx context.Context, chatID string) ([]types.Message, error) {
	var records []ChatMessageRecord
	err := s.pool.DB().WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("causal_index ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	msgs := make([]types.Message, 0, len(records))
	for _, rec := range records {
		msg, err := rec.message()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Ping 检查连接
func (s *SQLSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements HistorySink.
func (s *SQLSink) Close() error {
	return s.pool.Close()
}
