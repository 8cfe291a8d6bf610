package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentchat/types"
)

// RedisSink 基于 Redis List 的实现，适合分布式部署。
// 每个会话对应键 <prefix>chat:<id>，消息以 JSON 经 RPUSH 追加。
type RedisSink struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int64
	logger    *zap.Logger
}

// NewRedisSink 创建 Redis Sink 并检查连通性
func NewRedisSink(config RedisSinkConfig, logger *zap.Logger) (*RedisSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		PoolSize:    config.PoolSize,
		DialTimeout: config.DialTimeout,
	})

	timeout := config.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "agentchat:"
	}

	return &RedisSink{
		client:    client,
		keyPrefix: keyPrefix,
		maxLen:    config.MaxLen,
		logger:    logger.With(zap.String("component", "redis_history_sink")),
	}, nil
}

// Type implements Typed.
func (s *RedisSink) Type() StoreType { return StoreTypeRedis }

func (s *RedisSink) chatKey(chatID string) string {
	return s.keyPrefix + "chat:" + chatID
}

// Append implements HistorySink.
func (s *RedisSink) Append(ctx context.Context, chatID string, msg types.Message) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := s.chatKey(chatID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, key, -s.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Snapshot implements HistorySink.
func (s *RedisSink) Snapshot(ctx context.Context, chatID string) ([]types.Message, error) {
	raw, err := s.client.LRange(ctx, s.chatKey(chatID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	msgs := make([]types.Message, 0, len(raw))
	for _, item := range raw {
		var msg types.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.logger.Warn("skipping undecodable history entry",
				zap.String("chat_id", chatID), zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Ping 检查连接
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements HistorySink.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
