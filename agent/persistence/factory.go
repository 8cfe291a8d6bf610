package persistence

import (
	"fmt"

	"go.uber.org/zap"
)

// NewHistorySink 按配置创建 HistorySink
func NewHistorySink(config SinkConfig, logger *zap.Logger) (HistorySink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Type {
	case StoreTypeMemory:
		return NewMemorySink(), nil
	case StoreTypeFile:
		return NewFileSink(config.BaseDir)
	case StoreTypeRedis:
		return NewRedisSink(config.Redis, logger)
	case StoreTypeSQL:
		return NewSQLSink(config.SQL, logger)
	default:
		return nil, fmt.Errorf("unsupported history sink type: %s", config.Type)
	}
}
