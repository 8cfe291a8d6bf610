package agent

import (
	"errors"
	"fmt"

	"github.com/BaSui01/agentchat/types"
)

var (
	// ErrAlreadyStarted Agent 循环已启动
	ErrAlreadyStarted = errors.New("agent already started")

	// ErrNotStarted Agent 循环尚未启动
	ErrNotStarted = errors.New("agent not started")

	// ErrResponderNotSet Responder 未设置
	ErrResponderNotSet = errors.New("responder not set")

	// ErrGracePeriodExceeded 宽限期内未退出，已强制中止
	ErrGracePeriodExceeded = errors.New("agent did not stop within grace period")

	// ErrAgentNotFound 目标 Agent 未注册
	ErrAgentNotFound = types.NewError(types.ErrAgentNotFound, "agent not found")

	// ErrDuplicateAgent Agent ID 重复
	ErrDuplicateAgent = errors.New("duplicate agent id")
)

// SendError 携带未能投递的消息。
type SendError struct {
	Msg types.Message
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send message %s to %s: %v", e.Msg.ID, e.Msg.Recipient, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Message 返回未投递的消息。
func (e *SendError) Message() types.Message { return e.Msg }
