// Package types provides core types used across the agentchat module.
// This package has ZERO dependencies on other agentchat packages to avoid circular imports.
package types

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AgentID identifies an agent instance. It is generated once and never reused.
type AgentID string

// NewAgentID generates a fresh agent identifier.
func NewAgentID() AgentID {
	return AgentID("agent:" + uuid.NewString())
}

// String returns the raw identifier.
func (id AgentID) String() string { return string(id) }

// MessageKind distinguishes ordinary replies from error and system messages.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindError  MessageKind = "error"
	KindSystem MessageKind = "system"
)

// FunctionCall is a structured function-call descriptor carried by a message.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is an immutable envelope exchanged between agents.
// All builder methods return modified copies.
type Message struct {
	ID          string        `json:"id"`
	Sender      AgentID       `json:"sender,omitempty"`
	SenderName  string        `json:"sender_name,omitempty"`
	Recipient   AgentID       `json:"recipient,omitempty"` // empty = broadcast
	Content     string        `json:"content,omitempty"`
	Function    *FunctionCall `json:"function,omitempty"`
	Kind        MessageKind   `json:"kind"`
	ErrorCode   ErrorCode     `json:"error_code,omitempty"`
	InReplyTo   string        `json:"in_reply_to,omitempty"`
	CausalIndex uint64        `json:"causal_index,omitempty"` // 0 = not yet recorded
	CreatedAt   time.Time     `json:"created_at"`
}

// NewMessage creates a text message from sender.
func NewMessage(sender AgentID, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Kind:      KindText,
		CreatedAt: time.Now(),
	}
}

// NewSystemMessage creates a message that originates outside any agent.
func NewSystemMessage(content string) Message {
	msg := NewMessage("", content)
	msg.Kind = KindSystem
	return msg
}

// NewErrorMessage creates an error-tagged message describing err.
func NewErrorMessage(sender, recipient AgentID, inReplyTo string, err error) Message {
	msg := NewMessage(sender, err.Error())
	msg.Kind = KindError
	msg.Recipient = recipient
	msg.InReplyTo = inReplyTo
	msg.ErrorCode = GetErrorCode(err)
	if msg.ErrorCode == "" {
		msg.ErrorCode = ErrInternalError
	}
	return msg
}

// To returns a copy addressed to recipient.
func (m Message) To(recipient AgentID) Message {
	m.Recipient = recipient
	return m
}

// From returns a copy attributed to sender.
func (m Message) From(sender AgentID, name string) Message {
	m.Sender = sender
	m.SenderName = name
	return m
}

// ReplyTo returns a copy marked as a reply to id.
func (m Message) ReplyTo(id string) Message {
	m.InReplyTo = id
	return m
}

// WithFunction returns a copy carrying a function-call descriptor.
func (m Message) WithFunction(name string, args json.RawMessage) Message {
	m.Function = &FunctionCall{Name: name, Arguments: args}
	return m
}

// WithCausalIndex returns a copy stamped with the given history position.
func (m Message) WithCausalIndex(idx uint64) Message {
	m.CausalIndex = idx
	return m
}

// IsBroadcast reports whether the message has no recipient.
func (m Message) IsBroadcast() bool { return m.Recipient == "" }

// IsError reports whether the message carries a failure.
func (m Message) IsError() bool { return m.Kind == KindError }

// HasFunction reports whether the message carries a function-call descriptor.
func (m Message) HasFunction() bool { return m.Function != nil && m.Function.Name != "" }

// Validate checks the fields required for routing.
func (m Message) Validate() error {
	if m.ID == "" {
		return errors.New("message id is required")
	}
	if m.Function != nil && m.Function.Name == "" {
		return errors.New("function call name is required")
	}
	return nil
}
