// Package protocol defines the conversation vocabulary shared by the
// template renderer and the session orchestrator.
package protocol

import (
	"fmt"
	"strings"
)

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Roles returns every role in turn order.
func Roles() []Role {
	return []Role{RoleSystem, RoleUser, RoleAssistant}
}

// ParseRole resolves a role name case-insensitively.
func ParseRole(name string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(name))) {
	case RoleSystem:
		return RoleSystem, nil
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown role: %q", name)
	}
}

// Next returns the role that speaks after r when the operator advances
// the conversation by hand. The system role only ever hands over to the
// user; user and assistant alternate.
func (r Role) Next() Role {
	switch r {
	case RoleUser:
		return RoleAssistant
	default:
		return RoleUser
	}
}

// Cycle returns the role selected when the operator steps through all
// roles without saying anything: system -> user -> assistant -> system.
func (r Role) Cycle() Role {
	switch r {
	case RoleSystem:
		return RoleUser
	case RoleUser:
		return RoleAssistant
	default:
		return RoleSystem
	}
}

// Message is a single conversation turn handed to the template renderer.
// Messages are transient: they are built for one turn and discarded once
// rendered.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a Message with the given role and content.
//
// Example:
//
//	msg := protocol.NewMessage(protocol.RoleUser, "Hello, world!")
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// InitMessages creates a single-element message slice from a role and content string.
func InitMessages(role Role, content string) []Message {
	return []Message{NewMessage(role, content)}
}
