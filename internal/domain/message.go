package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// Valid reports whether r is exactly one of the three roles. Use
// ParseRole to normalize free-form input first.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func UserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// History is the ordered conversation sent to the response provider.
// It only grows; a failed turn leaves it untouched.
type History struct {
	messages []Message
}

func NewHistory(preamble string) *History {
	h := &History{}
	if preamble != "" {
		h.messages = append(h.messages, SystemMessage(preamble))
	}
	return h
}

// Append adds all messages or none of them.
func (h *History) Append(msgs ...Message) error {
	for _, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("appending message: invalid role %q", m.Role)
		}
	}
	h.messages = append(h.messages, msgs...)
	return nil
}

// With returns a copy of the history followed by msgs, leaving h unchanged.
func (h *History) With(msgs ...Message) []Message {
	out := make([]Message, 0, len(h.messages)+len(msgs))
	out = append(out, h.messages...)
	return append(out, msgs...)
}

func (h *History) Messages() []Message {
	return h.With()
}

func (h *History) Len() int {
	return len(h.messages)
}
