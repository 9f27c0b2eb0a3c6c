package types

import (
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAgent:
		return true
	}
	return false
}

// Message represents one immutable conversation entry.
// Author is the producing worker or team name; empty for user and system messages.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAgentMessage creates a message attributed to a worker or team.
func NewAgentMessage(author, content string) Message {
	m := NewMessage(RoleAgent, content)
	m.Author = author
	return m
}

// Attributed returns a copy of m re-attributed to author.
func (m Message) Attributed(author string) Message {
	m.Role = RoleAgent
	m.Author = author
	return m
}

// Transcript renders messages as "author: content" lines, mostly for logs and CLI output.
func Transcript(msgs []Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		who := m.Author
		if who == "" {
			who = string(m.Role)
		}
		b.WriteString(who)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
