// Package domain contains core concepts of the chat relay.
// This file defines ChatEvent, the single unit exchanged on the wire.
// Events are immutable and carry no runtime or network state.
package domain

import (
	"chat-relay/errors"
	"fmt"
)

// Kind classifies a wire line. The string value is the literal used on the wire.
type Kind string

const (
	Join    Kind = "JOIN"
	Chat    Kind = "MESSAGE"
	Leave   Kind = "EXIT"
	System  Kind = "SYSTEM"
	Unknown Kind = ""
)

// SystemUsername is the sender identity reserved for server notices.
const SystemUsername = "SYSTEM"

// ParseKind maps a wire literal to its Kind. Matching is case-sensitive.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case Join, Chat, Leave, System:
		return Kind(s), true
	default:
		return Unknown, false
	}
}

// ChatEvent represents an immutable chat event.
type ChatEvent struct {
	Kind     Kind
	Username string
	Content  string
}

func NewJoin(username string) ChatEvent {
	return ChatEvent{Kind: Join, Username: username}
}

func NewChat(username, content string) ChatEvent {
	return ChatEvent{Kind: Chat, Username: username, Content: content}
}

func NewLeave(username string) ChatEvent {
	return ChatEvent{Kind: Leave, Username: username}
}

// NewSystem builds a server notice signed with SystemUsername.
func NewSystem(content string) ChatEvent {
	return ChatEvent{Kind: System, Username: SystemUsername, Content: content}
}

// Joined and Left are the notices broadcast when a participant arrives or explicitly leaves.
func Joined(username string) ChatEvent {
	return NewSystem(fmt.Sprintf("%s joined the chat", username))
}

func Left(username string) ChatEvent {
	return NewSystem(fmt.Sprintf("%s left the chat", username))
}

func (e ChatEvent) IsSystem() bool {
	return e.Kind == System
}

// Validate enforces that participant events carry a username.
func (e ChatEvent) Validate() error {
	if e.Kind != System && e.Username == "" {
		return fmt.Errorf("%w: kind %s", errors.ErrInvalidEvent, e.Kind)
	}
	return nil
}

// String renders the event for humans, as the terminal client prints it.
func (e ChatEvent) String() string {
	if e.IsSystem() {
		return "[SYSTEM] " + e.Content
	}
	return e.Username + ": " + e.Content
}
