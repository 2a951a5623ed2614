package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
)

// Delimiter separates the kind, username and content fields of a line.
const Delimiter = ":"

// Encode produces "<KIND>:<username>:<content>" without a trailing newline.
// Content is written verbatim: it is always the last field, so delimiters inside it are safe.
func Encode(e ChatEvent) string {
	return string(e.Kind) + Delimiter + e.Username + Delimiter + e.Content
}

// Decode parses one line into a ChatEvent.
// Every failure wraps errors.ErrDecode; callers skip the line and keep the connection open.
func Decode(line string) (ChatEvent, error) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" {
		return ChatEvent{}, fmt.Errorf("%w: empty line", errors.ErrDecode)
	}

	parts := strings.SplitN(line, Delimiter, 3)
	if len(parts) < 2 {
		return ChatEvent{}, fmt.Errorf("%w: missing delimiter", errors.ErrDecode)
	}

	kind, ok := ParseKind(parts[0])
	if !ok {
		return ChatEvent{}, fmt.Errorf("%w: unknown kind %q", errors.ErrDecode, parts[0])
	}

	var content string
	if len(parts) == 3 {
		content = parts[2]
	}
	return ChatEvent{Kind: kind, Username: parts[1], Content: content}, nil
}
