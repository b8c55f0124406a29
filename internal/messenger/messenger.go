package messenger

import (
	"context"
	"strings"
)

// MessageID uniquely identifies a message within a messenger platform.
type MessageID string

// Field is one labelled line of a Notice.
type Field struct {
	Label string
	Value string
}

// Notice is a platform-neutral structured message: a title, labelled fields
// and a footer line.
type Notice struct {
	Title  string
	Fields []Field
	Footer string
}

// Text renders n as plain text, one field per line.
func (n Notice) Text() string {
	var b strings.Builder
	b.WriteString(n.Title)
	for _, f := range n.Fields {
		b.WriteString("\n")
		b.WriteString(f.Label)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	if n.Footer != "" {
		b.WriteString("\n")
		b.WriteString(n.Footer)
	}
	return b.String()
}

// Messenger abstracts communication with a chat platform.
// Implementations handle platform-specific API calls; the interface is platform-agnostic.
type Messenger interface {
	// SendMessage posts a text message to a channel and returns its platform message ID.
	SendMessage(ctx context.Context, channelID, text string) (MessageID, error)

	// SendNotice posts a structured message, using the richest layout the
	// platform offers.
	SendNotice(ctx context.Context, channelID string, n Notice) (MessageID, error)

	// Platform returns the messenger platform identifier (e.g. "slack").
	Platform() string
}
