package notify

import (
	"context"
	"sync"

	"admissions-forms/internal/common/logger"
)

// ConsoleSender writes messages to the log instead of delivering them.
// Used in development and tests.
type ConsoleSender struct {
	log logger.Logger

	mu   sync.Mutex
	sent []Message
}

func NewConsoleSender(log logger.Logger) *ConsoleSender {
	return &ConsoleSender{log: log}
}

func (c *ConsoleSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()

	c.log.Info("Email (console)", map[string]interface{}{
		"channel": string(msg.channel()),
		"to":      msg.To,
		"subject": msg.Subject,
		"kind":    msg.Kind,
		"body":    msg.Body,
	})
	return nil
}

// Sent returns a copy of every message written so far.
func (c *ConsoleSender) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}
