// Package notify delivers email and SMS on behalf of the domain services.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Channel names a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

var (
	ErrNoRecipient = errors.New("notification has no recipient")
	ErrNoSender    = errors.New("no sender configured for channel")
	ErrSendFailed  = errors.New("notification delivery failed")
)

// Message is one outbound notification. Body is plain text; email senders
// wrap it in the HTML layout.
type Message struct {
	Channel  Channel
	To       string
	Subject  string
	Body     string
	ImageURL string
	// Kind labels the message for metrics and logs, e.g. "welcome".
	Kind string
}

func (m Message) channel() Channel {
	if m.Channel == "" {
		return ChannelEmail
	}
	return m.Channel
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// RenderTemplate replaces {{key}} placeholders with values from data.
// Placeholders without a value are removed.
func RenderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		switch t := v.(type) {
		case string:
			value = t
		case nil:
		default:
			value = fmt.Sprintf("%v", t)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}
