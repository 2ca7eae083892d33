package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridSender delivers email through the SendGrid v3 mail API.
type SendGridSender struct {
	key    string
	host   string
	from   *sgmail.Email
	layout *Layout
}

// NewSendGridSender builds a sender. An empty host selects the public API.
func NewSendGridSender(key, host, fromName, fromEmail string, layout *Layout) *SendGridSender {
	if host == "" {
		host = sendGridHost
	}
	if layout == nil {
		layout = NewLayout("")
	}
	return &SendGridSender{
		key:    key,
		host:   host,
		from:   sgmail.NewEmail(fromName, fromEmail),
		layout: layout,
	}
}

func (s *SendGridSender) prepare(msg Message) (*sgmail.SGMailV3, error) {
	html, err := s.layout.Render(msg)
	if err != nil {
		return nil, err
	}

	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Body),
		sgmail.NewContent("text/html", html),
	)
	return m, nil
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	m, err := s.prepare(msg)
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	req := sendgrid.GetRequest(s.key, sendGridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("%w: sendgrid: %v", ErrSendFailed, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: sendgrid status %d: %s", ErrSendFailed, res.StatusCode, res.Body)
	}
	return nil
}
