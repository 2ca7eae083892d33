package notify

import (
	"context"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"admissions-forms/internal/common/aws"
)

// SESSender delivers email through Amazon SES.
type SESSender struct {
	client aws.SESService
	from   string
	layout *Layout
}

func NewSESSender(client aws.SESService, from string, layout *Layout) *SESSender {
	if layout == nil {
		layout = NewLayout("")
	}
	return &SESSender{client: client, from: from, layout: layout}
}

func (s *SESSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	html, err := s.layout.Render(msg)
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	input := &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    awsv2.String(msg.Subject),
				Charset: awsv2.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    awsv2.String(msg.Body),
					Charset: awsv2.String("UTF-8"),
				},
				Html: &types.Content{
					Data:    awsv2.String(html),
					Charset: awsv2.String("UTF-8"),
				},
			},
		},
		Source: awsv2.String(s.from),
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("%w: ses: %v", ErrSendFailed, err)
	}
	return nil
}
