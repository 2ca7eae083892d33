package notify

import (
	"context"
	"fmt"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"admissions-forms/internal/common/aws"
)

// smsLimit is the longest body sent in a single SMS.
const smsLimit = 1600

// SMSSender delivers text messages through Amazon SNS.
type SMSSender struct {
	client   aws.SNSService
	senderID string
}

func NewSMSSender(client aws.SNSService, senderID string) *SMSSender {
	return &SMSSender{client: client, senderID: senderID}
}

func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return ErrNoRecipient
	}
	body := msg.Body
	if msg.Subject != "" {
		body = msg.Subject + ": " + body
	}
	if len(body) > smsLimit {
		body = body[:smsLimit]
	}

	input := &sns.PublishInput{
		PhoneNumber: awsv2.String(to),
		Message:     awsv2.String(body),
	}
	if s.senderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    awsv2.String("String"),
				StringValue: awsv2.String(s.senderID),
			},
		}
	}

	if _, err := s.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("%w: sns: %v", ErrSendFailed, err)
	}
	return nil
}
