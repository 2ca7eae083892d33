package events

import (
	"context"
	"time"
)

// MessagePublisher is satisfied by camunda.Client.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, name, correlationKey string, ttl time.Duration, vars map[string]interface{}) error
}

var messageNames = map[Type]string{
	SubmissionReceived: "submission-received",
	StatusChanged:      "submission-status-changed",
	SubmissionAssigned: "submission-assigned",
}

// ZeebeNotifier correlates lifecycle events with review processes, keyed by
// submission id.
type ZeebeNotifier struct {
	client MessagePublisher
	ttl    time.Duration
}

func NewZeebeNotifier(client MessagePublisher, ttl time.Duration) *ZeebeNotifier {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ZeebeNotifier{client: client, ttl: ttl}
}

func (z *ZeebeNotifier) Name() string { return "zeebe" }

func (z *ZeebeNotifier) Handle(ctx context.Context, e Event) error {
	name, ok := messageNames[e.Type]
	if !ok {
		return nil
	}
	s := e.Submission
	vars := map[string]interface{}{
		"submissionId": s.ID,
		"formId":       s.ApplicationForm.ID,
		"status":       string(s.Status),
		"priority":     string(s.Priority),
		"email":        s.StudentInfo.Email,
	}
	if e.PreviousStatus != "" {
		vars["previousStatus"] = string(e.PreviousStatus)
	}
	if e.ActorID != "" {
		vars["actorId"] = e.ActorID
	}
	if id := s.AssignedID(); id != "" {
		vars["assignedTo"] = id
	}
	return z.client.PublishMessage(ctx, name, s.ID, z.ttl, vars)
}
