// Package events fans submission lifecycle changes out to integrations.
package events

import (
	"context"
	"sync"
	"time"

	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/models"
)

type Type string

const (
	SubmissionReceived Type = "submission.received"
	StatusChanged      Type = "submission.status-changed"
	SubmissionAssigned Type = "submission.assigned"
	SubmissionArchived Type = "submission.archived"
	SubmissionRestored Type = "submission.unarchived"
	PriorityChanged    Type = "submission.priority-changed"
)

// Event describes one change to a submission. Submission is a snapshot
// taken after the change.
type Event struct {
	Type           Type
	Submission     *models.Submission
	PreviousStatus models.Status
	ActorID        string
	OccurredAt     time.Time
}

// Subscriber reacts to events. Handle is called from a background goroutine.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// Bus delivers each published event to every subscriber without blocking
// the publisher. Subscriber errors are logged and dropped.
type Bus struct {
	subscribers []Subscriber
	timeout     time.Duration
	log         logger.Logger
	wg          sync.WaitGroup
}

func NewBus(timeout time.Duration, log logger.Logger, subscribers ...Subscriber) *Bus {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b := &Bus{timeout: timeout, log: log}
	for _, s := range subscribers {
		b.Subscribe(s)
	}
	return b
}

// Subscribe must be called before the first Publish.
func (b *Bus) Subscribe(s Subscriber) {
	if s != nil {
		b.subscribers = append(b.subscribers, s)
	}
}

func (b *Bus) Publish(_ context.Context, e Event) {
	if e.Submission == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	for _, s := range b.subscribers {
		b.wg.Add(1)
		go func(s Subscriber) {
			defer b.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			defer cancel()
			if err := s.Handle(ctx, e); err != nil {
				b.log.Warn("Event subscriber failed", map[string]interface{}{
					"subscriber":   s.Name(),
					"event":        string(e.Type),
					"submissionId": e.Submission.ID,
					"error":        err,
				})
			}
		}(s)
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (b *Bus) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
