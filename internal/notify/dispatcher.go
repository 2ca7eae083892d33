package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/common/metrics"
)

// Dispatcher routes messages to the sender for their channel. Dispatch runs
// the send in the background; Send delivers synchronously.
type Dispatcher struct {
	senders map[Channel]Sender
	timeout time.Duration
	log     logger.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(senders map[Channel]Sender, timeout time.Duration, log logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := make(map[Channel]Sender, len(senders))
	for ch, sender := range senders {
		if sender != nil {
			s[ch] = sender
		}
	}
	return &Dispatcher{senders: s, timeout: timeout, log: log}
}

// Enabled reports whether a sender is configured for ch.
func (d *Dispatcher) Enabled(ch Channel) bool {
	_, ok := d.senders[ch]
	return ok
}

// Send delivers msg and returns the delivery error.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	ch := msg.channel()
	sender, ok := d.senders[ch]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, ch)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := sender.Send(ctx, msg); err != nil {
		metrics.NotificationsFailed.WithLabelValues(string(ch), msg.Kind).Inc()
		return err
	}
	metrics.NotificationsSent.WithLabelValues(string(ch), msg.Kind).Inc()
	return nil
}

// Dispatch sends msg without blocking the caller. Failures are logged.
// onSuccess, when set, runs after a successful delivery.
func (d *Dispatcher) Dispatch(msg Message, onSuccess func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		id := uuid.NewString()

		// Detached from the request: the response has usually been written
		// by the time delivery finishes.
		ctx := context.Background()
		if err := d.Send(ctx, msg); err != nil {
			d.log.Warn("Notification delivery failed", map[string]interface{}{
				"notificationId": id,
				"channel":        string(msg.channel()),
				"kind":           msg.Kind,
				"to":             msg.To,
				"error":          err,
			})
			return
		}
		d.log.Debug("Notification delivered", map[string]interface{}{
			"notificationId": id,
			"channel":        string(msg.channel()),
			"kind":           msg.Kind,
		})
		if onSuccess != nil {
			cbCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
			onSuccess(cbCtx)
			cancel()
		}
	}()
}

// Wait blocks until every dispatched message has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
