package submissions

import (
	"context"
	"errors"
	"strings"
	"time"

	stderrors "admissions-forms/internal/common/errors"
	"admissions-forms/internal/common/metrics"
	"admissions-forms/internal/events"
	"admissions-forms/internal/models"
)

const (
	ActionUpdateStatus = "updateStatus"
	ActionAssign       = "assign"
	ActionArchive      = "archive"
	ActionSetPriority  = "setPriority"
)

const bulkReason = "Bulk status update"

// Bulk applies one action to every listed submission with a single update.
// Bulk status changes append a history entry per submission, like the
// single-record path.
func (s *Service) Bulk(ctx context.Context, actor Actor, in BulkInput) (*BulkResult, error) {
	if strings.TrimSpace(in.Action) == "" || in.ApplicationIDs == nil {
		return nil, stderrors.NewValidationError("Action and application IDs are required")
	}
	ids := make([]string, 0, len(in.ApplicationIDs))
	for _, raw := range in.ApplicationIDs {
		id := models.NormalizeID(raw)
		if !models.IsID(id) {
			return nil, stderrors.NewInvalidIDError("application ID", raw)
		}
		ids = append(ids, id)
	}

	now := s.now()
	update := BulkUpdate{Action: in.Action}
	switch in.Action {
	case ActionUpdateStatus:
		status := models.Status(strings.TrimSpace(in.Data.Status))
		if status == "" {
			return nil, stderrors.NewValidationError("Status is required for bulk status update")
		}
		if !status.Valid() {
			return nil, stderrors.NewValidationError("Invalid status")
		}
		reason := strings.TrimSpace(in.Data.Reason)
		if reason == "" {
			reason = bulkReason
		}
		update.Change = models.StatusChange{NewStatus: status, Reason: reason, ChangedBy: actor.ID, ChangedAt: now}
	case ActionAssign:
		if in.Data.AssignedTo != nil {
			update.AssignedTo = models.NormalizeID(*in.Data.AssignedTo)
		}
		if update.AssignedTo != "" && !models.IsID(update.AssignedTo) {
			return nil, stderrors.NewInvalidIDError("staff ID", update.AssignedTo)
		}
	case ActionArchive:
		update.Archive = in.Data.Archive == nil || *in.Data.Archive
	case ActionSetPriority:
		priority := models.Priority(strings.TrimSpace(in.Data.Priority))
		if priority == "" {
			return nil, stderrors.NewValidationError("Priority is required for bulk priority update")
		}
		if !priority.Valid() {
			return nil, stderrors.NewValidationError("Invalid priority")
		}
		update.Priority = priority
	default:
		return nil, stderrors.NewValidationError("Invalid bulk action")
	}

	if len(ids) == 0 {
		return &BulkResult{}, nil
	}
	ids = dedupe(ids)
	var before map[string]*models.Submission
	if s.deps.Publisher != nil {
		before = s.snapshot(ctx, ids)
	}
	result, err := s.repo.Bulk(ctx, ids, update, now)
	if errors.Is(err, ErrUnknownAction) {
		return nil, stderrors.NewValidationError("Invalid bulk action")
	}
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("bulk "+in.Action, err)
	}

	metrics.BulkOperations.WithLabelValues(in.Action).Inc()
	if in.Action == ActionUpdateStatus {
		metrics.StatusTransitions.WithLabelValues(string(update.Change.NewStatus)).Add(float64(result.ModifiedCount))
	}
	s.logger.Info("bulk action applied", map[string]interface{}{
		"action":   in.Action,
		"matched":  result.MatchedCount,
		"modified": result.ModifiedCount,
		"actorId":  actor.ID,
	})
	if s.deps.Publisher != nil {
		s.publishBulk(ctx, actor, update, ids, before, now)
	}
	return &result, nil
}

// publishBulk emits one event per row the bulk update changed. Status
// updates always count as a change since each appends a history entry.
func (s *Service) publishBulk(ctx context.Context, actor Actor, update BulkUpdate, ids []string, before map[string]*models.Submission, at time.Time) {
	after := s.snapshot(ctx, ids)
	for _, id := range ids {
		prev, cur := before[id], after[id]
		if prev == nil || cur == nil {
			continue
		}
		e := events.Event{Submission: cur, ActorID: actor.ID, OccurredAt: at}
		switch update.Action {
		case ActionUpdateStatus:
			e.Type = events.StatusChanged
			e.PreviousStatus = prev.Status
		case ActionAssign:
			if prev.AssignedID() == cur.AssignedID() {
				continue
			}
			e.Type = events.SubmissionAssigned
		case ActionArchive:
			if prev.IsArchived == cur.IsArchived {
				continue
			}
			e.Type = archiveEvent(cur.IsArchived)
		case ActionSetPriority:
			if prev.Priority == cur.Priority {
				continue
			}
			e.Type = events.PriorityChanged
		default:
			continue
		}
		s.publish(ctx, e)
	}
}

// snapshot loads the listed submissions. Missing rows are skipped.
func (s *Service) snapshot(ctx context.Context, ids []string) map[string]*models.Submission {
	out := make(map[string]*models.Submission, len(ids))
	for _, id := range ids {
		sub, err := s.repo.FindByID(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("bulk snapshot failed", map[string]interface{}{"submissionId": id, "error": err})
			}
			continue
		}
		out[id] = sub
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
