package submissions

import (
	"context"
	"strings"

	stderrors "admissions-forms/internal/common/errors"
	"admissions-forms/internal/common/metrics"
	"admissions-forms/internal/common/validation"
	"admissions-forms/internal/events"
	"admissions-forms/internal/models"
	"admissions-forms/internal/notify"
)

// UpdateStatus moves a submission to in.Status. Any status may follow any
// other. One history entry is appended with the stored previous status.
func (s *Service) UpdateStatus(ctx context.Context, id string, actor Actor, in StatusInput) (*models.Submission, error) {
	status := models.Status(strings.TrimSpace(in.Status))
	if status == "" {
		return nil, stderrors.NewValidationError("Status is required",
			stderrors.FieldError{Field: "status", Message: "status is a required field"})
	}
	if !status.Valid() {
		return nil, stderrors.NewValidationError("Invalid status",
			stderrors.FieldError{Field: "status", Message: "status must be one of pending, under-review, approved, rejected, waitlisted, cancelled"})
	}
	in.Reason = strings.TrimSpace(in.Reason)
	in.Notes = strings.TrimSpace(in.Notes)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	change := models.StatusChange{
		NewStatus: status,
		Reason:    in.Reason,
		ChangedBy: actor.ID,
		ChangedAt: now,
	}
	var note *models.ReviewNote
	if in.Notes != "" {
		note = &models.ReviewNote{Note: in.Notes, AddedBy: actor.ID, AddedAt: now, IsInternal: true}
	}

	previous, err := s.repo.UpdateStatus(ctx, sub.ID, change, note)
	if err != nil {
		return nil, s.writeError("update status", sub.ID, err)
	}
	metrics.StatusTransitions.WithLabelValues(string(status)).Inc()
	s.logger.Info("submission status updated", map[string]interface{}{
		"submissionId": sub.ID,
		"from":         string(previous),
		"to":           string(status),
		"actorId":      actor.ID,
	})

	if in.SendEmail == nil || *in.SendEmail {
		s.sendStatusEmail(sub, status, in.Reason, actor.ID)
	}
	s.sendStatusSMS(sub, status)

	updated := s.reload(ctx, sub)
	s.publish(ctx, events.Event{
		Type:           events.StatusChanged,
		Submission:     updated,
		PreviousStatus: previous,
		ActorID:        actor.ID,
		OccurredAt:     now,
	})
	return updated, nil
}

func (s *Service) sendStatusEmail(sub *models.Submission, status models.Status, reason, actorID string) {
	if s.deps.Notifier == nil || sub.StudentInfo.Email == "" {
		return
	}
	subject, body := statusEmail(status, sub.StudentInfo.FullName, sub.ApplicationForm.Name, reason, s.opts.SignOff)
	kind := statusEmailType(status)
	id := sub.ID
	s.deps.Notifier.Dispatch(notify.Message{
		Channel: notify.ChannelEmail,
		To:      sub.StudentInfo.Email,
		Subject: subject,
		Body:    body,
		Kind:    string(kind),
	}, func(ctx context.Context) {
		s.logEmail(ctx, id, models.EmailLogEntry{Type: kind, Subject: subject, SentAt: s.now(), SentBy: actorID})
	})
}

// sendStatusSMS texts applicants whose priority is configured for SMS.
func (s *Service) sendStatusSMS(sub *models.Submission, status models.Status) {
	if s.deps.Notifier == nil || !s.deps.Notifier.Enabled(notify.ChannelSMS) || sub.StudentInfo.PhoneNumber == "" {
		return
	}
	for _, p := range s.opts.SMSPriorities {
		if p == sub.Priority {
			s.deps.Notifier.Dispatch(notify.Message{
				Channel: notify.ChannelSMS,
				To:      sub.StudentInfo.PhoneNumber,
				Body:    statusSMS(status, sub.ApplicationForm.Name),
				Kind:    "status-sms",
			}, nil)
			return
		}
	}
}

// AddNote appends a review note and returns every note on the submission.
func (s *Service) AddNote(ctx context.Context, id string, actor Actor, in NoteInput) ([]models.ReviewNote, error) {
	text := strings.TrimSpace(in.Note)
	if text == "" {
		return nil, stderrors.NewValidationError("Note content is required",
			stderrors.FieldError{Field: "note", Message: "note is a required field"})
	}
	if err := validation.Var("note", text, "max=2000"); err != nil {
		return nil, err
	}
	id = models.NormalizeID(id)
	if !models.IsID(id) {
		return nil, stderrors.NewInvalidIDError("application ID", id)
	}

	note := models.ReviewNote{
		Note:       text,
		AddedBy:    actor.ID,
		AddedAt:    s.now(),
		IsInternal: in.IsInternal == nil || *in.IsInternal,
	}
	if err := s.repo.AddNote(ctx, id, note); err != nil {
		return nil, s.writeError("add note", id, err)
	}

	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return sub.ReviewNotes, nil
}

// Assign sets or clears the assignee. A note is recorded only when both an
// assignee and note text are given.
func (s *Service) Assign(ctx context.Context, id string, actor Actor, in AssignInput) (*models.Submission, error) {
	assignee := ""
	if in.AssignedTo != nil {
		assignee = models.NormalizeID(*in.AssignedTo)
	}
	if assignee != "" && !models.IsID(assignee) {
		return nil, stderrors.NewInvalidIDError("staff ID", assignee)
	}
	id = models.NormalizeID(id)
	if !models.IsID(id) {
		return nil, stderrors.NewInvalidIDError("application ID", id)
	}

	now := s.now()
	var note *models.ReviewNote
	if text := strings.TrimSpace(in.Notes); assignee != "" && text != "" {
		note = &models.ReviewNote{Note: text, AddedBy: actor.ID, AddedAt: now, IsInternal: true}
	}
	if err := s.repo.Assign(ctx, id, assignee, note, now); err != nil {
		return nil, s.writeError("assign application", id, err)
	}

	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("submission assigned", map[string]interface{}{
		"submissionId": id,
		"assignedTo":   assignee,
		"actorId":      actor.ID,
	})
	if assignee != "" {
		s.publish(ctx, events.Event{Type: events.SubmissionAssigned, Submission: sub, ActorID: actor.ID, OccurredAt: now})
	}
	return sub, nil
}

// SendCustomEmail sends a staff-written email to the applicant and waits
// for the result. Delivery failures are reported in the result, not as an
// error. Only delivered emails are logged.
func (s *Service) SendCustomEmail(ctx context.Context, id string, actor Actor, in EmailInput) (*EmailResult, error) {
	subject := strings.TrimSpace(in.Subject)
	message := strings.TrimSpace(in.Message)
	if subject == "" || message == "" {
		return nil, stderrors.NewValidationError("Subject and message are required")
	}
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &EmailResult{}
	if s.deps.Notifier == nil {
		s.logger.Warn("no notifier configured, custom email dropped", map[string]interface{}{"submissionId": sub.ID})
		return result, nil
	}

	err = s.deps.Notifier.Send(ctx, notify.Message{
		Channel: notify.ChannelEmail,
		To:      sub.StudentInfo.Email,
		Subject: subject,
		Body:    message,
		Kind:    string(models.EmailCustom),
	})
	if err != nil {
		s.logger.Warn("custom email failed", map[string]interface{}{"submissionId": sub.ID, "error": err})
		return result, nil
	}
	result.Delivered = true
	s.logEmail(ctx, sub.ID, models.EmailLogEntry{
		Type:    models.EmailCustom,
		Subject: subject,
		SentAt:  s.now(),
		SentBy:  actor.ID,
	})

	if in.CopyToAdmin && !s.opts.DisableAdminCopy && actor.Email != "" {
		copySubject, copyBody := adminCopy(subject, message, sub.StudentInfo.FullName, sub.StudentInfo.Email)
		err := s.deps.Notifier.Send(ctx, notify.Message{
			Channel: notify.ChannelEmail,
			To:      actor.Email,
			Subject: copySubject,
			Body:    copyBody,
			Kind:    "admin-copy",
		})
		if err != nil {
			s.logger.Warn("admin copy failed", map[string]interface{}{"submissionId": sub.ID, "error": err})
		} else {
			result.CopiedAdmin = true
		}
	}
	return result, nil
}

// ToggleArchive sets isArchived; archive defaults to true. Status is not
// touched.
func (s *Service) ToggleArchive(ctx context.Context, id string, actor Actor, in ArchiveInput) (*models.Submission, error) {
	archive := in.Archive == nil || *in.Archive
	id = models.NormalizeID(id)
	if !models.IsID(id) {
		return nil, stderrors.NewInvalidIDError("application ID", id)
	}

	now := s.now()
	if err := s.repo.SetArchived(ctx, id, archive, now); err != nil {
		return nil, s.writeError("archive application", id, err)
	}
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Type: archiveEvent(archive), Submission: sub, ActorID: actor.ID, OccurredAt: now})
	return sub, nil
}

func archiveEvent(archived bool) events.Type {
	if archived {
		return events.SubmissionArchived
	}
	return events.SubmissionRestored
}

// reload fetches sub again; on failure the stale copy is returned.
func (s *Service) reload(ctx context.Context, sub *models.Submission) *models.Submission {
	fresh, err := s.repo.FindByID(ctx, sub.ID)
	if err != nil {
		s.logger.Warn("reload after write failed", map[string]interface{}{"submissionId": sub.ID, "error": err})
		return sub
	}
	return fresh
}
