// Package submissions accepts applications against form definitions and
// drives their review lifecycle.
package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	stderrors "admissions-forms/internal/common/errors"
	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/common/metrics"
	"admissions-forms/internal/common/validation"
	"admissions-forms/internal/events"
	"admissions-forms/internal/models"
	"admissions-forms/internal/notify"
)

var (
	ErrNotFound      = errors.New("SUBMISSION_NOT_FOUND")
	ErrFormNotFound  = errors.New("FORM_NOT_FOUND")
	ErrUnknownAction = errors.New("UNKNOWN_BULK_ACTION")
	ErrSearchOff     = errors.New("search index is not configured")
)

const receiptMessage = "Thank you for your application. We will review it and get back to you soon."

// Notifier is the outbound notification port; notify.Dispatcher satisfies it.
type Notifier interface {
	Dispatch(msg notify.Message, onSuccess func(ctx context.Context))
	Send(ctx context.Context, msg notify.Message) error
	Enabled(ch notify.Channel) bool
}

// Publisher receives lifecycle events; events.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, e events.Event)
}

// FormCache drops cached public form views; forms.Service satisfies it.
type FormCache interface {
	Invalidate(ctx context.Context, slug string)
}

// Searcher answers free-text queries; SearchIndex satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, page models.Page) ([]SearchHit, int, error)
}

// Deps holds the optional collaborators of the service. Any may be nil.
type Deps struct {
	Notifier  Notifier
	Publisher Publisher
	Forms     FormCache
	Search    Searcher
}

type Options struct {
	DefaultPageLimit int
	MaxPageLimit     int
	// SMSPriorities lists the priorities whose applicants also get an SMS on
	// status changes.
	SMSPriorities []models.Priority
	// SignOff closes every templated email.
	SignOff string
	// StatsWindow is the span of the daily activity series.
	StatsWindow time.Duration
	// DisableAdminCopy ignores copyToAdmin on custom emails.
	DisableAdminCopy bool
}

func (o Options) withDefaults() Options {
	if o.DefaultPageLimit <= 0 {
		o.DefaultPageLimit = 10
	}
	if o.MaxPageLimit <= 0 {
		o.MaxPageLimit = 100
	}
	if o.SignOff == "" {
		o.SignOff = "Langzy Team"
	}
	if o.StatsWindow <= 0 {
		o.StatsWindow = 30 * 24 * time.Hour
	}
	return o
}

type Service struct {
	repo   Repository
	deps   Deps
	opts   Options
	logger logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, deps Deps, opts Options, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logger.ForComponent(log, "submissions"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit accepts an application for formID. The guards run in order inside
// the intake transaction: form active, deadline, capacity, duplicate email.
// Notifications are sent after commit and never affect the result.
func (s *Service) Submit(ctx context.Context, formID string, payload map[string]interface{}, meta RequestMeta) (*Receipt, error) {
	if err := validation.ValidateSubmission(payload); err != nil {
		metrics.SubmissionsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}
	in, err := decodePayload(payload)
	if err != nil {
		metrics.SubmissionsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}
	student := studentInfo(in)
	if student.Email == "" {
		metrics.SubmissionsRejected.WithLabelValues("validation").Inc()
		return nil, stderrors.NewValidationError("Student email is required",
			stderrors.FieldError{Field: "studentInfo.email", Message: "email is a required field"})
	}
	if err := validation.Var("studentInfo.email", student.Email, "email"); err != nil {
		metrics.SubmissionsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	formID = models.NormalizeID(formID)
	if !models.IsID(formID) {
		metrics.SubmissionsRejected.WithLabelValues("inactive").Inc()
		return nil, stderrors.NewFormInactiveError(formID)
	}
	if !meta.Source.Valid() {
		meta.Source = models.SourceWebsite
	}

	now := s.now()
	sub := &models.Submission{
		ID:                models.NewID(),
		ApplicationForm:   models.FormRef{ID: formID},
		StudentInfo:       student,
		AcademicInfo:      in.AcademicInfo,
		CoursePreferences: in.CoursePreferences,
		Documents:         documents(in.Documents, now),
		FormData:          in.FormData,
		Status:            models.StatusPending,
		Priority:          models.PriorityMedium,
		SubmissionSource:  meta.Source,
		IPAddress:         meta.IPAddress,
		UserAgent:         meta.UserAgent,
		Tags:              cleanTags(in.Tags),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var form *models.FormDefinition
	err = s.repo.WithIntake(ctx, func(tx IntakeTx) error {
		f, err := tx.LockForm(ctx, formID)
		if errors.Is(err, ErrFormNotFound) {
			return reject("inactive", stderrors.NewFormInactiveError(formID))
		}
		if err != nil {
			return err
		}
		if !f.IsActive {
			return reject("inactive", stderrors.NewFormInactiveError(formID))
		}
		if f.DeadlinePassed(now) {
			return reject("deadline", stderrors.NewDeadlinePassedError(*f.Settings.SubmissionDeadline))
		}
		if f.AtCapacity() {
			return reject("capacity", stderrors.NewCapacityReachedError(*f.Settings.MaxCapacity))
		}
		if !f.Settings.AllowMultipleSubmissions {
			exists, err := tx.EmailExists(ctx, formID, student.Email)
			if err != nil {
				return err
			}
			if exists {
				return reject("duplicate", stderrors.NewDuplicateSubmissionError(student.Email))
			}
		}

		if err := tx.Insert(ctx, sub); err != nil {
			return err
		}
		if err := tx.IncrementSubmissions(ctx, formID, now); err != nil {
			return err
		}
		form = f
		return nil
	})
	if err != nil {
		var std *stderrors.StandardError
		if errors.As(err, &std) {
			return nil, std
		}
		return nil, stderrors.NewDatabaseInsertFailedError(err)
	}

	metrics.SubmissionsAccepted.WithLabelValues(string(meta.Source)).Inc()
	sub.ApplicationForm.Name = form.Name
	sub.ApplicationForm.Category = form.Category
	s.logger.Info("submission accepted", map[string]interface{}{
		"submissionId": sub.ID,
		"formId":       formID,
		"source":       string(meta.Source),
	})

	if s.deps.Forms != nil {
		s.deps.Forms.Invalidate(ctx, form.Slug)
	}
	s.sendAutoReply(form, sub)
	s.notifyAdmins(form, sub)
	s.publish(ctx, events.Event{Type: events.SubmissionReceived, Submission: sub, OccurredAt: now})

	return &Receipt{ApplicationID: sub.ID, Message: receiptMessage}, nil
}

// reject counts a guard failure and returns its error.
func reject(guard string, err *stderrors.StandardError) error {
	metrics.SubmissionsRejected.WithLabelValues(guard).Inc()
	return err
}

func (s *Service) sendAutoReply(form *models.FormDefinition, sub *models.Submission) {
	n := form.EmailNotifications
	if s.deps.Notifier == nil || !n.Enabled || n.AutoReplyTemplate.Subject == "" {
		return
	}
	data := map[string]interface{}{
		"fullName": sub.StudentInfo.FullName,
		"formName": form.Name,
		"email":    sub.StudentInfo.Email,
	}
	subject := notify.RenderTemplate(n.AutoReplyTemplate.Subject, data)
	msg := notify.Message{
		Channel: notify.ChannelEmail,
		To:      sub.StudentInfo.Email,
		Subject: subject,
		Body:    notify.RenderTemplate(n.AutoReplyTemplate.Message, data),
		Kind:    string(models.EmailWelcome),
	}
	id := sub.ID
	s.deps.Notifier.Dispatch(msg, func(ctx context.Context) {
		s.logEmail(ctx, id, models.EmailLogEntry{Type: models.EmailWelcome, Subject: subject, SentAt: s.now()})
	})
}

func (s *Service) notifyAdmins(form *models.FormDefinition, sub *models.Submission) {
	n := form.EmailNotifications
	if s.deps.Notifier == nil || !n.Enabled {
		return
	}
	subject, body := adminNotice(form.Name, sub.StudentInfo.FullName, sub.StudentInfo.Email)
	for _, addr := range n.AdminEmails {
		s.deps.Notifier.Dispatch(notify.Message{
			Channel: notify.ChannelEmail,
			To:      addr,
			Subject: subject,
			Body:    body,
			Kind:    "admin-notice",
		}, nil)
	}
}

// logEmail records a delivered email; failures are only logged.
func (s *Service) logEmail(ctx context.Context, id string, entry models.EmailLogEntry) {
	if err := s.repo.LogEmail(ctx, id, entry); err != nil {
		s.logger.Warn("failed to log sent email", map[string]interface{}{
			"submissionId": id,
			"type":         string(entry.Type),
			"error":        err,
		})
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.deps.Publisher != nil && e.Submission != nil {
		s.deps.Publisher.Publish(ctx, e)
	}
}

func decodePayload(payload map[string]interface{}) (*SubmitPayload, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, stderrors.NewValidationError(fmt.Sprintf("Invalid submission: %v", err))
	}
	var in SubmitPayload
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, payloadError(err)
	}
	if in.FormData == nil {
		in.FormData = map[string]interface{}{}
	}
	return &in, nil
}

// payloadError reports a decode failure against the JSON field that caused it.
func payloadError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) || typeErr.Field == "" {
		return stderrors.NewValidationError("Invalid submission payload")
	}
	msg := fmt.Sprintf("%s must be %s", typeErr.Field, expectedKind(typeErr.Type))
	return stderrors.NewValidationError(msg, stderrors.FieldError{Field: typeErr.Field, Message: msg})
}

func expectedKind(t reflect.Type) string {
	if t == nil {
		return "a valid value"
	}
	switch t {
	case reflect.TypeOf(models.Score("")):
		return "a number or a string"
	case reflect.TypeOf(models.Timestamp{}), reflect.TypeOf(time.Time{}):
		return "a date (YYYY-MM-DD or RFC 3339)"
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "a list"
	case reflect.Map, reflect.Struct, reflect.Ptr:
		return "an object"
	}
	return "a valid value"
}

// studentInfo fills the applicant identity, falling back to formData for
// forms that collect name, email and phone as plain fields.
func studentInfo(in *SubmitPayload) models.StudentInfo {
	var info models.StudentInfo
	if in.StudentInfo != nil {
		info = *in.StudentInfo
	}
	fallback := func(cur string, keys ...string) string {
		if strings.TrimSpace(cur) != "" {
			return strings.TrimSpace(cur)
		}
		for _, k := range keys {
			if v, ok := in.FormData[k].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	info.FullName = fallback(info.FullName, "fullName", "name")
	info.Email = models.NormalizeEmail(fallback(info.Email, "email"))
	info.PhoneNumber = fallback(info.PhoneNumber, "phoneNumber", "phone")
	return info
}

func documents(in []DocumentInput, now time.Time) []models.Document {
	out := make([]models.Document, 0, len(in))
	for _, d := range in {
		if strings.TrimSpace(d.URL) == "" {
			continue
		}
		doc := models.Document{
			Name:       strings.TrimSpace(d.Name),
			Type:       d.Type,
			URL:        strings.TrimSpace(d.URL),
			UploadedAt: now,
		}
		if doc.Type == "" {
			doc.Type = "other"
		}
		if d.UploadedAt != nil && !d.UploadedAt.IsZero() {
			doc.UploadedAt = d.UploadedAt.UTC()
		}
		out = append(out, doc)
	}
	return out
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// load validates id and fetches the submission.
func (s *Service) load(ctx context.Context, id string) (*models.Submission, error) {
	id = models.NormalizeID(id)
	if !models.IsID(id) {
		return nil, stderrors.NewInvalidIDError("application ID", id)
	}
	sub, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, stderrors.NewSubmissionNotFoundError(id)
	}
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("get application", err)
	}
	return sub, nil
}

func (s *Service) writeError(op, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return stderrors.NewSubmissionNotFoundError(id)
	}
	return stderrors.NewQueryExecutionFailedError(op, err)
}
