package submissions

import (
	"context"
	"errors"
	"strings"
	"time"

	stderrors "admissions-forms/internal/common/errors"
	"admissions-forms/internal/models"
)

// List returns one page of submissions for staff.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*models.Submission, models.Pagination, error) {
	filter := ListFilter{
		Status:   models.Status(strings.TrimSpace(q.Status)),
		Priority: models.Priority(strings.TrimSpace(q.Priority)),
		Search:   strings.TrimSpace(q.Search),
		Archived: q.Archived == "true",
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, models.Pagination{}, stderrors.NewValidationError("Invalid status")
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, models.Pagination{}, stderrors.NewValidationError("Invalid priority")
	}
	var err error
	if filter.FormID, err = optionalID("form ID", q.FormID); err != nil {
		return nil, models.Pagination{}, err
	}
	if filter.AssignedTo, err = optionalID("staff ID", q.AssignedTo); err != nil {
		return nil, models.Pagination{}, err
	}
	if filter.From, filter.To, err = dateRange(q.DateFrom, q.DateTo); err != nil {
		return nil, models.Pagination{}, err
	}

	page := models.NewPage(q.Page, q.Limit, q.SortBy, q.SortOrder, s.opts.DefaultPageLimit, s.opts.MaxPageLimit)
	items, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, models.Pagination{}, stderrors.NewQueryExecutionFailedError("list applications", err)
	}
	return items, models.NewPagination(page.Page, page.Limit, total, len(items)), nil
}

// Get returns one submission with its form and assignee populated.
func (s *Service) Get(ctx context.Context, id string) (*models.Submission, error) {
	return s.load(ctx, id)
}

// PublicStatus looks up the newest submission by email for formID and
// returns the applicant-visible projection.
func (s *Service) PublicStatus(ctx context.Context, email, formID string) (*PublicStatus, error) {
	email = models.NormalizeEmail(email)
	formID = models.NormalizeID(formID)
	if email == "" || formID == "" {
		return nil, stderrors.NewValidationError("Email and form ID are required")
	}
	if !models.IsID(formID) {
		return nil, stderrors.NewInvalidIDError("form ID", formID)
	}

	sub, err := s.repo.FindLatest(ctx, email, formID)
	if errors.Is(err, ErrNotFound) {
		return nil, stderrors.NewSubmissionNotFoundError(email)
	}
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("application status", err)
	}
	return &PublicStatus{
		Status:      sub.Status,
		SubmittedAt: sub.CreatedAt,
		FormName:    sub.ApplicationForm.Name,
		PublicNotes: sub.PublicNotes(),
		LastContact: sub.Communication.LastContact(),
	}, nil
}

// Stats aggregates non-archived submissions. The activity series covers
// the trailing window regardless of the date range.
func (s *Service) Stats(ctx context.Context, q StatsQuery) (*Stats, error) {
	var (
		filter StatsFilter
		err    error
	)
	if filter.FormID, err = optionalID("form ID", q.FormID); err != nil {
		return nil, err
	}
	if filter.From, filter.To, err = dateRange(q.DateFrom, q.DateTo); err != nil {
		return nil, err
	}
	since := s.now().Add(-s.opts.StatsWindow)
	stats, err := s.repo.Stats(ctx, filter, since)
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("application stats", err)
	}
	return stats, nil
}

// Search runs a free-text query against the search index.
func (s *Service) Search(ctx context.Context, query string, page, limit int) ([]SearchHit, models.Pagination, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.Pagination{}, stderrors.NewValidationError("Search query is required")
	}
	if s.deps.Search == nil {
		return nil, models.Pagination{}, stderrors.NewExternalServiceError("elasticsearch", ErrSearchOff)
	}
	p := models.NewPage(page, limit, "", "desc", s.opts.DefaultPageLimit, s.opts.MaxPageLimit)
	hits, total, err := s.deps.Search.Search(ctx, query, p)
	if err != nil {
		var std *stderrors.StandardError
		if errors.As(err, &std) {
			return nil, models.Pagination{}, std
		}
		return nil, models.Pagination{}, stderrors.NewSearchQueryFailedError("search applications", err)
	}
	return hits, models.NewPagination(p.Page, p.Limit, total, len(hits)), nil
}

func optionalID(param, raw string) (string, error) {
	id := models.NormalizeID(raw)
	if id == "" {
		return "", nil
	}
	if !models.IsID(id) {
		return "", stderrors.NewInvalidIDError(param, raw)
	}
	return id, nil
}

// dateLayouts are accepted for dateFrom/dateTo.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

func parseDate(param, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, stderrors.NewValidationError("Invalid date",
		stderrors.FieldError{Field: param, Message: param + " must be a date"})
}

func dateRange(fromRaw, toRaw string) (from, to *time.Time, err error) {
	if from, err = parseDate("dateFrom", fromRaw); err != nil {
		return nil, nil, err
	}
	if to, err = parseDate("dateTo", toRaw); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
