// Package forms manages applicant-facing form definitions.
package forms

import (
	"context"
	"errors"
	"strings"
	"time"

	stderrors "admissions-forms/internal/common/errors"
	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/common/validation"
	"admissions-forms/internal/models"
)

var (
	ErrNotFound        = errors.New("FORM_NOT_FOUND")
	ErrSlugTaken       = errors.New("SLUG_TAKEN")
	ErrNameTaken       = errors.New("DUPLICATE_FORM_NAME")
	ErrUnknownLanguage = errors.New("UNKNOWN_LANGUAGE")
	ErrHasSubmissions  = errors.New("FORM_HAS_SUBMISSIONS")
)

// Options tunes slug allocation and paging.
type Options struct {
	SlugMaxAttempts  int
	DefaultPageLimit int
	MaxPageLimit     int
}

func (o Options) withDefaults() Options {
	if o.SlugMaxAttempts <= 0 {
		o.SlugMaxAttempts = 100
	}
	if o.DefaultPageLimit <= 0 {
		o.DefaultPageLimit = 10
	}
	if o.MaxPageLimit <= 0 {
		o.MaxPageLimit = 100
	}
	return o
}

type Service struct {
	repo   Repository
	cache  Cache
	opts   Options
	logger logger.Logger
	now    func() time.Time
}

// NewService wires the form service. cache may be nil.
func NewService(repo Repository, cache Cache, opts Options, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		opts:   opts.withDefaults(),
		logger: logger.ForComponent(log, "forms"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create validates in and stores a new form owned by actorID.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (*models.FormDefinition, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return nil, stderrors.NewValidationError("Form name is required",
			stderrors.FieldError{Field: "name", Message: "name is a required field"})
	}
	if err := validation.Var("name", in.Name, "min=3,max=100"); err != nil {
		return nil, err
	}
	if err := validation.Var("description", in.Description, "max=500"); err != nil {
		return nil, err
	}
	fields, err := normalizeFields(in.Fields)
	if err != nil {
		return nil, err
	}
	category, err := normalizeCategory(in.Category)
	if err != nil {
		return nil, err
	}
	language, err := normalizeLanguage(in.Language)
	if err != nil {
		return nil, err
	}

	settings := defaultSettings()
	if err := applySettings(&settings, in.Settings); err != nil {
		return nil, err
	}
	notifications := models.DefaultEmailNotifications(in.Name)
	if err := applyEmailNotifications(&notifications, in.EmailNotifications); err != nil {
		return nil, err
	}

	now := s.now()
	f := &models.FormDefinition{
		ID:                 models.NewID(),
		Name:               in.Name,
		Description:        in.Description,
		Fields:             fields,
		Category:           category,
		Language:           language,
		Settings:           settings,
		EmailNotifications: notifications,
		IsActive:           true,
		CreatedBy:          userRef(actorID),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.IsActive != nil {
		f.IsActive = *in.IsActive
	}

	if err := s.insertWithSlug(ctx, f); err != nil {
		return nil, err
	}

	s.logger.Info("form created", map[string]interface{}{
		"formId":  f.ID,
		"slug":    f.Slug,
		"fields":  len(f.Fields),
		"actorId": actorID,
	})
	return s.reload(ctx, f), nil
}

// insertWithSlug relies on the unique slug index: on conflict the next
// candidate is tried until the attempt budget runs out.
func (s *Service) insertWithSlug(ctx context.Context, f *models.FormDefinition) error {
	base := Slugify(f.Name)
	for attempt := 0; attempt < s.opts.SlugMaxAttempts; attempt++ {
		f.Slug = SlugCandidate(base, attempt)
		err := s.repo.Insert(ctx, f)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSlugTaken) {
			s.logger.Debug("slug taken, retrying", map[string]interface{}{"slug": f.Slug, "attempt": attempt})
			continue
		}
		return s.writeError("insert form", f.Name, err)
	}
	return stderrors.NewSlugExhaustedError(base, s.opts.SlugMaxAttempts)
}

func (s *Service) writeError(op, name string, err error) error {
	switch {
	case errors.Is(err, ErrNameTaken):
		return stderrors.NewDuplicateFormNameError(name)
	case errors.Is(err, ErrUnknownLanguage):
		return stderrors.NewValidationError("Language not found",
			stderrors.FieldError{Field: "language", Message: "language does not exist"})
	case errors.Is(err, ErrNotFound):
		return stderrors.NewFormNotFoundError(name)
	default:
		return stderrors.NewQueryExecutionFailedError(op, err)
	}
}

// reload fetches f again so display references are populated.
func (s *Service) reload(ctx context.Context, f *models.FormDefinition) *models.FormDefinition {
	fresh, err := s.repo.FindByID(ctx, f.ID)
	if err != nil {
		s.logger.Warn("reload after write failed", map[string]interface{}{"formId": f.ID, "error": err})
		f.Decorate()
		return f
	}
	return fresh
}

// List returns one page of forms matching q.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*models.FormDefinition, models.Pagination, error) {
	filter := ListFilter{
		Category: models.FormCategory(strings.TrimSpace(q.Category)),
		Search:   strings.TrimSpace(q.Search),
	}
	switch q.IsActive {
	case "true":
		filter.IsActive = boolPtr(true)
	case "false":
		filter.IsActive = boolPtr(false)
	}
	switch lang := models.NormalizeID(q.Language); {
	case lang == "":
	case lang == "general" || lang == "null":
		filter.GeneralOnly = true
	case models.IsID(lang):
		filter.LanguageID = lang
	default:
		return nil, models.Pagination{}, stderrors.NewInvalidIDError("language ID", q.Language)
	}

	page := models.NewPage(q.Page, q.Limit, q.SortBy, q.SortOrder, s.opts.DefaultPageLimit, s.opts.MaxPageLimit)
	items, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, models.Pagination{}, stderrors.NewQueryExecutionFailedError("list forms", err)
	}
	return items, models.NewPagination(page.Page, page.Limit, total, len(items)), nil
}

// Get resolves identifier as an id first and as a slug second.
func (s *Service) Get(ctx context.Context, identifier string) (*models.FormDefinition, error) {
	identifier = strings.TrimSpace(identifier)
	if models.IsID(identifier) {
		f, err := s.repo.FindByID(ctx, models.NormalizeID(identifier))
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, stderrors.NewQueryExecutionFailedError("get form", err)
		}
	}
	f, err := s.repo.FindBySlug(ctx, strings.ToLower(identifier))
	if errors.Is(err, ErrNotFound) {
		return nil, stderrors.NewFormNotFoundError(identifier)
	}
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("get form", err)
	}
	return f, nil
}

// GetPublic returns the applicant view of an active form. Forms past their
// deadline are rejected.
func (s *Service) GetPublic(ctx context.Context, slug string) (*models.PublicForm, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	f := s.cached(ctx, slug)
	if f == nil {
		var err error
		f, err = s.repo.FindBySlug(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			return nil, stderrors.NewFormInactiveError(slug)
		}
		if err != nil {
			return nil, stderrors.NewQueryExecutionFailedError("get public form", err)
		}
		s.store(ctx, f)
	}
	if !f.IsActive {
		return nil, stderrors.NewFormInactiveError(slug)
	}
	if f.DeadlinePassed(s.now()) {
		return nil, stderrors.NewDeadlinePassedError(*f.Settings.SubmissionDeadline)
	}
	return f.Public(), nil
}

// Update merges in over the stored form. The slug never changes.
func (s *Service) Update(ctx context.Context, id, actorID string, in UpdateInput) (*models.FormDefinition, error) {
	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, stderrors.NewValidationError("Form name cannot be empty",
				stderrors.FieldError{Field: "name", Message: "name must not be blank"})
		}
		if err := validation.Var("name", name, "min=3,max=100"); err != nil {
			return nil, err
		}
		f.Name = name
	}
	if in.Description != nil {
		f.Description = strings.TrimSpace(*in.Description)
		if err := validation.Var("description", f.Description, "max=500"); err != nil {
			return nil, err
		}
	}
	if in.Fields != nil {
		fields, err := normalizeFields(*in.Fields)
		if err != nil {
			return nil, err
		}
		f.Fields = fields
	}
	if in.Category != nil {
		category, err := normalizeCategory(*in.Category)
		if err != nil {
			return nil, err
		}
		f.Category = category
	}
	if in.Language.Set {
		language, err := normalizeLanguage(&in.Language.Value)
		if err != nil {
			return nil, err
		}
		f.Language = language
	}
	if err := applySettings(&f.Settings, in.Settings); err != nil {
		return nil, err
	}
	if err := applyEmailNotifications(&f.EmailNotifications, in.EmailNotifications); err != nil {
		return nil, err
	}
	if in.IsActive != nil {
		f.IsActive = *in.IsActive
	}
	f.UpdatedBy = userRef(actorID)
	f.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, f); err != nil {
		return nil, s.writeError("update form", f.Name, err)
	}
	s.invalidate(ctx, f.Slug)

	s.logger.Info("form updated", map[string]interface{}{"formId": f.ID, "actorId": actorID})
	return s.reload(ctx, f), nil
}

// Delete deactivates a form, or removes it when permanent is set and no
// submission references it. The deactivated form is returned; a permanent
// delete returns nil.
func (s *Service) Delete(ctx context.Context, id, actorID string, permanent bool) (*models.FormDefinition, error) {
	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !permanent {
		if err := s.repo.SetActive(ctx, f.ID, false, actorID, s.now()); err != nil {
			return nil, s.writeError("deactivate form", f.ID, err)
		}
		s.invalidate(ctx, f.Slug)
		s.logger.Info("form deactivated", map[string]interface{}{"formId": f.ID, "actorId": actorID})
		return s.reload(ctx, f), nil
	}

	count, err := s.repo.CountSubmissions(ctx, f.ID)
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("count submissions", err)
	}
	if count > 0 {
		return nil, stderrors.NewFormHasSubmissionsError(count)
	}
	if err := s.repo.Delete(ctx, f.ID); err != nil {
		if errors.Is(err, ErrHasSubmissions) {
			// A submission arrived between the count and the delete.
			count, _ = s.repo.CountSubmissions(ctx, f.ID)
			return nil, stderrors.NewFormHasSubmissionsError(count)
		}
		return nil, s.writeError("delete form", f.ID, err)
	}
	s.invalidate(ctx, f.Slug)
	s.logger.Info("form permanently deleted", map[string]interface{}{"formId": f.ID, "actorId": actorID})
	return nil, nil
}

// Duplicate copies a form under a new name, slug and owner with a zero
// submission counter.
func (s *Service) Duplicate(ctx context.Context, id, actorID string, in DuplicateInput) (*models.FormDefinition, error) {
	src, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = src.Name + " (Copy)"
	}
	if err := validation.Var("name", name, "min=3,max=100"); err != nil {
		return nil, err
	}

	now := s.now()
	cp := *src
	cp.ID = models.NewID()
	cp.Name = name
	cp.Fields = append([]models.FieldSpec(nil), src.Fields...)
	cp.EmailNotifications.AdminEmails = append([]string{}, src.EmailNotifications.AdminEmails...)
	cp.Submissions = 0
	cp.CreatedBy = userRef(actorID)
	cp.UpdatedBy = nil
	cp.CreatedAt = now
	cp.UpdatedAt = now

	if err := s.insertWithSlug(ctx, &cp); err != nil {
		return nil, err
	}
	s.logger.Info("form duplicated", map[string]interface{}{"sourceId": src.ID, "formId": cp.ID, "slug": cp.Slug})
	return s.reload(ctx, &cp), nil
}

// Languages lists the active language catalog sorted by name.
func (s *Service) Languages(ctx context.Context) ([]models.Language, error) {
	langs, err := s.repo.Languages(ctx)
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("list languages", err)
	}
	return langs, nil
}

// ByLanguage lists every form targeting languageID, newest first.
func (s *Service) ByLanguage(ctx context.Context, languageID string, activeOnly bool) ([]*models.FormDefinition, error) {
	languageID = models.NormalizeID(languageID)
	if !models.IsID(languageID) {
		return nil, stderrors.NewInvalidIDError("language ID", languageID)
	}
	return s.all(ctx, ListFilter{LanguageID: languageID}, activeOnly)
}

// General lists every form without a language, newest first.
func (s *Service) General(ctx context.Context, activeOnly bool) ([]*models.FormDefinition, error) {
	return s.all(ctx, ListFilter{GeneralOnly: true}, activeOnly)
}

func (s *Service) all(ctx context.Context, filter ListFilter, activeOnly bool) ([]*models.FormDefinition, error) {
	if activeOnly {
		filter.IsActive = boolPtr(true)
	}
	items, _, err := s.repo.List(ctx, filter, models.Page{Page: 1, SortBy: "createdAt", SortOrder: "desc"})
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("list forms", err)
	}
	return items, nil
}

// load validates id and fetches the form.
func (s *Service) load(ctx context.Context, id string) (*models.FormDefinition, error) {
	id = models.NormalizeID(id)
	if !models.IsID(id) {
		return nil, stderrors.NewInvalidIDError("form ID", id)
	}
	f, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, stderrors.NewFormNotFoundError(id)
	}
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("get form", err)
	}
	return f, nil
}

// Invalidate drops any cached public view of slug. Submission intake calls
// it after the counter moves.
func (s *Service) Invalidate(ctx context.Context, slug string) {
	s.invalidate(ctx, slug)
}

func (s *Service) cached(ctx context.Context, slug string) *models.FormDefinition {
	if s.cache == nil {
		return nil
	}
	f, err := s.cache.Get(ctx, slug)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("form cache read failed", map[string]interface{}{"slug": slug, "error": err})
		}
		return nil
	}
	return f
}

func (s *Service) store(ctx context.Context, f *models.FormDefinition) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, f); err != nil {
		s.logger.Warn("form cache write failed", map[string]interface{}{"slug": f.Slug, "error": err})
	}
}

func (s *Service) invalidate(ctx context.Context, slug string) {
	if s.cache == nil || slug == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, slug); err != nil {
		s.logger.Warn("form cache invalidation failed", map[string]interface{}{"slug": slug, "error": err})
	}
}

func userRef(id string) *models.UserRef {
	if id == "" {
		return nil
	}
	return &models.UserRef{ID: id}
}

func boolPtr(b bool) *bool { return &b }
