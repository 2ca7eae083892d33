package api

import (
	"context"

	"admissions-forms/internal/common/auth"
	"admissions-forms/internal/forms"
	"admissions-forms/internal/models"
	"admissions-forms/internal/submissions"
)

type fakeForms struct {
	CreateFunc     func(ctx context.Context, actorID string, in forms.CreateInput) (*models.FormDefinition, error)
	ListFunc       func(ctx context.Context, q forms.ListQuery) ([]*models.FormDefinition, models.Pagination, error)
	GetFunc        func(ctx context.Context, identifier string) (*models.FormDefinition, error)
	GetPublicFunc  func(ctx context.Context, slug string) (*models.PublicForm, error)
	UpdateFunc     func(ctx context.Context, id, actorID string, in forms.UpdateInput) (*models.FormDefinition, error)
	DeleteFunc     func(ctx context.Context, id, actorID string, permanent bool) (*models.FormDefinition, error)
	DuplicateFunc  func(ctx context.Context, id, actorID string, in forms.DuplicateInput) (*models.FormDefinition, error)
	LanguagesFunc  func(ctx context.Context) ([]models.Language, error)
	ByLanguageFunc func(ctx context.Context, languageID string, activeOnly bool) ([]*models.FormDefinition, error)
	GeneralFunc    func(ctx context.Context, activeOnly bool) ([]*models.FormDefinition, error)
}

func (f *fakeForms) Create(ctx context.Context, actorID string, in forms.CreateInput) (*models.FormDefinition, error) {
	return f.CreateFunc(ctx, actorID, in)
}

func (f *fakeForms) List(ctx context.Context, q forms.ListQuery) ([]*models.FormDefinition, models.Pagination, error) {
	return f.ListFunc(ctx, q)
}

func (f *fakeForms) Get(ctx context.Context, identifier string) (*models.FormDefinition, error) {
	return f.GetFunc(ctx, identifier)
}

func (f *fakeForms) GetPublic(ctx context.Context, slug string) (*models.PublicForm, error) {
	return f.GetPublicFunc(ctx, slug)
}

func (f *fakeForms) Update(ctx context.Context, id, actorID string, in forms.UpdateInput) (*models.FormDefinition, error) {
	return f.UpdateFunc(ctx, id, actorID, in)
}

func (f *fakeForms) Delete(ctx context.Context, id, actorID string, permanent bool) (*models.FormDefinition, error) {
	return f.DeleteFunc(ctx, id, actorID, permanent)
}

func (f *fakeForms) Duplicate(ctx context.Context, id, actorID string, in forms.DuplicateInput) (*models.FormDefinition, error) {
	return f.DuplicateFunc(ctx, id, actorID, in)
}

func (f *fakeForms) Languages(ctx context.Context) ([]models.Language, error) {
	return f.LanguagesFunc(ctx)
}

func (f *fakeForms) ByLanguage(ctx context.Context, languageID string, activeOnly bool) ([]*models.FormDefinition, error) {
	return f.ByLanguageFunc(ctx, languageID, activeOnly)
}

func (f *fakeForms) General(ctx context.Context, activeOnly bool) ([]*models.FormDefinition, error) {
	return f.GeneralFunc(ctx, activeOnly)
}

type fakeSubmissions struct {
	SubmitFunc       func(ctx context.Context, formID string, payload map[string]interface{}, meta submissions.RequestMeta) (*submissions.Receipt, error)
	PublicStatusFunc func(ctx context.Context, email, formID string) (*submissions.PublicStatus, error)
	ListFunc         func(ctx context.Context, q submissions.ListQuery) ([]*models.Submission, models.Pagination, error)
	GetFunc          func(ctx context.Context, id string) (*models.Submission, error)
	UpdateStatusFunc func(ctx context.Context, id string, actor submissions.Actor, in submissions.StatusInput) (*models.Submission, error)
	AssignFunc       func(ctx context.Context, id string, actor submissions.Actor, in submissions.AssignInput) (*models.Submission, error)
	AddNoteFunc      func(ctx context.Context, id string, actor submissions.Actor, in submissions.NoteInput) ([]models.ReviewNote, error)
	SendEmailFunc    func(ctx context.Context, id string, actor submissions.Actor, in submissions.EmailInput) (*submissions.EmailResult, error)
	StatsFunc        func(ctx context.Context, q submissions.StatsQuery) (*submissions.Stats, error)
	ArchiveFunc      func(ctx context.Context, id string, actor submissions.Actor, in submissions.ArchiveInput) (*models.Submission, error)
	BulkFunc         func(ctx context.Context, actor submissions.Actor, in submissions.BulkInput) (*submissions.BulkResult, error)
	SearchFunc       func(ctx context.Context, query string, page, limit int) ([]submissions.SearchHit, models.Pagination, error)
}

func (f *fakeSubmissions) Submit(ctx context.Context, formID string, payload map[string]interface{}, meta submissions.RequestMeta) (*submissions.Receipt, error) {
	return f.SubmitFunc(ctx, formID, payload, meta)
}

func (f *fakeSubmissions) PublicStatus(ctx context.Context, email, formID string) (*submissions.PublicStatus, error) {
	return f.PublicStatusFunc(ctx, email, formID)
}

func (f *fakeSubmissions) List(ctx context.Context, q submissions.ListQuery) ([]*models.Submission, models.Pagination, error) {
	return f.ListFunc(ctx, q)
}

func (f *fakeSubmissions) Get(ctx context.Context, id string) (*models.Submission, error) {
	return f.GetFunc(ctx, id)
}

func (f *fakeSubmissions) UpdateStatus(ctx context.Context, id string, actor submissions.Actor, in submissions.StatusInput) (*models.Submission, error) {
	return f.UpdateStatusFunc(ctx, id, actor, in)
}

func (f *fakeSubmissions) Assign(ctx context.Context, id string, actor submissions.Actor, in submissions.AssignInput) (*models.Submission, error) {
	return f.AssignFunc(ctx, id, actor, in)
}

func (f *fakeSubmissions) AddNote(ctx context.Context, id string, actor submissions.Actor, in submissions.NoteInput) ([]models.ReviewNote, error) {
	return f.AddNoteFunc(ctx, id, actor, in)
}

func (f *fakeSubmissions) SendCustomEmail(ctx context.Context, id string, actor submissions.Actor, in submissions.EmailInput) (*submissions.EmailResult, error) {
	return f.SendEmailFunc(ctx, id, actor, in)
}

func (f *fakeSubmissions) Stats(ctx context.Context, q submissions.StatsQuery) (*submissions.Stats, error) {
	return f.StatsFunc(ctx, q)
}

func (f *fakeSubmissions) ToggleArchive(ctx context.Context, id string, actor submissions.Actor, in submissions.ArchiveInput) (*models.Submission, error) {
	return f.ArchiveFunc(ctx, id, actor, in)
}

func (f *fakeSubmissions) Bulk(ctx context.Context, actor submissions.Actor, in submissions.BulkInput) (*submissions.BulkResult, error) {
	return f.BulkFunc(ctx, actor, in)
}

func (f *fakeSubmissions) Search(ctx context.Context, query string, page, limit int) ([]submissions.SearchHit, models.Pagination, error) {
	return f.SearchFunc(ctx, query, page, limit)
}

// staticVerifier accepts the token "good" as actor and rejects the rest.
type staticVerifier struct {
	actor *auth.Actor
}

func (v staticVerifier) Verify(_ context.Context, token string) (*auth.Actor, error) {
	if token != "good" {
		return nil, auth.ErrInvalidToken
	}
	return v.actor, nil
}
