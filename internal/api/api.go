// Package api exposes the forms and submissions services over HTTP.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"admissions-forms/internal/common/auth"
	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/common/observability"
	"admissions-forms/internal/forms"
	"admissions-forms/internal/models"
	"admissions-forms/internal/submissions"

	"github.com/go-chi/chi/v5"
)

// FormService is the part of forms.Service the handlers use.
type FormService interface {
	Create(ctx context.Context, actorID string, in forms.CreateInput) (*models.FormDefinition, error)
	List(ctx context.Context, q forms.ListQuery) ([]*models.FormDefinition, models.Pagination, error)
	Get(ctx context.Context, identifier string) (*models.FormDefinition, error)
	GetPublic(ctx context.Context, slug string) (*models.PublicForm, error)
	Update(ctx context.Context, id, actorID string, in forms.UpdateInput) (*models.FormDefinition, error)
	Delete(ctx context.Context, id, actorID string, permanent bool) (*models.FormDefinition, error)
	Duplicate(ctx context.Context, id, actorID string, in forms.DuplicateInput) (*models.FormDefinition, error)
	Languages(ctx context.Context) ([]models.Language, error)
	ByLanguage(ctx context.Context, languageID string, activeOnly bool) ([]*models.FormDefinition, error)
	General(ctx context.Context, activeOnly bool) ([]*models.FormDefinition, error)
}

// SubmissionService is the part of submissions.Service the handlers use.
type SubmissionService interface {
	Submit(ctx context.Context, formID string, payload map[string]interface{}, meta submissions.RequestMeta) (*submissions.Receipt, error)
	PublicStatus(ctx context.Context, email, formID string) (*submissions.PublicStatus, error)
	List(ctx context.Context, q submissions.ListQuery) ([]*models.Submission, models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Submission, error)
	UpdateStatus(ctx context.Context, id string, actor submissions.Actor, in submissions.StatusInput) (*models.Submission, error)
	Assign(ctx context.Context, id string, actor submissions.Actor, in submissions.AssignInput) (*models.Submission, error)
	AddNote(ctx context.Context, id string, actor submissions.Actor, in submissions.NoteInput) ([]models.ReviewNote, error)
	SendCustomEmail(ctx context.Context, id string, actor submissions.Actor, in submissions.EmailInput) (*submissions.EmailResult, error)
	Stats(ctx context.Context, q submissions.StatsQuery) (*submissions.Stats, error)
	ToggleArchive(ctx context.Context, id string, actor submissions.Actor, in submissions.ArchiveInput) (*models.Submission, error)
	Bulk(ctx context.Context, actor submissions.Actor, in submissions.BulkInput) (*submissions.BulkResult, error)
	Search(ctx context.Context, query string, page, limit int) ([]submissions.SearchHit, models.Pagination, error)
}

// Options tune the router.
type Options struct {
	// AllowedOrigins lists browser origins granted CORS access. "*" allows any
	// origin without credentials.
	AllowedOrigins []string
	// TrustedProxies lists proxy addresses or CIDR ranges whose forwarding
	// headers are believed. Empty means the peer address is always used.
	TrustedProxies []string
	Production     bool
	MaxBodyBytes   int64
	StaffRoles     []string
	Tracer         *observability.Tracer
	Operations     *observability.Observability
	Limiter        *RateLimiter
}

// Handler serves the forms API.
type Handler struct {
	forms       FormService
	submissions SubmissionService
	verifier    auth.TokenVerifier
	logger      logger.Logger
	opts        Options
	proxies     []*net.IPNet
	now         func() time.Time
}

func NewHandler(fs FormService, ss SubmissionService, verifier auth.TokenVerifier, log logger.Logger, opts Options) *Handler {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	h := &Handler{
		forms:       fs,
		submissions: ss,
		verifier:    verifier,
		logger:      logger.ForComponent(log, "api"),
		opts:        opts,
		now:         time.Now,
	}
	var invalid []string
	h.proxies, invalid = parseProxies(opts.TrustedProxies)
	if len(invalid) > 0 {
		h.logger.Warn("ignoring invalid trusted proxies", map[string]interface{}{"entries": invalid})
	}
	return h
}

// Routes mounts the API under /api/forms. Static segments are registered
// before the /{id} wildcard so chi prefers them.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestID)
	r.Use(h.cors)
	r.Use(h.recoverer)
	r.Use(h.accessLog)
	r.Use(h.tracing)
	r.Use(h.metrics)

	r.Route("/api/forms", func(r chi.Router) {
		// Public
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Get("/public/{slug}", h.getPublicForm)
			r.Get("/public/applications/status/{email}/{formId}", h.publicStatus)
			r.Post("/{id}/submit", h.submit)
		})

		// Staff
		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Post("/create", h.createForm)
			r.Get("/", h.listForms)
			r.Get("/languages", h.languages)
			r.Get("/by-language/{languageId}", h.formsByLanguage)
			r.Get("/general", h.generalForms)

			r.Route("/applications", func(r chi.Router) {
				r.Get("/", h.listSubmissions)
				r.Get("/stats", h.stats)
				r.Get("/search", h.searchSubmissions)
				r.Post("/bulk", h.bulk)
				r.Get("/{id}", h.getSubmission)
				r.Put("/{id}/status", h.updateStatus)
				r.Put("/{id}/assign", h.assign)
				r.Post("/{id}/notes", h.addNote)
				r.Post("/{id}/send-email", h.sendEmail)
				r.Put("/{id}/archive", h.archive)
			})

			r.Get("/{id}", h.getForm)
			r.Put("/{id}", h.updateForm)
			r.Delete("/{id}", h.deleteForm)
			r.Post("/{id}/duplicate", h.duplicateForm)
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "Route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "Method not allowed"})
	})
	return r
}
