package api

import (
	"net/http"
	"strconv"
	"strings"

	"admissions-forms/internal/common/auth"
	"admissions-forms/internal/forms"

	"github.com/go-chi/chi/v5"
)

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return 0
	}
	return n
}

// activeOnly defaults to true; only an explicit "false" widens the result.
func activeOnly(r *http.Request) bool {
	return r.URL.Query().Get("activeOnly") != "false"
}

func staff(r *http.Request) *auth.Actor {
	if a, ok := auth.ActorFrom(r.Context()); ok {
		return a
	}
	return &auth.Actor{}
}

func (h *Handler) createForm(w http.ResponseWriter, r *http.Request) {
	var in forms.CreateInput
	if err := h.decode(w, r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	form, err := h.forms.Create(r.Context(), staff(r).ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, "Form created successfully", map[string]interface{}{"form": form})
}

func (h *Handler) listForms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, page, err := h.forms.List(r.Context(), forms.ListQuery{
		Category:  q.Get("category"),
		IsActive:  q.Get("isActive"),
		Language:  q.Get("language"),
		Search:    q.Get("search"),
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Forms retrieved successfully", map[string]interface{}{"forms": items, "pagination": page})
}

func (h *Handler) getForm(w http.ResponseWriter, r *http.Request) {
	form, err := h.forms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Form retrieved successfully", map[string]interface{}{"form": form})
}

// updateForm rejects unknown keys, which includes any attempt to set the slug.
func (h *Handler) updateForm(w http.ResponseWriter, r *http.Request) {
	var in forms.UpdateInput
	if err := h.decode(w, r, &in, true); err != nil {
		h.fail(w, r, err)
		return
	}
	form, err := h.forms.Update(r.Context(), chi.URLParam(r, "id"), staff(r).ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Form updated successfully", map[string]interface{}{"form": form})
}

func (h *Handler) deleteForm(w http.ResponseWriter, r *http.Request) {
	permanent := r.URL.Query().Get("permanent") == "true"
	form, err := h.forms.Delete(r.Context(), chi.URLParam(r, "id"), staff(r).ID, permanent)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if form == nil {
		h.ok(w, "Form permanently deleted", nil)
		return
	}
	h.ok(w, "Form deactivated successfully", map[string]interface{}{"form": form})
}

func (h *Handler) duplicateForm(w http.ResponseWriter, r *http.Request) {
	var in forms.DuplicateInput
	if err := h.decode(w, r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	form, err := h.forms.Duplicate(r.Context(), chi.URLParam(r, "id"), staff(r).ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, "Form duplicated successfully", map[string]interface{}{"form": form})
}

func (h *Handler) getPublicForm(w http.ResponseWriter, r *http.Request) {
	form, err := h.forms.GetPublic(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Form retrieved successfully", map[string]interface{}{"form": form})
}

func (h *Handler) languages(w http.ResponseWriter, r *http.Request) {
	langs, err := h.forms.Languages(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Languages retrieved successfully", map[string]interface{}{"languages": langs})
}

func (h *Handler) formsByLanguage(w http.ResponseWriter, r *http.Request) {
	items, err := h.forms.ByLanguage(r.Context(), chi.URLParam(r, "languageId"), activeOnly(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Language-specific forms retrieved successfully", map[string]interface{}{"forms": items, "count": len(items)})
}

func (h *Handler) generalForms(w http.ResponseWriter, r *http.Request) {
	items, err := h.forms.General(r.Context(), activeOnly(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "General forms retrieved successfully", map[string]interface{}{"forms": items, "count": len(items)})
}

