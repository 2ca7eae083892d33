package api

import (
	"net/http"
	"net/url"
	"strings"

	"admissions-forms/internal/models"
	"admissions-forms/internal/submissions"

	"github.com/go-chi/chi/v5"
)

const sourceHeader = "X-Submission-Source"

func submissionActor(r *http.Request) submissions.Actor {
	a := staff(r)
	return submissions.Actor{ID: a.ID, Email: a.Email}
}

// pathParam returns a decoded path segment; chi leaves escapes in place when
// the request carried an encoded path.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := h.decode(w, r, &payload, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	receipt, err := h.submissions.Submit(r.Context(), chi.URLParam(r, "id"), payload, submissions.RequestMeta{
		Source:    h.submissionSource(r),
		IPAddress: h.clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, "Application submitted successfully", receipt)
}

// submissionSource honors X-Submission-Source only for staff callers. Anonymous
// submissions always come from the website.
func (h *Handler) submissionSource(r *http.Request) models.Source {
	source := models.Source(strings.TrimSpace(r.Header.Get(sourceHeader)))
	if source == "" || !source.Valid() {
		return models.SourceWebsite
	}
	if _, err := h.staffActor(r); err != nil {
		return models.SourceWebsite
	}
	return source
}

func (h *Handler) publicStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.submissions.PublicStatus(r.Context(), pathParam(r, "email"), pathParam(r, "formId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Application status retrieved successfully", status)
}

func (h *Handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, page, err := h.submissions.List(r.Context(), submissions.ListQuery{
		Status:     q.Get("status"),
		Priority:   q.Get("priority"),
		FormID:     q.Get("formId"),
		AssignedTo: q.Get("assignedTo"),
		Search:     q.Get("search"),
		DateFrom:   q.Get("dateFrom"),
		DateTo:     q.Get("dateTo"),
		Archived:   q.Get("isArchived"),
		Page:       queryInt(r, "page"),
		Limit:      queryInt(r, "limit"),
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Applications retrieved successfully", map[string]interface{}{"applications": items, "pagination": page})
}

func (h *Handler) getSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.submissions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Application retrieved successfully", map[string]interface{}{"application": sub})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var in submissions.StatusInput
	if err := h.decode(w, r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	sub, err := h.submissions.UpdateStatus(r.Context(), chi.URLParam(r, "id"), submissionActor(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Application status updated successfully", map[string]interface{}{"application": sub})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var in submissions.AssignInput
	if err := h.decode(w, r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	sub, err := h.submissions.Assign(r.Context(), chi.URLParam(r, "id"), submissionActor(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Application assigned successfully", map[string]interface{}{"application": sub})
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	var in submissions.NoteInput
	if err := h.decode(w, r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	notes, err := h.submissions.AddNote(r.Context(), chi.URLParam(r, "id"), submissionActor(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Note added successfully", map[string]interface{}{"notes": notes})
}

func (h *Handler) sendEmail(w http.ResponseWriter, r *http.Request) {
	var in submissions.EmailInput
	if err := h.decode(w, r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.submissions.SendCustomEmail(r.Context(), chi.URLParam(r, "id"), submissionActor(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !result.Delivered {
		h.ok(w, "Email could not be sent", result)
		return
	}
	h.ok(w, "Email sent successfully", result)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stats, err := h.submissions.Stats(r.Context(), submissions.StatsQuery{
		FormID:   q.Get("formId"),
		DateFrom: q.Get("dateFrom"),
		DateTo:   q.Get("dateTo"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Statistics retrieved successfully", stats)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	var in submissions.ArchiveInput
	if err := h.decode(w, r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	sub, err := h.submissions.ToggleArchive(r.Context(), chi.URLParam(r, "id"), submissionActor(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg := "Application archived successfully"
	if !sub.IsArchived {
		msg = "Application unarchived successfully"
	}
	h.ok(w, msg, map[string]interface{}{"application": sub})
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request) {
	var in submissions.BulkInput
	if err := h.decode(w, r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.submissions.Bulk(r.Context(), submissionActor(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Bulk "+in.Action+" completed successfully", result)
}

func (h *Handler) searchSubmissions(w http.ResponseWriter, r *http.Request) {
	hits, page, err := h.submissions.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Search results retrieved successfully", map[string]interface{}{"applications": hits, "pagination": page})
}
