package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	stderrors "admissions-forms/internal/common/errors"
)

const internalMessage = "Internal server error"

// envelope is the body of every response.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code     stderrors.ErrorCode    `json:"code"`
	Details  string                 `json:"details,omitempty"`
	Fields   []stderrors.FieldError `json:"fields,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) ok(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func (h *Handler) created(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: message, Data: data})
}

// fail writes err as an error envelope. Internal failures are logged and, in
// production, reported with a generic message and no details.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	std := stderrors.AsStandard(err)
	status := std.HTTPStatus()

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", map[string]interface{}{
			"method":    r.Method,
			"path":      r.URL.Path,
			"code":      string(std.Code),
			"error":     std.Error(),
			"requestId": requestIDFrom(r.Context()),
		})
	}

	body := envelope{
		Message: std.Message,
		Error: &errorBody{
			Code:     std.Code,
			Details:  std.Details,
			Fields:   std.Fields,
			Metadata: std.Metadata,
		},
	}
	if status == http.StatusInternalServerError && h.opts.Production {
		body.Message = internalMessage
		body.Error = &errorBody{Code: std.Code}
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
// strict rejects keys dst does not declare.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, strict bool) error {
	if h.opts.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	}
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return stderrors.NewValidationError("Request body too large")
		}
		return stderrors.NewValidationError(fmt.Sprintf("Invalid request body: %v", err))
	}
	return nil
}
