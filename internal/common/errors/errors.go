// Package errors provides the standardized error model shared by the HTTP API
// and the workflow job workers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidID        ErrorCode = "INVALID_ID"

	ErrCodeFormNotFound       ErrorCode = "FORM_NOT_FOUND"
	ErrCodeFormInactive       ErrorCode = "FORM_INACTIVE"
	ErrCodeSubmissionNotFound ErrorCode = "SUBMISSION_NOT_FOUND"

	ErrCodeDuplicateFormName   ErrorCode = "DUPLICATE_FORM_NAME"
	ErrCodeSlugExhausted       ErrorCode = "SLUG_EXHAUSTED"
	ErrCodeDeadlinePassed      ErrorCode = "DEADLINE_PASSED"
	ErrCodeCapacityReached     ErrorCode = "CAPACITY_REACHED"
	ErrCodeDuplicateSubmission ErrorCode = "DUPLICATE_SUBMISSION"
	ErrCodeFormHasSubmissions  ErrorCode = "FORM_HAS_SUBMISSIONS"

	ErrCodeAuthentication   ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodeSearchQueryFailed ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeIndexNotFound     ErrorCode = "INDEX_NOT_FOUND"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeExternalService        ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                ErrorCode = "TIMEOUT_ERROR"
	ErrCodeResourceNotFound       ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeBusinessRule           ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Fields    []FieldError           `json:"fields,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata returns e with an extra metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// HTTPStatus returns the HTTP status for the error code.
func (e *StandardError) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error thrown to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(message string, fields ...FieldError) *StandardError {
	e := newError(ErrCodeValidationFailed, message, "", false)
	e.Fields = fields
	return e
}

// NewInvalidIDError reports an identifier that is not 24 hex characters.
func NewInvalidIDError(param, value string) *StandardError {
	return newError(ErrCodeInvalidID, fmt.Sprintf("Invalid %s", param), fmt.Sprintf("%s: %s", param, value), false)
}

func NewFormNotFoundError(identifier string) *StandardError {
	return newError(ErrCodeFormNotFound, "Form not found", fmt.Sprintf("identifier: %s", identifier), false)
}

func NewFormInactiveError(formID string) *StandardError {
	return newError(ErrCodeFormInactive, "Form not found or inactive", fmt.Sprintf("formId: %s", formID), false)
}

func NewSubmissionNotFoundError(id string) *StandardError {
	return newError(ErrCodeSubmissionNotFound, "Application not found", fmt.Sprintf("applicationId: %s", id), false)
}

func NewDuplicateFormNameError(name string) *StandardError {
	return newError(ErrCodeDuplicateFormName, "A form with this name already exists", fmt.Sprintf("name: %s", name), false)
}

func NewSlugExhaustedError(base string, attempts int) *StandardError {
	return newError(ErrCodeSlugExhausted, "Could not allocate a unique slug", fmt.Sprintf("base: %s, attempts: %d", base, attempts), true)
}

func NewDeadlinePassedError(deadline time.Time) *StandardError {
	return newError(ErrCodeDeadlinePassed, "Submission deadline has passed", fmt.Sprintf("deadline: %s", deadline.UTC().Format(time.RFC3339)), false)
}

func NewCapacityReachedError(capacity int) *StandardError {
	return newError(ErrCodeCapacityReached, "Form has reached maximum capacity", fmt.Sprintf("maxCapacity: %d", capacity), false).
		WithMetadata("maxCapacity", capacity)
}

func NewDuplicateSubmissionError(email string) *StandardError {
	return newError(ErrCodeDuplicateSubmission, "You have already submitted an application for this form", fmt.Sprintf("email: %s", email), false)
}

// NewFormHasSubmissionsError carries the number of referencing submissions.
func NewFormHasSubmissionsError(count int) *StandardError {
	return newError(ErrCodeFormHasSubmissions,
		fmt.Sprintf("Cannot permanently delete form. It has %d associated applications.", count), "", false).
		WithMetadata("applicationCount", count)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthentication, "Authentication failed", details, false)
}

func NewPermissionDeniedError(details string) *StandardError {
	return newError(ErrCodePermissionDenied, "Forbidden: staff access only", details, false)
}

func NewRateLimitedError(retryAfter time.Duration) *StandardError {
	return newError(ErrCodeRateLimited, "Too many requests. Please try again later.", "", true).
		WithMetadata("retryAfterSeconds", int(retryAfter.Seconds()))
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true)
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert operation failed", err.Error(), true)
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Elasticsearch query error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
}

// NewIndexNotFoundError creates a non-retryable index not found error.
func NewIndexNotFoundError(indexName string) *StandardError {
	return newError(ErrCodeIndexNotFound, "Elasticsearch index not found", fmt.Sprintf("indexName: %s", indexName), false)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true)
}

func NewBusinessRuleError(message, details string) *StandardError {
	return newError(ErrCodeBusinessRule, message, details, false)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err.Error(), true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeResourceNotFound, fmt.Sprintf("Resource not found in %s", service), details, false)
}

func NewInternalError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return newError(ErrCodeInternal, "Internal server error", details, false)
}

// ==========================
// 4. Mapping
// ==========================

// HTTPStatus maps an error code to the HTTP status returned by the API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidID,
		ErrCodeDeadlinePassed, ErrCodeCapacityReached, ErrCodeDuplicateSubmission,
		ErrCodeFormHasSubmissions:
		return http.StatusBadRequest
	case ErrCodeFormNotFound, ErrCodeFormInactive, ErrCodeSubmissionNotFound,
		ErrCodeResourceNotFound, ErrCodeIndexNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicateFormName, ErrCodeBusinessRule:
		return http.StatusConflict
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeSlugExhausted:
		return http.StatusConflict
	case ErrCodeExternalService, ErrCodeSearchQueryFailed:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// AsStandard extracts a *StandardError from err, or wraps err as an internal error.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// BPMNErrorMapping maps internal error codes to BPMN error codes where they differ.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeSubmissionNotFound: "APPLICATION_NOT_FOUND",
	ErrCodeValidationFailed:   "INVALID_STATUS_CHANGE",
}

// GetRetryCount returns the recommended retry count for a workflow job.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeExternalService:
		return 3
	case ErrCodeTimeout:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "AUTH") || strings.Contains(codeStr, "PERMISSION"):
		return "AUTH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "DEADLINE") || strings.Contains(codeStr, "CAPACITY") ||
		strings.Contains(codeStr, "DUPLICATE") || strings.Contains(codeStr, "HAS_SUBMISSIONS"):
		return "CONFLICT"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
