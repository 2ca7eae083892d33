package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admissions-forms/internal/models"
)

// NullableInt distinguishes an absent key from an explicit null or "".
type NullableInt struct {
	Set   bool
	Value *int
}

func (n *NullableInt) UnmarshalJSON(data []byte) error {
	n.Set = true
	data = bytes.TrimSpace(data)
	if string(data) == "null" || string(data) == `""` {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("expected a number, got %q", s)
		}
		n.Value = &v
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// NullableTime accepts null, "" or an RFC 3339 / YYYY-MM-DD string.
type NullableTime struct {
	Set   bool
	Value *time.Time
}

func (n *NullableTime) UnmarshalJSON(data []byte) error {
	n.Set = true
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		n.Value = nil
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(*s)); err == nil {
			t = t.UTC()
			n.Value = &t
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", *s)
}

// OptionalString distinguishes an absent key from null.
type OptionalString struct {
	Set   bool
	Value string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != nil {
		o.Value = *s
	}
	return nil
}

type ValidationInput struct {
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	MinLength *int     `json:"minLength"`
	MaxLength *int     `json:"maxLength"`
	Pattern   *string  `json:"pattern"`
}

type FieldInput struct {
	Name        string               `json:"name" validate:"max=50"`
	Label       string               `json:"label" validate:"max=100"`
	Type        models.FieldType     `json:"type"`
	Required    bool                 `json:"required"`
	Options     []models.FieldOption `json:"options"`
	Placeholder string               `json:"placeholder" validate:"max=200"`
	HelpText    string               `json:"helpText" validate:"max=500"`
	Validation  *ValidationInput     `json:"validation"`
	Order       *int                 `json:"order"`
}

type SettingsInput struct {
	AllowMultipleSubmissions *bool        `json:"allowMultipleSubmissions"`
	MaxSubmissions           *int         `json:"maxSubmissions" validate:"omitempty,min=1"`
	MaxCapacity              NullableInt  `json:"maxCapacity"`
	SubmissionDeadline       NullableTime `json:"submissionDeadline"`
	RequiresApproval         *bool        `json:"requiresApproval"`
}

type EmailNotificationsInput struct {
	Enabled           *bool                 `json:"enabled"`
	AdminEmails       []string              `json:"adminEmails" validate:"omitempty,dive,email"`
	AutoReplyTemplate *models.EmailTemplate `json:"autoReplyTemplate"`
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Name               string                   `json:"name"`
	Description        string                   `json:"description"`
	Fields             []FieldInput             `json:"fields"`
	Category           models.FormCategory      `json:"category"`
	Language           *string                  `json:"language"`
	Settings           *SettingsInput           `json:"settings"`
	EmailNotifications *EmailNotificationsInput `json:"emailNotifications"`
	IsActive           *bool                    `json:"isActive"`
}

// UpdateInput is a partial update; absent keys leave the stored value alone.
type UpdateInput struct {
	Name               *string                  `json:"name"`
	Description        *string                  `json:"description"`
	Fields             *[]FieldInput            `json:"fields"`
	Category           *models.FormCategory     `json:"category"`
	Language           OptionalString           `json:"language"`
	Settings           *SettingsInput           `json:"settings"`
	EmailNotifications *EmailNotificationsInput `json:"emailNotifications"`
	IsActive           *bool                    `json:"isActive"`
}

// DuplicateInput optionally names the copy.
type DuplicateInput struct {
	Name string `json:"name"`
}

// ListQuery carries the raw list filters from a request.
type ListQuery struct {
	Category  string
	IsActive  string
	Language  string
	Search    string
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}
