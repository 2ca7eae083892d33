package models

import (
	"time"
)

// FieldType is the input kind rendered for a form field.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldEmail       FieldType = "email"
	FieldTel         FieldType = "tel"
	FieldNumber      FieldType = "number"
	FieldTextarea    FieldType = "textarea"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"
	FieldCheckbox    FieldType = "checkbox"
	FieldRadio       FieldType = "radio"
	FieldDate        FieldType = "date"
	FieldFile        FieldType = "file"
	FieldURL         FieldType = "url"
	FieldPassword    FieldType = "password"
	FieldColor       FieldType = "color"
	FieldRange       FieldType = "range"
	FieldTime        FieldType = "time"
)

var fieldTypes = map[FieldType]bool{
	FieldText: true, FieldEmail: true, FieldTel: true, FieldNumber: true,
	FieldTextarea: true, FieldSelect: true, FieldMultiselect: true, FieldCheckbox: true,
	FieldRadio: true, FieldDate: true, FieldFile: true, FieldURL: true,
	FieldPassword: true, FieldColor: true, FieldRange: true, FieldTime: true,
}

func (t FieldType) Valid() bool { return fieldTypes[t] }

// FormCategory groups forms in the admin panel.
type FormCategory string

const (
	CategoryLanguageCourse  FormCategory = "language-course"
	CategoryTestPreparation FormCategory = "test-preparation"
	CategoryConsultation    FormCategory = "consultation"
	CategoryGeneral         FormCategory = "general"
)

func (c FormCategory) Valid() bool {
	switch c {
	case CategoryLanguageCourse, CategoryTestPreparation, CategoryConsultation, CategoryGeneral:
		return true
	}
	return false
}

type FieldOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FieldValidation holds optional constraints. Unset keys are omitted from
// storage and output.
type FieldValidation struct {
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

// IsEmpty reports whether no constraint is set.
func (v *FieldValidation) IsEmpty() bool {
	return v == nil || (v.Min == nil && v.Max == nil && v.MinLength == nil && v.MaxLength == nil && v.Pattern == "")
}

type FieldSpec struct {
	Name        string           `json:"name"`
	Label       string           `json:"label"`
	Type        FieldType        `json:"type"`
	Required    bool             `json:"required"`
	Options     []FieldOption    `json:"options"`
	Placeholder string           `json:"placeholder"`
	HelpText    string           `json:"helpText"`
	Validation  *FieldValidation `json:"validation,omitempty"`
	Order       int              `json:"order"`
}

type FormSettings struct {
	AllowMultipleSubmissions bool       `json:"allowMultipleSubmissions"`
	MaxSubmissions           int        `json:"maxSubmissions"`
	MaxCapacity              *int       `json:"maxCapacity"`
	SubmissionDeadline       *time.Time `json:"submissionDeadline"`
	RequiresApproval         bool       `json:"requiresApproval"`
}

type EmailTemplate struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type EmailNotifications struct {
	Enabled           bool          `json:"enabled"`
	AdminEmails       []string      `json:"adminEmails"`
	AutoReplyTemplate EmailTemplate `json:"autoReplyTemplate"`
}

// DefaultEmailNotifications is used when a form is created without an
// emailNotifications block.
func DefaultEmailNotifications(formName string) EmailNotifications {
	return EmailNotifications{
		Enabled:     true,
		AdminEmails: []string{},
		AutoReplyTemplate: EmailTemplate{
			Subject: "Thank you for your application to " + formName,
			Message: "We have received your application and will review it shortly.",
		},
	}
}

// LanguageRef is the display projection of a catalog language.
type LanguageRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Code string `json:"code,omitempty"`
	Flag string `json:"flag,omitempty"`
}

// UserRef is the display projection of a staff user.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// FormDefinition is an applicant-facing intake form.
type FormDefinition struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Slug               string             `json:"slug"`
	Description        string             `json:"description"`
	Fields             []FieldSpec        `json:"fields"`
	Category           FormCategory       `json:"category"`
	Language           *LanguageRef       `json:"language"`
	Settings           FormSettings       `json:"settings"`
	EmailNotifications EmailNotifications `json:"emailNotifications"`
	IsActive           bool               `json:"isActive"`
	Submissions        int                `json:"submissions"`
	CreatedBy          *UserRef           `json:"createdBy"`
	UpdatedBy          *UserRef           `json:"updatedBy"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
	IsLanguageSpecific bool               `json:"isLanguageSpecific"`
	FormType           string             `json:"formType"`
}

// LanguageID returns the referenced language id, or "" for general forms.
func (f *FormDefinition) LanguageID() string {
	if f.Language == nil {
		return ""
	}
	return f.Language.ID
}

// Decorate fills the derived display fields.
func (f *FormDefinition) Decorate() {
	f.IsLanguageSpecific = f.Language != nil
	if f.IsLanguageSpecific {
		f.FormType = "Language-Specific"
	} else {
		f.FormType = "General"
	}
}

// DeadlinePassed reports whether now is after the submission deadline.
func (f *FormDefinition) DeadlinePassed(now time.Time) bool {
	return f.Settings.SubmissionDeadline != nil && now.After(*f.Settings.SubmissionDeadline)
}

// AtCapacity reports whether the submission counter reached maxCapacity.
func (f *FormDefinition) AtCapacity() bool {
	return f.Settings.MaxCapacity != nil && f.Submissions >= *f.Settings.MaxCapacity
}

// PublicForm is the applicant-facing projection of a form.
type PublicForm struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	Description string       `json:"description"`
	Fields      []FieldSpec  `json:"fields"`
	Category    FormCategory `json:"category"`
	Language    *LanguageRef `json:"language"`
	Settings    struct {
		SubmissionDeadline *time.Time `json:"submissionDeadline"`
	} `json:"settings"`
	IsActive bool `json:"isActive"`
}

// Public projects f for unauthenticated callers.
func (f *FormDefinition) Public() *PublicForm {
	p := &PublicForm{
		ID:          f.ID,
		Name:        f.Name,
		Slug:        f.Slug,
		Description: f.Description,
		Fields:      f.Fields,
		Category:    f.Category,
		Language:    f.Language,
		IsActive:    f.IsActive,
	}
	p.Settings.SubmissionDeadline = f.Settings.SubmissionDeadline
	return p
}

// Language is a catalog language a form may target.
type Language struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Flag     string `json:"flag"`
	IsActive bool   `json:"-"`
}
