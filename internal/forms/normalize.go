package forms

import (
	"strconv"
	"strings"

	stderrors "admissions-forms/internal/common/errors"
	"admissions-forms/internal/common/validation"
	"admissions-forms/internal/models"
)

type fieldList struct {
	Fields []FieldInput `json:"fields" validate:"dive"`
}

// normalizeFields validates and cleans a field list. Strings are trimmed,
// options missing a value or label are dropped, empty validation keys are
// dropped and order defaults to the field's index.
func normalizeFields(in []FieldInput) ([]models.FieldSpec, error) {
	if len(in) == 0 {
		return nil, stderrors.NewValidationError("At least one form field is required")
	}
	for i := range in {
		in[i].Name = strings.TrimSpace(in[i].Name)
		in[i].Label = strings.TrimSpace(in[i].Label)
		if in[i].Name == "" || in[i].Label == "" || in[i].Type == "" {
			return nil, stderrors.NewValidationError("All fields must have name, label, and type")
		}
	}
	if err := validation.Struct(fieldList{Fields: in}); err != nil {
		return nil, err
	}

	out := make([]models.FieldSpec, 0, len(in))
	for i, f := range in {
		if !f.Type.Valid() {
			return nil, stderrors.NewValidationError("Invalid field type: "+string(f.Type),
				stderrors.FieldError{Field: "fields[" + strconv.Itoa(i) + "].type", Message: "unsupported field type"})
		}
		spec := models.FieldSpec{
			Name:        f.Name,
			Label:       f.Label,
			Type:        f.Type,
			Required:    f.Required,
			Options:     cleanOptions(f.Options),
			Placeholder: strings.TrimSpace(f.Placeholder),
			HelpText:    strings.TrimSpace(f.HelpText),
			Validation:  cleanValidation(f.Validation),
			Order:       i,
		}
		if f.Order != nil {
			spec.Order = *f.Order
		}
		out = append(out, spec)
	}
	return out, nil
}

func cleanOptions(in []models.FieldOption) []models.FieldOption {
	out := []models.FieldOption{}
	for _, o := range in {
		o.Value = strings.TrimSpace(o.Value)
		o.Label = strings.TrimSpace(o.Label)
		if o.Value == "" || o.Label == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

func cleanValidation(in *ValidationInput) *models.FieldValidation {
	if in == nil {
		return nil
	}
	v := &models.FieldValidation{
		Min:       in.Min,
		Max:       in.Max,
		MinLength: in.MinLength,
		MaxLength: in.MaxLength,
	}
	if in.Pattern != nil {
		v.Pattern = strings.TrimSpace(*in.Pattern)
	}
	if v.IsEmpty() {
		return nil
	}
	return v
}

// applySettings merges the keys present in in over s.
func applySettings(s *models.FormSettings, in *SettingsInput) error {
	if in == nil {
		return nil
	}
	if err := validation.Struct(in); err != nil {
		return err
	}
	if in.AllowMultipleSubmissions != nil {
		s.AllowMultipleSubmissions = *in.AllowMultipleSubmissions
	}
	if in.MaxSubmissions != nil {
		s.MaxSubmissions = *in.MaxSubmissions
	}
	if in.MaxCapacity.Set {
		if in.MaxCapacity.Value != nil && *in.MaxCapacity.Value < 1 {
			return stderrors.NewValidationError("Max capacity must be a positive number",
				stderrors.FieldError{Field: "settings.maxCapacity", Message: "must be a positive number"})
		}
		s.MaxCapacity = in.MaxCapacity.Value
	}
	if in.SubmissionDeadline.Set {
		s.SubmissionDeadline = in.SubmissionDeadline.Value
	}
	if in.RequiresApproval != nil {
		s.RequiresApproval = *in.RequiresApproval
	}
	return nil
}

func defaultSettings() models.FormSettings {
	return models.FormSettings{
		AllowMultipleSubmissions: false,
		MaxSubmissions:           1,
		RequiresApproval:         true,
	}
}

// applyEmailNotifications merges the keys present in in over n.
func applyEmailNotifications(n *models.EmailNotifications, in *EmailNotificationsInput) error {
	if in == nil {
		return nil
	}
	for i := range in.AdminEmails {
		in.AdminEmails[i] = strings.TrimSpace(in.AdminEmails[i])
	}
	if err := validation.Struct(in); err != nil {
		return err
	}
	if in.Enabled != nil {
		n.Enabled = *in.Enabled
	}
	if in.AdminEmails != nil {
		n.AdminEmails = in.AdminEmails
	}
	if in.AutoReplyTemplate != nil {
		n.AutoReplyTemplate = models.EmailTemplate{
			Subject: strings.TrimSpace(in.AutoReplyTemplate.Subject),
			Message: strings.TrimSpace(in.AutoReplyTemplate.Message),
		}
	}
	if n.AdminEmails == nil {
		n.AdminEmails = []string{}
	}
	return nil
}

// normalizeLanguage maps "" and null to general; anything else must be an id.
func normalizeLanguage(raw *string) (*models.LanguageRef, error) {
	if raw == nil {
		return nil, nil
	}
	id := models.NormalizeID(*raw)
	if id == "" || id == "null" || id == "general" {
		return nil, nil
	}
	if !models.IsID(id) {
		return nil, stderrors.NewValidationError("Invalid language ID",
			stderrors.FieldError{Field: "language", Message: "language must be a 24 character hex identifier"})
	}
	return &models.LanguageRef{ID: id}, nil
}

func normalizeCategory(c models.FormCategory) (models.FormCategory, error) {
	if c == "" {
		return models.CategoryGeneral, nil
	}
	if !c.Valid() {
		return "", stderrors.NewValidationError("Invalid category",
			stderrors.FieldError{Field: "category", Message: "category must be one of language-course, test-preparation, consultation, general"})
	}
	return c, nil
}
