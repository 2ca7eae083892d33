package forms

import (
	"context"
	"errors"
	"strings"

	"admissions-forms/internal/models"
	"admissions-forms/pkg/registry"
)

// SeedResult counts what Seed did with each published template.
type SeedResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Seed creates a form for every published template whose slug is not taken
// yet. Templates naming an unknown language code are created as general
// forms. A failing template is logged and does not stop the rest.
func (s *Service) Seed(ctx context.Context, actorID string, templates []registry.FormTemplate) (SeedResult, error) {
	var result SeedResult
	languages, err := s.repo.Languages(ctx)
	if err != nil {
		return result, err
	}
	byCode := make(map[string]string, len(languages))
	for _, l := range languages {
		byCode[strings.ToLower(l.Code)] = l.ID
	}

	for _, t := range templates {
		if t.Status != registry.StatusPublished {
			continue
		}
		_, err := s.repo.FindBySlug(ctx, Slugify(t.Name))
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return result, err
		}

		in := templateInput(t)
		if code := strings.ToLower(t.LanguageCode); code != "" {
			if id, ok := byCode[code]; ok {
				in.Language = &id
			} else {
				s.logger.Warn("template language not found, seeding as general form", map[string]interface{}{
					"template": t.ID, "languageCode": t.LanguageCode,
				})
			}
		}
		if _, err := s.Create(ctx, actorID, in); err != nil {
			result.Failed++
			s.logger.Error("seeding template failed", map[string]interface{}{"template": t.ID, "error": err.Error()})
			continue
		}
		result.Created++
	}

	s.logger.Info("form templates seeded", map[string]interface{}{
		"created": result.Created, "skipped": result.Skipped, "failed": result.Failed,
	})
	return result, nil
}

func templateInput(t registry.FormTemplate) CreateInput {
	fields := make([]FieldInput, 0, len(t.Fields))
	for _, f := range t.Fields {
		in := FieldInput{
			Name:        f.Name,
			Label:       f.Label,
			Type:        models.FieldType(f.Type),
			Required:    f.Required,
			Placeholder: f.Placeholder,
		}
		for _, o := range f.Options {
			in.Options = append(in.Options, models.FieldOption{Value: o, Label: o})
		}
		fields = append(fields, in)
	}

	in := CreateInput{
		Name:        t.Name,
		Description: t.Description,
		Fields:      fields,
		Category:    models.FormCategory(t.Category),
	}
	if t.MaxCapacity != nil {
		in.Settings = &SettingsInput{MaxCapacity: NullableInt{Set: true, Value: t.MaxCapacity}}
	}
	if len(t.AdminEmails) > 0 {
		in.EmailNotifications = &EmailNotificationsInput{AdminEmails: t.AdminEmails}
	}
	return in
}
