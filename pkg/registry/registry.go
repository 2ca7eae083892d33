// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func LoadRegistry(path string) (*FormRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg FormRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}
	return &reg, nil
}

// New returns an empty registry stamped with now.
func New(now time.Time) *FormRegistry {
	return &FormRegistry{
		Version:     "1.0.0",
		LastUpdated: now.UTC().Format(time.RFC3339),
		Templates:   []FormTemplate{},
	}
}

// SaveRegistry writes reg as indented JSON, creating parent directories.
func SaveRegistry(reg *FormRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func (r *FormRegistry) Find(id string) (*FormTemplate, bool) {
	for i := range r.Templates {
		if r.Templates[i].ID == id {
			return &r.Templates[i], true
		}
	}
	return nil, false
}

// Add validates t and appends it. IDs must be unique.
func (r *FormRegistry) Add(t FormTemplate, now time.Time) error {
	if _, ok := r.Find(t.ID); ok {
		return fmt.Errorf("template with ID %s already exists", t.ID)
	}
	if t.Status == "" {
		t.Status = StatusDraft
	}
	if err := t.Validate(); err != nil {
		return err
	}
	r.Templates = append(r.Templates, t)
	r.LastUpdated = now.UTC().Format(time.RFC3339)
	return nil
}

// Published returns the templates marked ready for seeding.
func (r *FormRegistry) Published() []FormTemplate {
	out := []FormTemplate{}
	for _, t := range r.Templates {
		if t.Status == StatusPublished {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks every template and rejects duplicate IDs.
func (r *FormRegistry) Validate() error {
	if len(r.Templates) == 0 {
		return fmt.Errorf("registry contains no templates")
	}
	ids := make(map[string]bool, len(r.Templates))
	for _, t := range r.Templates {
		if ids[t.ID] {
			return fmt.Errorf("duplicate template ID: %s", t.ID)
		}
		ids[t.ID] = true
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (t FormTemplate) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template missing required field: ID")
	}
	if !idPattern.MatchString(t.ID) {
		return fmt.Errorf("template %s: ID must be lower-case words joined by hyphens", t.ID)
	}
	if len(t.Name) < 3 || len(t.Name) > 100 {
		return fmt.Errorf("template %s: name must be 3-100 characters", t.ID)
	}
	if t.Category != "" && !contains(Categories, t.Category) {
		return fmt.Errorf("template %s: unknown category %q", t.ID, t.Category)
	}
	if t.Status != StatusDraft && t.Status != StatusPublished {
		return fmt.Errorf("template %s: status must be %s or %s", t.ID, StatusDraft, StatusPublished)
	}
	if t.MaxCapacity != nil && *t.MaxCapacity < 1 {
		return fmt.Errorf("template %s: maxCapacity must be positive", t.ID)
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("template %s: at least one field is required", t.ID)
	}

	names := make(map[string]bool, len(t.Fields))
	for i, f := range t.Fields {
		if f.Name == "" || f.Label == "" {
			return fmt.Errorf("template %s: field %d needs a name and label", t.ID, i)
		}
		if names[f.Name] {
			return fmt.Errorf("template %s: duplicate field name %s", t.ID, f.Name)
		}
		names[f.Name] = true
		if !contains(FieldTypes, f.Type) {
			return fmt.Errorf("template %s: field %s has unknown type %q", t.ID, f.Name, f.Type)
		}
		if contains(choiceTypes, f.Type) && len(f.Options) == 0 {
			return fmt.Errorf("template %s: field %s needs options", t.ID, f.Name)
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
