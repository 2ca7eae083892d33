// pkg/registry/schema.go
package registry

// FormRegistry is the on-disk catalog of reusable form templates.
type FormRegistry struct {
	Version     string         `json:"version"`
	LastUpdated string         `json:"lastUpdated"`
	Templates   []FormTemplate `json:"templates"`
}

type FormTemplate struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	LanguageCode string   `json:"languageCode,omitempty"`
	Status       string   `json:"status"`
	Fields       []Field  `json:"fields"`
	MaxCapacity  *int     `json:"maxCapacity,omitempty"`
	AdminEmails  []string `json:"adminEmails,omitempty"`
	Tags         []string `json:"tags"`
}

type Field struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"`
}

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

var (
	Categories = []string{"language-course", "test-preparation", "consultation", "general"}
	FieldTypes = []string{
		"text", "email", "tel", "number", "textarea", "select", "multiselect", "checkbox",
		"radio", "date", "file", "url", "password", "color", "range", "time",
	}
	// choiceTypes need at least one option.
	choiceTypes = []string{"select", "multiselect", "radio"}
)
