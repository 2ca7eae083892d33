// cmd/tools/form-registry/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"admissions-forms/pkg/registry"
)

const defaultPath = "configs/form-registry.json"

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		err = runAdd(os.Args[2:])
	case "publish":
		err = runSetStatus(os.Args[2:], registry.StatusPublished)
	case "unpublish":
		err = runSetStatus(os.Args[2:], registry.StatusDraft)
	case "validate":
		err = runValidate(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "help", "-h", "--help":
		help()
		return
	default:
		help()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAdd(args []string) error {
	cmd := flag.NewFlagSet("add", flag.ExitOnError)
	path := cmd.String("path", defaultPath, "Path to registry file")
	id := cmd.String("id", "", "Template ID (e.g., ielts-prep)")
	name := cmd.String("name", "", "Form name (e.g., IELTS Preparation)")
	description := cmd.String("description", "", "Description")
	category := cmd.String("category", "general", "Category (language-course, test-preparation, consultation, general)")
	language := cmd.String("language", "", "Language code for language-specific forms (e.g., fr)")
	status := cmd.String("status", registry.StatusDraft, "Status (draft, published)")
	fields := cmd.String("fields", "", `Fields as name:label:type[:required], comma separated`)
	capacity := cmd.Int("capacity", 0, "Max capacity (0 for unlimited)")
	_ = cmd.Parse(args)

	if *id == "" || *name == "" || *fields == "" {
		cmd.Usage()
		return errors.New("id, name and fields are required for add")
	}
	parsed, err := parseFields(*fields)
	if err != nil {
		return err
	}

	tmpl := registry.FormTemplate{
		ID:           *id,
		Name:         *name,
		Description:  *description,
		Category:     *category,
		LanguageCode: *language,
		Status:       *status,
		Fields:       parsed,
		Tags:         []string{},
	}
	if *capacity > 0 {
		tmpl.MaxCapacity = capacity
	}

	reg, err := loadOrCreate(*path)
	if err != nil {
		return err
	}
	if err := reg.Add(tmpl, time.Now()); err != nil {
		return err
	}
	if err := registry.SaveRegistry(reg, *path); err != nil {
		return err
	}
	fmt.Printf("Added template: %s\n", *id)
	return nil
}

func runSetStatus(args []string, status string) error {
	cmd := flag.NewFlagSet("status", flag.ExitOnError)
	path := cmd.String("path", defaultPath, "Path to registry file")
	id := cmd.String("id", "", "Template ID")
	_ = cmd.Parse(args)

	if *id == "" {
		cmd.Usage()
		return errors.New("id is required")
	}
	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	tmpl, ok := reg.Find(*id)
	if !ok {
		return fmt.Errorf("template with ID %s not found", *id)
	}
	tmpl.Status = status
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	if err := registry.SaveRegistry(reg, *path); err != nil {
		return err
	}
	fmt.Printf("Template %s is now %s\n", *id, status)
	return nil
}

func runValidate(args []string) error {
	cmd := flag.NewFlagSet("validate", flag.ExitOnError)
	path := cmd.String("path", defaultPath, "Path to registry file")
	_ = cmd.Parse(args)

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("registry validation failed: %w", err)
	}
	fmt.Printf("Registry validation passed. Found %d templates, %d published.\n", len(reg.Templates), len(reg.Published()))
	return nil
}

func runList(args []string) error {
	cmd := flag.NewFlagSet("list", flag.ExitOnError)
	path := cmd.String("path", defaultPath, "Path to registry file")
	_ = cmd.Parse(args)

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tLANGUAGE\tSTATUS\tFIELDS")
	for _, t := range reg.Templates {
		lang := t.LanguageCode
		if lang == "" {
			lang = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", t.ID, t.Name, t.Category, lang, t.Status, len(t.Fields))
	}
	return w.Flush()
}

func loadOrCreate(path string) (*registry.FormRegistry, error) {
	reg, err := registry.LoadRegistry(path)
	if errors.Is(err, os.ErrNotExist) {
		return registry.New(time.Now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return reg, nil
}

// parseFields reads "name:label:type[:required]" entries. Choice fields take
// their options after a pipe: "level:Level:select|A1|B2".
func parseFields(spec string) ([]registry.Field, error) {
	var out []registry.Field
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		var options []string
		if i := strings.Index(entry, "|"); i >= 0 {
			for _, o := range strings.Split(entry[i+1:], "|") {
				if o = strings.TrimSpace(o); o != "" {
					options = append(options, o)
				}
			}
			entry = entry[:i]
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 {
			return nil, fmt.Errorf("field %q must be name:label:type[:required]", entry)
		}
		f := registry.Field{
			Name:    strings.TrimSpace(parts[0]),
			Label:   strings.TrimSpace(parts[1]),
			Type:    strings.TrimSpace(parts[2]),
			Options: options,
		}
		if len(parts) > 3 {
			f.Required = strings.TrimSpace(parts[3]) == "required"
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, errors.New("no fields given")
	}
	return out, nil
}

func help() {
	fmt.Println(`
Usage: form-registry <command> [flags]

Commands:
  add        Add a form template to the registry
  publish    Mark a template for seeding at startup
  unpublish  Return a template to draft
  validate   Validate the registry file
  list       List templates
  help       Show this help message

Examples:
  form-registry add -id ielts-prep -name "IELTS Preparation" -category test-preparation -fields "fullName:Full Name:text:required,email:Email:email:required,level:Level:select|A1|B2"
  form-registry publish -id ielts-prep
  form-registry validate -path configs/form-registry.json

Use 'form-registry <command> -h' for more information about a command.`)
}
