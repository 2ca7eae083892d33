package forms

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	slugStrip  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces = regexp.MustCompile(`\s+`)
	slugDashes = regexp.MustCompile(`-+`)
)

// Slugify derives the base slug for a form name: lower-cased, characters
// other than letters, digits, spaces and hyphens removed, whitespace runs
// turned into single hyphens.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "form"
	}
	return s
}

// SlugCandidate returns the slug tried on the given attempt: base, base-1,
// base-2, ...
func SlugCandidate(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(attempt)
}
