package scanning

import "strings"

// FallbackCategory is preferred when a suggestion does not match any category.
const FallbackCategory = "Other"

// ReconcileCategory maps a model suggestion onto the caller's categories.
// An exact case-insensitive match returns the caller's spelling. Otherwise it
// falls back to "Other", then to the first category. It reports false when
// the suggestion is empty or there are no categories.
func ReconcileCategory(suggestion string, categories []string) (string, bool) {
	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" {
		return "", false
	}

	for _, name := range categories {
		if strings.EqualFold(name, suggestion) {
			return name, true
		}
	}

	for _, name := range categories {
		if strings.EqualFold(name, FallbackCategory) {
			return name, true
		}
	}

	if len(categories) > 0 {
		return categories[0], true
	}
	return "", false
}
