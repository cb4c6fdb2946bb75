package source

import "strings"

// Filter drops candidates whose titles contain excluded keywords.
type Filter struct {
	exclude []string
}

// NewFilter creates a filter from exclude keywords (case-insensitive).
func NewFilter(excludeKeywords []string) *Filter {
	exclude := make([]string, 0, len(excludeKeywords))
	for _, kw := range excludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			exclude = append(exclude, kw)
		}
	}
	return &Filter{exclude: exclude}
}

// Allows returns false if text contains any excluded keyword.
func (f *Filter) Allows(text string) bool {
	if f == nil || len(f.exclude) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	return true
}
