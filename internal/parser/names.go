package parser

import (
	"regexp"
	"strings"
)

var nameSeparator = regexp.MustCompile(`\s*[,;]\s*|\s+(?:и|and)\s+`)

// SplitNames turns an author or editor line into individual names.
func SplitNames(value string) []string {
	value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "."))
	if value == "" {
		return nil
	}
	parts := nameSeparator.Split(value, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
