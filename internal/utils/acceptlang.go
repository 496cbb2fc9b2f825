package utils

import (
	"strings"

	"golang.org/x/text/language"
)

// DetermineLocale resolves a locale from an explicit query param, then the
// Accept-Language header, then def. Supported values are base languages like
// "en" or "ko"; the result is always one of them.
func DetermineLocale(queryLang, acceptLang string, supported []string, def string) string {
	if len(supported) == 0 {
		return "en"
	}
	names := make([]string, 0, len(supported))
	for _, s := range supported {
		names = append(names, strings.ToLower(s))
	}
	// The matcher falls back to its first tag, so the default goes first.
	def = strings.ToLower(def)
	for i, n := range names {
		if n == def && i > 0 {
			names[0], names[i] = names[i], names[0]
		}
	}
	tags := make([]language.Tag, 0, len(names))
	for _, n := range names {
		tags = append(tags, language.Make(n))
	}
	m := language.NewMatcher(tags)

	if q := strings.TrimSpace(queryLang); q != "" {
		if t, err := language.Parse(q); err == nil {
			if _, i, conf := m.Match(t); conf != language.No {
				return names[i]
			}
		}
	}
	if a := strings.TrimSpace(acceptLang); a != "" {
		if desired, _, err := language.ParseAcceptLanguage(a); err == nil && len(desired) > 0 {
			if _, i, conf := m.Match(desired...); conf != language.No {
				return names[i]
			}
		}
	}
	return names[0]
}
