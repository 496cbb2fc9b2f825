package middleware

import (
	"context"
	"net/http"

	"github.com/soaringjerry/Surveyor/internal/utils"
)

type localeCtxKey struct{}

// LocaleCookie remembers a respondent's language choice across pages.
const LocaleCookie = "surveyor_lang"

// LocaleMiddleware resolves the message locale from ?lang, then the
// LocaleCookie, then Accept-Language, and stores it in the request context.
func LocaleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pref := r.URL.Query().Get("lang")
		if pref == "" {
			if c, err := r.Cookie(LocaleCookie); err == nil {
				pref = c.Value
			}
		}
		locale := utils.DetermineLocale(pref, r.Header.Get("Accept-Language"), utils.SupportedLocales, utils.SupportedLocales[0])
		w.Header().Set("Content-Language", locale)
		w.Header().Add("Vary", "Accept-Language")
		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
	})
}

func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeCtxKey{}, locale)
}

// LocaleFromContext returns the resolved locale, English when none was set.
func LocaleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(localeCtxKey{}).(string); ok && s != "" {
		return s
	}
	return "en"
}
