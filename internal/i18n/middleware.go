package i18n

import "net/http"

// Middleware injects the localizer for the given language into every request
// context. It provides the router's default; per-session prompts are
// re-localized from the exam's own language before any text is rendered.
func Middleware(lang string) func(http.Handler) http.Handler {
	loc := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
