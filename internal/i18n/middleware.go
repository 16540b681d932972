package i18n

import "net/http"

// Middleware injects a localizer into every request context. A lang
// query parameter overrides the Accept-Language header, which overrides
// the configured default.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var prefs []string
			if lang := r.URL.Query().Get("lang"); lang != "" {
				prefs = append(prefs, lang)
			}
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				prefs = append(prefs, accept)
			}
			prefs = append(prefs, defaultLang)

			ctx := WithLocalizer(r.Context(), NewLocalizer(prefs...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
