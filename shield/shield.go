// Package shield holds the HTTP middleware the site server runs behind:
// security headers, HEAD handling, request IDs and optional Basic Auth.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(logger) {
//		r.Use(mw)
//	}
//	r.Use(shield.BasicAuth(user, hash, "breakingchange"))
package shield

import (
	"log/slog"
	"net/http"
)

// Stack returns the default middleware, outermost first:
// HeadToGet, SecurityHeaders, RequestID.
func Stack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		RequestID(logger),
	}
}

// HeadToGet routes HEAD like GET; net/http drops the response body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
