// Package api exposes the note list and editor sessions over HTTP using chi.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenParam is the query parameter carrying the token for event streams.
const TokenParam = "token"

type queryTokenKey struct{}

// StripQueryToken moves the token query parameter into the request context
// and removes it from the URL, so access logs mounted after it never record
// the secret. Mount it ahead of the request logger.
func StripQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has(TokenParam) {
			next.ServeHTTP(w, r)
			return
		}
		tok := q.Get(TokenParam)
		q.Del(TokenParam)

		r = r.WithContext(context.WithValue(r.Context(), queryTokenKey{}, tok))
		u := *r.URL
		u.RawQuery = q.Encode()
		r.URL = &u
		r.RequestURI = u.RequestURI()
		next.ServeHTTP(w, r)
	})
}

func queryToken(r *http.Request) string {
	if tok, ok := r.Context().Value(queryTokenKey{}).(string); ok {
		return tok
	}
	return r.URL.Query().Get(TokenParam)
}

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return authMiddleware(enabled, token, false)
}

// StreamAuthMiddleware is AuthMiddleware for event streams. Browsers cannot
// set headers on an EventSource, so the token query parameter is accepted
// as well.
func StreamAuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return authMiddleware(enabled, token, true)
}

func authMiddleware(enabled bool, token string, allowQuery bool) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok && allowQuery {
				got = queryToken(r)
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
