package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CookieName carries the opaque identity token that correlates separate
// requests and connections to the same client. Not secret-grade; it exists
// only for matchmaking continuity.
const CookieName = "match_sid"

type ctxKey struct{}

// Identity ensures every request carries an identity token, minting one on
// first contact, and stashes it in the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
			token = c.Value
		} else {
			token = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFrom returns the identity token bound to the request context.
func TokenFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}
