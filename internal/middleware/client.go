package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	ClientIDHeader = "X-Client-ID"
	ClientIDCookie = "travel_client_id"

	clientCookieMaxAge = 365 * 24 * time.Hour
)

type clientIDKey struct{}

// ClientIdentity makes sure every request carries an opaque browser id. The id comes from the
// X-Client-ID header or the travel_client_id cookie; a new one is issued as a cookie otherwise.
func ClientIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(ClientIDHeader)
		if id == "" {
			if c, err := r.Cookie(ClientIDCookie); err == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     ClientIDCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(clientCookieMaxAge.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		w.Header().Set(ClientIDHeader, id)

		next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), id)))
	})
}

// WithClientID stores the browser id in ctx.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, id)
}

// ClientID returns the browser id set by ClientIdentity, or "".
func ClientID(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}
