package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the browser app to call the API from another origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", ClientIDHeader, "X-Request-Id"},
		ExposedHeaders:   []string{ClientIDHeader},
		AllowCredentials: len(origins) != 1 || origins[0] != "*",
		MaxAge:           300,
	})
}
