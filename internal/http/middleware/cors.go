package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// IdempotencyKeyHeader carries the client's retry token on registration requests.
const IdempotencyKeyHeader = "Idempotency-Key"

// CORS lets browser clients on the configured origins call the API with a
// bearer token and an idempotency key.
func CORS(allowedOrigins []string, allowCredentials bool) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", IdempotencyKeyHeader},
		ExposedHeaders:   []string{chimw.RequestIDHeader},
		AllowCredentials: allowCredentials,
		MaxAge:           600,
	})
}

// EchoRequestID returns the id assigned by chi's RequestID middleware in
// the response so clients can quote it.
func EchoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			w.Header().Set(chimw.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}
