package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kaizenhq/a3hub/pkg/contextkeys"
)

// HeaderRequestID carries the request ID on requests and responses
const HeaderRequestID = "X-Request-ID"

// RequestID tags every request with an ID, honoring one supplied by the
// caller, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
