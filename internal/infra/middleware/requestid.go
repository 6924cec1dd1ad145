package middleware

import (
	"math/rand"
	"net/http"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"

	"neuroguide/internal/domain"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// validRequestID bounds what a caller may supply.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// RequestID assigns every request an ID, reusing a well-formed caller value,
// echoes it in the response and stores it on the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID.MatchString(id) {
			id = NewRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(domain.ContextWithRequestID(r.Context(), id)))
	})
}

// NewRequestID returns a new ULID string.
func NewRequestID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
