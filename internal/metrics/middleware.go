package metrics

import (
	"context"
	"net/http"
	"time"
)

// Request classes reported by the static server.
const (
	ClassRoot     = "root"
	ClassFallback = "fallback"
	ClassAsset    = "asset"
	ClassRejected = "rejected"
	ClassMissing  = "missing"
	classUnknown  = "unknown"
)

type classKey struct{}

type classHolder struct{ class string }

// SetRequestClass labels the request being served. It is a no-op outside
// Middleware.
func SetRequestClass(ctx context.Context, class string) {
	if h, ok := ctx.Value(classKey{}).(*classHolder); ok {
		h.class = class
	}
}

// Middleware is a chi middleware that records HTTP request metrics, labeled
// by the class the handler assigns with SetRequestClass.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		holder := &classHolder{class: classUnknown}
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), classKey{}, holder)))

		ObserveHTTPRequest(r.Method, holder.class, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}
