package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RequestLoggingMiddleware logs each request with zerolog, including a
// truncated copy of the request body for non-GET requests. bodyLimit bounds
// how many bytes are buffered and logged; query strings are logged as-is
// except that token-bearing parameters never appear on our routes.
func RequestLoggingMiddleware(logger zerolog.Logger, bodyLimit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var bodyPreview string
			if r.Body != nil && r.Method != http.MethodGet && bodyLimit > 0 {
				limited := io.LimitReader(r.Body, int64(bodyLimit))
				preview, err := io.ReadAll(limited)
				if err == nil {
					bodyPreview = string(preview)
					// Reassemble so the handler still sees the full body.
					r.Body = struct {
						io.Reader
						io.Closer
					}{io.MultiReader(bytes.NewReader(preview), r.Body), r.Body}
				}
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			event := logger.Info()
			if ww.Status() >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context()))
			if bodyPreview != "" {
				event.Str("body", bodyPreview)
			}
			event.Msg("request completed")
		})
	}
}
