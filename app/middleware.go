package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Middleware wraps the app handler.
type Middleware func(next http.Handler) http.Handler

type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}

	return ""
}

// RequestIDConfig configures RequestID.
type RequestIDConfig struct {
	// HeaderName defaults to "X-Request-ID".
	HeaderName string

	// Generate returns a new ID. Defaults to a UUID v4.
	Generate func(r *http.Request) string

	// TrustIncoming reuses the ID sent by the client.
	TrustIncoming bool
}

// RequestID sets a request ID on the request context and the response
// header.
func RequestID(cfg RequestIDConfig) Middleware {
	header := cfg.HeaderName
	if header == "" {
		header = "X-Request-ID"
	}

	generate := cfg.Generate
	if generate == nil {
		generate = func(*http.Request) string { return uuid.New().String() }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if cfg.TrustIncoming {
				id = r.Header.Get(header)
			}

			if id == "" {
				id = generate(r)
			}

			w.Header().Set(header, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// Recovery turns panics into 500 responses and logs them.
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}

				if rv == http.ErrAbortHandler {
					panic(rv)
				}

				logger.Error("panic serving request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.String("panic", fmt.Sprint(rv)),
					zap.Stack("stack"),
				)

				writeJSON(w, http.StatusInternalServerError, detail{Detail: http.StatusText(http.StatusInternalServerError)})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
