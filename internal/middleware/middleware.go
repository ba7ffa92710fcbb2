// Package middleware holds the HTTP middleware shared by all routes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing the client's when sent,
// and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return chimw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestIDHeader, chimw.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	}))
}

func RequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// Logger logs one line per request, and reports panics recovered by
// Recovery further down the chain.
var Logger = chimw.RequestLogger(slogFormatter{})

// Recovery turns a panicking handler into a 500. It must run inside Logger
// for the panic to reach the request log.
var Recovery = chimw.Recoverer

// CORS allows the given origins to call the API from a browser.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

type slogFormatter struct{}

func (slogFormatter) NewLogEntry(r *http.Request) chimw.LogEntry {
	return &slogEntry{
		method:  r.Method,
		path:    r.URL.Path,
		request: RequestIDFromContext(r.Context()),
		upgrade: r.Header.Get("Upgrade") != "",
	}
}

type slogEntry struct {
	method  string
	path    string
	request string
	upgrade bool
}

func (e *slogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	if status == 0 && e.upgrade {
		status = http.StatusSwitchingProtocols
	}
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(context.Background(), level, "request",
		"method", e.method,
		"path", e.path,
		"status", status,
		"bytes", bytes,
		"duration", elapsed,
		"request", e.request)
}

func (e *slogEntry) Panic(v any, stack []byte) {
	slog.Error("panic in handler",
		"panic", v,
		"method", e.method,
		"path", e.path,
		"request", e.request,
		"stack", string(stack))
}
