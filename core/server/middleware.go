package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/m3rciful/formrelay/core/logger"
)

// HeaderRequestID carries the correlation id in and out of the server.
const HeaderRequestID = "X-Request-ID"

// requestID stores the inbound X-Request-ID, or a fresh uuid, as the log RID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(HeaderRequestID)
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, rid)
		ctx := logger.WithRID(r.Context(), rid)
		ctx = logger.WithLogger(ctx, logger.HTTP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverer keeps the process serving after a handler panic.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.HTTP.LogAttrs(r.Context(), slog.LevelError, "UncaughtFault",
				slog.String("event", "http.panic"),
				slog.String("method", r.Method),
				slog.String("path", cleanPath(r.URL.Path)),
				slog.Any("err", rec),
				slog.String("stack", string(debug.Stack())),
			)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("internal server error\n"))
		}()
		next.ServeHTTP(w, r)
	})
}

// logRequests writes one summary line per request.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		result := "ok"
		if status >= 400 {
			result = "fail"
		}
		logger.HTTP.LogAttrs(r.Context(), level, "request served",
			slog.String("event", "http.request"),
			slog.String("status", result),
			slog.String("method", r.Method),
			slog.String("path", cleanPath(r.URL.Path)),
			slog.Int("http_code", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}

func cleanPath(p string) string {
	if !utf8.ValidString(p) {
		p = strings.ToValidUTF8(p, "")
	}
	return logger.SanitizeLimit(p, 128)
}
