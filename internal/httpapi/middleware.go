package httpapi

import (
	"context"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supermarx/karl/internal/store"
)

type ctxKey int

const requestIDKey ctxKey = iota

// requestIDMiddleware stamps every request with an opaque id so log lines
// from one request can be correlated.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs method, path, status, and duration for every
// request.
func loggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("request_id", r.Context().Value(requestIDKey).(string)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// sessionHeader is the header crawlers attach their session token under.
const sessionHeader = "X-Karl-Session"

// sessionMiddleware enforces check_session on the write routes before the
// handler touches the facade; it stores the raw token in the request
// context so each write handler can forward it unchanged.
func sessionMiddleware(h *handlers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := hex.DecodeString(r.Header.Get(sessionHeader))
			if err != nil {
				writeError(w, store.ErrSessionExpected)
				return
			}
			if err := h.f.CheckSession(r.Context(), token); err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), sessionTokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

const sessionTokenKey ctxKey = 1

func sessionTokenFrom(r *http.Request) []byte {
	tok, _ := r.Context().Value(sessionTokenKey).([]byte)
	return tok
}
