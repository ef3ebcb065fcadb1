package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"lot-auction-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

const (
	headerRequestID = "X-Request-Id"
	headerActorRole = "X-Actor-Role"
)

var errUnauthorized = errors.New("invalid or missing credentials")

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func recoverMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Recovered from handler panic")
					writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", requestIDFromContext(r.Context()))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// websocket upgrades need the raw writer
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Str("request_id", requestIDFromContext(r.Context())).
				Msg("HTTP request")
		})
	}
}

// actorMiddleware attaches the caller to the request context. The bearer
// token carries the caller id; identity is verified upstream. Requests
// without credentials pass through anonymously and fail authorization later.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := actorFromHeaders(header, r.Header.Get(headerActorRole))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error(), requestIDFromContext(r.Context()))
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.WithActor(r.Context(), actor)))
	})
}

func actorFromHeaders(authorization, role string) (shared.Actor, error) {
	const prefix = "bearer "
	if len(authorization) < len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return shared.Actor{}, errUnauthorized
	}
	token := strings.TrimSpace(authorization[len(prefix):])
	id, err := uuid.Parse(token)
	if err != nil {
		return shared.Actor{}, errUnauthorized
	}

	switch r := shared.Role(strings.ToLower(strings.TrimSpace(role))); r {
	case "":
		return shared.Actor{ID: id, Role: shared.RoleUser}, nil
	case shared.RoleUser, shared.RoleAdmin, shared.RoleSystem:
		return shared.Actor{ID: id, Role: r}, nil
	default:
		return shared.Actor{}, errUnauthorized
	}
}
