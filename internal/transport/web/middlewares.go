package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/avstrong/checkin/internal/reservation"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggerMiddleware() func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now().UTC()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			var traceID string

			if spanTraceID := uuid.UUID(trace.SpanContextFromContext(r.Context()).TraceID()); spanTraceID != uuid.Nil {
				traceID = spanTraceID.String()
			}

			s.l.LogInfo(
				"type: access, method: %s, url: %s, status: %d, userAgent: %s, traceID: %s, latency: %s",
				r.Method,
				r.URL.Path,
				rec.status,
				r.Header.Get("User-Agent"),
				traceID,
				time.Since(start),
			)
		})
	}
}

func (s *Server) recoverMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if re := recover(); re != nil {
					err, ok := re.(error)
					if !ok {
						err = fmt.Errorf("%v: %w", re, ErrPanic)
					}

					s.l.LogErrorf("type: panic, url: %s, error: %v", r.URL.Path, err)
					s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: genericGuestMessage}) //nolint:exhaustruct
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// idempotencyMiddleware forwards the Idempotency-Key header to the managers.
func (s *Server) idempotencyMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
				r = r.WithContext(reservation.NewContextWithIdempotencyKey(r.Context(), key))
			}

			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

const staffSubjectKey contextKey = "staffSubject"

func staffSubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(staffSubjectKey).(string)

	return sub
}

// staffMiddleware admits HS256 bearer tokens carrying role staff or admin.
func (s *Server) staffMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.conf.StaffJWTSecret == "" {
				s.writeJSON(w, http.StatusServiceUnavailable, envelope{Message: "staff access is not configured"}) //nolint:exhaustruct

				return
			}

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				s.writeJSON(w, http.StatusUnauthorized, envelope{Message: ErrUnauthorized.Error()}) //nolint:exhaustruct

				return
			}

			claims := jwt.MapClaims{}

			_, err := jwt.ParseWithClaims(
				strings.TrimSpace(raw),
				claims,
				func(*jwt.Token) (any, error) { return []byte(s.conf.StaffJWTSecret), nil },
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			)
			if err != nil {
				s.l.LogDebugf("Staff token rejected: %v", err.Error())
				s.writeJSON(w, http.StatusUnauthorized, envelope{Message: ErrUnauthorized.Error()}) //nolint:exhaustruct

				return
			}

			if role, _ := claims["role"].(string); role != "staff" && role != "admin" {
				s.writeJSON(w, http.StatusForbidden, envelope{Message: "staff role required"}) //nolint:exhaustruct

				return
			}

			sub, _ := claims["sub"].(string)

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), staffSubjectKey, sub)))
		})
	}
}

func (s *Server) applyMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for _, middleware := range middlewares {
		h = middleware(h)
	}

	return h
}
