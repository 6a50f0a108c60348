package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"rentcar-backend/internal/cache"
	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/metrics"
	"rentcar-backend/internal/security"
)

type contextKey string

const sessionKey contextKey = "checkout_session"

// SessionFromContext returns the checkout claims injected by CheckoutAuth
func SessionFromContext(ctx context.Context) (*security.CheckoutClaims, bool) {
	claims, ok := ctx.Value(sessionKey).(*security.CheckoutClaims)
	return claims, ok
}

// CheckoutAuth validates the Bearer checkout token and injects its claims
func CheckoutAuth(tokens security.TokenManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Authorization header required"})
				return
			}
			token, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found || token == "" {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid authorization format"})
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				message := "Invalid checkout session"
				if errors.Is(err, security.ErrExpiredToken) {
					message = "Your checkout session has expired, please start again"
				}
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: message})
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Metrics records request counts and latency per route template
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Recovery turns a handler panic into a 500
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Panic recovered", "panic", rec, "path", r.URL.Path, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// IdempotencyStore is satisfied by cache.ResponseStore
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (*cache.StoredResponse, error)
	Complete(ctx context.Context, key string, resp cache.StoredResponse) error
	Abandon(ctx context.Context, key string) error
}

type bodyRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *bodyRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a state-changing request that carries an
// Idempotency-Key seen before. Server errors and pending answers are not stored so the client can retry.
func Idempotency(store IdempotencyStore) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			scoped := fmt.Sprintf("%s:%s", r.URL.Path, key)
			ctx := r.Context()

			stored, err := store.Begin(ctx, scoped)
			switch {
			case errors.Is(err, cache.ErrInFlight):
				writeJSON(w, http.StatusConflict, ErrorResponse{Error: "A request with this Idempotency-Key is still in progress"})
				return
			case err != nil:
				logger.Warn("Idempotency store unavailable, processing without replay protection", "error", err)
				next.ServeHTTP(w, r)
				return
			case stored != nil:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(stored.Status)
				w.Write(stored.Body)
				return
			}

			rec := &bodyRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			// the request context may be gone once the client disconnects
			bg := context.WithoutCancel(ctx)
			// pending outcomes are not final and must reach the service again
			if rec.statusCode >= http.StatusInternalServerError || rec.statusCode == http.StatusAccepted {
				if err := store.Abandon(bg, scoped); err != nil {
					logger.Warn("Failed to release idempotency key", "error", err)
				}
				return
			}
			if err := store.Complete(bg, scoped, cache.StoredResponse{Status: rec.statusCode, Body: rec.body.Bytes()}); err != nil {
				logger.Warn("Failed to store idempotent response", "error", err)
			}
		})
	}
}
