package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/auth"
	"github.com/dd0wney/cluso-flowscan/pkg/logging"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// ClaimsFromContext returns the validated claims stored by requireRole,
// or nil when the request was unauthenticated.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims
}

// roleRank orders roles for access checks: a higher role satisfies a
// lower requirement.
var roleRank = map[string]int{
	auth.RoleViewer:  1,
	auth.RoleAnalyst: 2,
	auth.RoleAdmin:   3,
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) panicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic in HTTP handler",
					logging.String("method", r.Method),
					logging.Path(r.URL.Path),
					logging.Any("panic", err),
					logging.String("stack", string(debug.Stack())))
				s.respondError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		s.metrics.HTTPRequestsInFlight.Inc()
		next.ServeHTTP(rec, r)
		s.metrics.HTTPRequestsInFlight.Dec()

		elapsed := time.Since(start)
		s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), elapsed)
		s.logger.Debug("request handled",
			logging.String("method", r.Method),
			logging.Path(r.URL.Path),
			logging.Int("status", rec.status),
			logging.Latency(elapsed))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origin := "*"
	if len(s.corsOrigins) > 0 {
		origin = strings.Join(s.corsOrigins, ", ")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bodyLimit rejects oversized request bodies before handlers read them.
func (s *Server) bodyLimit(maxBytes int64, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxBytes {
			s.respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		// Safety net for chunked encoding where Content-Length is absent.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next(w, r)
	}
}

// requireRole gates a handler on a minimum role. Requests authenticate
// with either an X-API-Key header or a bearer token. When neither auth
// mechanism is configured the gate is open; the deployment is
// trusted-network only.
func (s *Server) requireRole(minRole string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.AuthEnabled() && s.apiKeys == nil {
			next(w, r)
			return
		}

		if keyString := r.Header.Get("X-API-Key"); keyString != "" {
			if s.apiKeys == nil {
				s.respondError(w, http.StatusUnauthorized, "API keys are not configured")
				return
			}
			key, err := s.apiKeys.ValidateKey(keyString)
			if err != nil {
				s.respondError(w, http.StatusUnauthorized, "Invalid API key")
				return
			}
			if roleRank[key.Role] < roleRank[minRole] {
				s.respondError(w, http.StatusForbidden, "Insufficient role")
				return
			}
			claims := &auth.Claims{UserID: key.ID, Username: key.Label, Role: key.Role}
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next(w, r.WithContext(ctx))
			return
		}

		if !s.AuthEnabled() {
			s.respondError(w, http.StatusUnauthorized, "Missing API key")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			s.respondError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := s.jwtManager.ValidateToken(r.Context(), token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if _, err := s.userStore.GetUserByID(claims.UserID); err != nil {
			s.respondError(w, http.StatusUnauthorized, "User not found")
			return
		}

		if roleRank[claims.Role] < roleRank[minRole] {
			s.respondError(w, http.StatusForbidden, "Insufficient role")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}
