// Package handlers exposes the auth, recovery and journal services over HTTP.
// Bodies are JSON and always carry a "success" flag.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/AnshRaj112/somnia-backend/internal/middleware"
	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/services"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds the storage and mail work of one request.
const DefaultRequestTimeout = 10 * time.Second

type Handler struct {
	auth     *services.AuthService
	recovery *services.RecoveryService
	dreams   *services.DreamService
	checks   map[string]HealthCheck
	log      *zap.Logger
	timeout  time.Duration
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

func New(auth *services.AuthService, recovery *services.RecoveryService, dreams *services.DreamService, log *zap.Logger) *Handler {
	return &Handler{
		auth:     auth,
		recovery: recovery,
		dreams:   dreams,
		checks:   map[string]HealthCheck{},
		log:      log,
		timeout:  DefaultRequestTimeout,
	}
}

// WithHealthCheck registers a named dependency check for /health.
func (h *Handler) WithHealthCheck(name string, check HealthCheck) *Handler {
	h.checks[name] = check
	return h
}

// Auth is the authenticator RequireAuth should use for this handler's routes.
func (h *Handler) Auth() middleware.Authenticator {
	return h.auth
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

// currentUser returns the user RequireAuth stored. Routes without that
// middleware get Unauthorized.
func currentUser(r *http.Request) (*models.User, error) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok || u == nil {
		return nil, apperr.Unauthorized("")
	}
	return u, nil
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health answers 200 when every registered check passes and 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = "down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "up"
	}
	writeJSON(w, status, resp)
}
