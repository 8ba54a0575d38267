package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/labwatch/labwatch/internal/auth"
	"github.com/labwatch/labwatch/internal/credentials"
	"github.com/labwatch/labwatch/internal/driver"
	"github.com/labwatch/labwatch/internal/maintenance"
	"github.com/labwatch/labwatch/internal/model"
	"github.com/labwatch/labwatch/internal/status"
	"github.com/labwatch/labwatch/internal/store"
)

// SchedulerState exposes the poll scheduler's liveness to the API
type SchedulerState interface {
	IsActive() bool
}

// Handler bundles the read-only API surface over the core engine
type Handler struct {
	auth        *auth.Service
	store       store.Store
	credentials *credentials.Service
	factory     *driver.Factory
	statusCache *status.Cache
	maintenance *maintenance.State
	scheduler   SchedulerState
	readTimeout time.Duration
	logger      *slog.Logger
}

// NewHandler creates the API handler set
func NewHandler(
	authService *auth.Service,
	st store.Store,
	credService *credentials.Service,
	factory *driver.Factory,
	statusCache *status.Cache,
	maint *maintenance.State,
	scheduler SchedulerState,
	readTimeout time.Duration,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		auth:        authService,
		store:       st,
		credentials: credService,
		factory:     factory,
		statusCache: statusCache,
		maintenance: maint,
		scheduler:   scheduler,
		readTimeout: readTimeout,
		logger:      logger.With("component", "api"),
	}
}

// Health reports process liveness
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login authenticates the admin user and returns a JWT
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	resp, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// ListIntegrations returns all integrations
func (h *Handler) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	integrations, err := h.store.ListIntegrations(r.Context())
	if err != nil {
		h.logger.Error("failed to list integrations", "error", err)
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list integrations")
		return
	}

	respondJSON(w, http.StatusOK, integrations)
}

// GetIntegration returns a single integration
func (h *Handler) GetIntegration(w http.ResponseWriter, r *http.Request) {
	in, ok := h.lookupIntegration(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, in)
}

// ListMonitors is the extended read for uptime-monitor integrations,
// executed outside the poll cycle with its own timeout.
func (h *Handler) ListMonitors(w http.ResponseWriter, r *http.Request) {
	drv, ok := h.buildDriver(w, r)
	if !ok {
		return
	}
	defer drv.Close()

	lister, ok := drv.(driver.MonitorLister)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "UNSUPPORTED", "Integration does not expose monitors")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.readTimeout)
	defer cancel()

	monitors, err := lister.ListMonitors(ctx)
	if err != nil {
		h.logger.Error("failed to list monitors", "error", err)
		respondError(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to query upstream service")
		return
	}

	respondJSON(w, http.StatusOK, monitors)
}

// ListGuests is the extended read for virtualization integrations
func (h *Handler) ListGuests(w http.ResponseWriter, r *http.Request) {
	drv, ok := h.buildDriver(w, r)
	if !ok {
		return
	}
	defer drv.Close()

	lister, ok := drv.(driver.GuestLister)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "UNSUPPORTED", "Integration does not expose guests")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.readTimeout)
	defer cancel()

	guests, err := lister.ListGuests(ctx)
	if err != nil {
		h.logger.Error("failed to list guests", "error", err)
		respondError(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to query upstream service")
		return
	}

	respondJSON(w, http.StatusOK, guests)
}

// StatusSnapshot returns the merged status cache and the maintenance flag
func (h *Handler) StatusSnapshot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"items":       h.statusCache.Snapshot(),
		"maintenance": h.maintenance.Enabled(),
	})
}

// PollerState reports whether the scheduler is running
func (h *Handler) PollerState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"active": h.scheduler.IsActive()})
}

// SetMaintenance toggles the maintenance banner flag
func (h *Handler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenance.Event
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	h.maintenance.Set(req.Enabled)
	respondJSON(w, http.StatusOK, maintenance.Event{Enabled: h.maintenance.Enabled()})
}

func (h *Handler) lookupIntegration(w http.ResponseWriter, r *http.Request) (model.Integration, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid integration id")
		return model.Integration{}, false
	}

	in, err := h.store.GetIntegration(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Integration not found")
		return model.Integration{}, false
	}
	if err != nil {
		h.logger.Error("failed to get integration", "error", err)
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get integration")
		return model.Integration{}, false
	}

	return in, true
}

func (h *Handler) buildDriver(w http.ResponseWriter, r *http.Request) (driver.Driver, bool) {
	in, ok := h.lookupIntegration(w, r)
	if !ok {
		return nil, false
	}

	plaintext, err := h.credentials.Decrypt(in.EncryptedCredentials)
	if err != nil {
		h.logger.Error("failed to decrypt credentials", "integration_id", in.ID, "error", err)
		respondError(w, r, http.StatusConflict, "CONFIGURATION_ERROR", "Integration credentials are unusable")
		return nil, false
	}

	drv, err := h.factory.Build(in, plaintext)
	if err != nil {
		h.logger.Error("failed to build driver", "integration_id", in.ID, "error", err)
		respondError(w, r, http.StatusConflict, "CONFIGURATION_ERROR", "Integration is misconfigured")
		return nil, false
	}

	return drv, true
}
