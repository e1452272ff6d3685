package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/KlinikCare/attendance-service/internal/middleware"
	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/service"
	"github.com/KlinikCare/attendance-service/internal/util/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AdminHandler groups the operator surface: detection config management,
// unblocking users and the retention purge trigger.
type AdminHandler struct {
	store     *service.ConfigStore
	evaluator *service.Evaluator
	retention *service.RetentionService
}

func NewAdminHandler(store *service.ConfigStore, evaluator *service.Evaluator, retention *service.RetentionService) *AdminHandler {
	return &AdminHandler{store: store, evaluator: evaluator, retention: retention}
}

// GetConfig handles GET /api/v1/admin/detection-config.
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Current(r.Context()))
}

// SaveConfig handles PUT /api/v1/admin/detection-config. Rejects invalid
// configs; the previous config stays in force.
func (h *AdminHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.DetectionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.Save(r.Context(), &cfg); err != nil {
		if errors.Is(err, models.ErrInvalidConfig) {
			writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		logger.Error("save detection config: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "config save failed")
		return
	}
	writeJSON(w, http.StatusOK, h.store.Current(r.Context()))
}

// ReloadConfig handles POST /api/v1/admin/detection-config/reload. Drops the
// cached snapshot so the next evaluation picks up external edits.
func (h *AdminHandler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	h.evaluator.ReloadConfig(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// Unblock handles POST /api/v1/admin/users/{userID}/unblock.
func (h *AdminHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	liftedBy := uuid.Nil
	if admin, ok := r.Context().Value(middleware.ContextAdminID).(string); ok {
		if id, err := uuid.Parse(admin); err == nil {
			liftedBy = id
		}
	}

	if err := h.evaluator.AdminUnblock(r.Context(), userID, liftedBy); err != nil {
		logger.Error("unblock user %s: %v", userID, err)
		writeJSONError(w, http.StatusInternalServerError, "unblock failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID.String(), "status": "unblocked"})
}

// PurgeResults handles POST /api/v1/admin/retention/purge. Invoked by the
// external scheduler; returns how many rows fell out of the retention window.
func (h *AdminHandler) PurgeResults(w http.ResponseWriter, r *http.Request) {
	n, err := h.retention.PurgeExpiredResults(r.Context())
	if err != nil {
		logger.Error("retention purge: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "purge failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"purged": n})
}
