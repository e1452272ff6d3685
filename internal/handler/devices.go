package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/KlinikCare/attendance-service/internal/repository"
	"github.com/KlinikCare/attendance-service/internal/service"
	"github.com/KlinikCare/attendance-service/internal/util/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DeviceHandler exposes the device session surface: registration, listing,
// verification, primary promotion, revocation and the force-single repair.
type DeviceHandler struct {
	manager *service.DeviceSessionManager
}

func NewDeviceHandler(manager *service.DeviceSessionManager) *DeviceHandler {
	return &DeviceHandler{manager: manager}
}

type registerDeviceRequest struct {
	UserID      string `json:"user_id" validate:"required,uuid4"`
	Fingerprint string `json:"fingerprint" validate:"required"`
	Platform    string `json:"platform" validate:"required,oneof=android ios web"`
	Label       string `json:"label"`
}

// Register handles POST /api/v1/devices.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	dev, err := h.manager.RegisterDevice(r.Context(), userID, req.Fingerprint, req.Platform, req.Label)
	if err != nil {
		logger.Error("register device for user %s: %v", userID, err)
		writeJSONError(w, http.StatusInternalServerError, "device registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// List handles GET /api/v1/users/{userID}/devices.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	devices, err := h.manager.ListDevices(r.Context(), userID)
	if err != nil {
		logger.Error("list devices for user %s: %v", userID, err)
		writeJSONError(w, http.StatusInternalServerError, "device listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}

// Primary handles GET /api/v1/users/{userID}/devices/primary.
func (h *DeviceHandler) Primary(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	dev, err := h.manager.PrimaryDevice(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "no primary device")
			return
		}
		logger.Error("primary device for user %s: %v", userID, err)
		writeJSONError(w, http.StatusInternalServerError, "primary device lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// Verify handles POST /api/v1/devices/{deviceID}/verify.
func (h *DeviceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id uuid.UUID) error {
		_, err := h.manager.Verify(r.Context(), id)
		return err
	}, "verified")
}

// SetPrimary handles POST /api/v1/devices/{deviceID}/primary.
func (h *DeviceHandler) SetPrimary(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id uuid.UUID) error {
		return h.manager.SetPrimary(r.Context(), id)
	}, "primary")
}

// Revoke handles POST /api/v1/devices/{deviceID}/revoke.
func (h *DeviceHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id uuid.UUID) error {
		return h.manager.Revoke(r.Context(), id)
	}, "revoked")
}

// ForceSingle handles POST /api/v1/devices/{deviceID}/force-single.
// Admin-only: suspends every other device of the owner.
func (h *DeviceHandler) ForceSingle(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id uuid.UUID) error {
		return h.manager.ForceSingleDevice(r.Context(), id)
	}, "forced_single")
}

func (h *DeviceHandler) mutate(w http.ResponseWriter, r *http.Request, op func(uuid.UUID) error, status string) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid device id")
		return
	}
	if err := op(deviceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "device not found")
			return
		}
		logger.Error("device %s %s: %v", deviceID, status, err)
		writeJSONError(w, http.StatusInternalServerError, "device update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"device_id": deviceID.String(), "status": status})
}
