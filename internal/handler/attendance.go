package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/service"
	"github.com/KlinikCare/attendance-service/internal/util/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// AttendanceHandler exposes the check-in/check-out evaluation endpoint.
type AttendanceHandler struct {
	evaluator *service.Evaluator
}

func NewAttendanceHandler(evaluator *service.Evaluator) *AttendanceHandler {
	return &AttendanceHandler{evaluator: evaluator}
}

type checkInRequest struct {
	UserID            string  `json:"user_id" validate:"required,uuid4"`
	WorkLocationID    string  `json:"work_location_id" validate:"required,uuid4"`
	ShiftCode         string  `json:"shift_code" validate:"required"`
	Operation         string  `json:"operation" validate:"required,oneof=check_in check_out"`
	Timestamp         string  `json:"timestamp"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	AccuracyMeters    float64 `json:"accuracy_meters" validate:"gte=0"`
	DeviceFingerprint string  `json:"device_fingerprint" validate:"required"`

	MockLocationEnabled      bool     `json:"mock_location_enabled"`
	DeveloperModeEnabled     bool     `json:"developer_mode_enabled"`
	InstalledFakeGPSPackages []string `json:"installed_fake_gps_packages"`
	DeviceIntegrityFlags     []string `json:"device_integrity_flags"`
}

// Evaluate handles POST /api/v1/attendance/check-in. The response always
// carries the full verdict; enforcement maps onto the HTTP status so thin
// clients can branch on it without parsing the body.
func (h *AttendanceHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
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
	locationID, err := uuid.Parse(req.WorkLocationID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid work_location_id")
		return
	}

	ts := time.Now()
	if req.Timestamp != "" {
		ts, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
	}

	attempt := &models.CheckInAttempt{
		ID:                       uuid.New(),
		UserID:                   userID,
		WorkLocationID:           locationID,
		ShiftCode:                req.ShiftCode,
		Operation:                models.AttendanceOp(req.Operation),
		Timestamp:                ts,
		Latitude:                 req.Latitude,
		Longitude:                req.Longitude,
		AccuracyMeters:           req.AccuracyMeters,
		DeviceFingerprint:        req.DeviceFingerprint,
		IPAddress:                clientIP(r),
		MockLocationEnabled:      req.MockLocationEnabled,
		DeveloperModeEnabled:     req.DeveloperModeEnabled,
		InstalledFakeGPSPackages: req.InstalledFakeGPSPackages,
		DeviceIntegrityFlags:     req.DeviceIntegrityFlags,
	}

	res, err := h.evaluator.Evaluate(r.Context(), attempt)
	if err != nil {
		logger.Error("evaluate attempt %s: %v", attempt.ID, err)
		writeJSONError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	status := http.StatusOK
	if res.Action == models.ActionBlocked {
		status = http.StatusForbidden
	}
	writeJSON(w, status, res)
}

// History handles GET /api/v1/users/{userID}/results.
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	results, err := h.evaluator.RecentResults(r.Context(), userID, limit)
	if err != nil {
		logger.Error("list results for user %s: %v", userID, err)
		writeJSONError(w, http.StatusInternalServerError, "result listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// clientIP relies on the RealIP middleware having already resolved proxy
// headers into RemoteAddr; all that remains here is shedding the port from
// direct connections.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
