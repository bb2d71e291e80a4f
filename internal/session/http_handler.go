package session

import (
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/risk"
	"github.com/Krimson/strokeguard/internal/scan"
)

const maxFrameBytes = 8 << 20

// HTTPHandler exposes scan sessions over REST.
type HTTPHandler struct {
	manager *Manager
	logger  *zap.Logger
}

func NewHTTPHandler(manager *Manager, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		manager: manager,
		logger:  logger,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/scans").Subrouter()

	api.HandleFunc("", h.StartScan).Methods("POST")
	api.HandleFunc("", h.ListScans).Methods("GET")
	api.HandleFunc("/{id}", h.GetScan).Methods("GET")
	api.HandleFunc("/{id}", h.DeleteScan).Methods("DELETE")
	api.HandleFunc("/{id}/stop", h.StopScan).Methods("POST")
	api.HandleFunc("/{id}/baseline", h.SetScanBaseline).Methods("PUT")
	api.HandleFunc("/{id}/frames", h.PushFrame).Methods("POST")

	users := router.PathPrefix("/api/users/{user}").Subrouter()
	users.HandleFunc("/baseline", h.GetUserBaseline).Methods("GET")
	users.HandleFunc("/baseline", h.SetUserBaseline).Methods("PUT")
	users.HandleFunc("/streak", h.GetStreak).Methods("GET")

	router.HandleFunc("/api/risk/score", h.Score).Methods("POST")
}

// StartScan starts a new scan session
// @Summary Start a scan
// @Tags Scans
// @Accept json
// @Produce json
// @Param request body CreateScanRequest true "Scan parameters"
// @Success 201 {object} SessionResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/scans [post]
func (h *HTTPHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req CreateScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s, err := h.manager.StartScan(r.Context(), &req)
	if err != nil {
		status := statusForError(err)
		h.logger.Error("[SESSION] failed to start scan", zap.Int("status", status), zap.Error(err))
		body := map[string]interface{}{
			"error":  err.Error(),
			"status": status,
		}
		if s != nil {
			body["session"] = s
			body["code"] = scan.CodeFor(err)
		}
		respondJSON(w, status, body)
		return
	}

	respondJSON(w, http.StatusCreated, SessionResponse{Session: s})
}

// ListScans returns a user's scan history
// @Summary List scan history
// @Tags Scans
// @Produce json
// @Param user_id query string false "User ID"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Router /api/scans [get]
func (h *HTTPHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit := getQueryInt(r, "limit", 50)
	offset := getQueryInt(r, "offset", 0)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	records, err := h.manager.ListScans(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("[SESSION] failed to list scans", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list scans")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scans":  records,
		"limit":  limit,
		"offset": offset,
		"count":  len(records),
	})
}

// GetScan returns a session with its progress and outcome
// @Summary Get a scan
// @Tags Scans
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} map[string]interface{}
// @Router /api/scans/{id} [get]
func (h *HTTPHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	resp, err := h.manager.Details(r.Context(), sessionID)
	if err != nil {
		respondError(w, statusForError(err), "Session not found")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// StopScan cancels a running scan
// @Summary Stop a scan
// @Tags Scans
// @Produce json
// @Param id path string true "Session ID"
// @Router /api/scans/{id}/stop [post]
func (h *HTTPHandler) StopScan(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	s, err := h.manager.StopScan(r.Context(), sessionID)
	if err != nil {
		h.logger.Warn("[SESSION] failed to stop scan", zap.String("session_id", sessionID), zap.Error(err))
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Session: s})
}

// DeleteScan removes a session and its history
// @Summary Delete a scan
// @Tags Scans
// @Param id path string true "Session ID"
// @Router /api/scans/{id} [delete]
func (h *HTTPHandler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.DeleteScan(r.Context(), sessionID); err != nil {
		h.logger.Error("[SESSION] failed to delete scan", zap.String("session_id", sessionID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete scan")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Scan deleted successfully",
		"session_id": sessionID,
	})
}

// SetScanBaseline updates the baseline used by a running scan
// @Summary Set the lifestyle baseline for a scan
// @Tags Scans
// @Accept json
// @Param id path string true "Session ID"
// @Param baseline body risk.Baseline true "Baseline"
// @Router /api/scans/{id}/baseline [put]
func (h *HTTPHandler) SetScanBaseline(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var b risk.Baseline
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.manager.SetBaseline(r.Context(), sessionID, b); err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Baseline updated",
		"session_id": sessionID,
	})
}

// PushFrame feeds one PNG or JPEG frame to a push-source scan. The optional
// ts query parameter is the capture time in unix milliseconds.
// @Summary Upload a frame
// @Tags Scans
// @Accept image/png,image/jpeg
// @Param id path string true "Session ID"
// @Param ts query int false "Capture time, unix ms"
// @Router /api/scans/{id}/frames [post]
func (h *HTTPHandler) PushFrame(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	img, _, err := image.Decode(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid image")
		return
	}

	var ts time.Time
	if ms := r.URL.Query().Get("ts"); ms != "" {
		v, err := strconv.ParseInt(ms, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid ts")
			return
		}
		ts = time.UnixMilli(v)
	}

	if err := h.manager.PushFrame(sessionID, img, ts); err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// @Summary Get a user's latest baseline
// @Tags Users
// @Param user path string true "User ID"
// @Router /api/users/{user}/baseline [get]
func (h *HTTPHandler) GetUserBaseline(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]

	b, err := h.manager.GetUserBaseline(r.Context(), userID)
	if err != nil {
		h.logger.Error("[SESSION] failed to get baseline", zap.String("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get baseline")
		return
	}
	if b == nil {
		respondError(w, http.StatusNotFound, "Baseline not found")
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// @Summary Store a user's baseline
// @Tags Users
// @Param user path string true "User ID"
// @Param baseline body risk.Baseline true "Baseline"
// @Router /api/users/{user}/baseline [put]
func (h *HTTPHandler) SetUserBaseline(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]

	var b risk.Baseline
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.manager.SetUserBaseline(r.Context(), userID, b); err != nil {
		h.logger.Error("[SESSION] failed to store baseline", zap.String("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to store baseline")
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// @Summary Daily check streak
// @Tags Users
// @Param user path string true "User ID"
// @Success 200 {object} Streak
// @Router /api/users/{user}/streak [get]
func (h *HTTPHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]

	streak, err := h.manager.Streak(r.Context(), userID)
	if err != nil {
		h.logger.Error("[SESSION] failed to compute streak", zap.String("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to compute streak")
		return
	}
	respondJSON(w, http.StatusOK, streak)
}

// Score runs the risk engine on supplied vitals
// @Summary Score vitals
// @Tags Risk
// @Accept json
// @Produce json
// @Param request body ScoreRequest true "Baseline and metrics"
// @Success 200 {object} ScoreResponse
// @Router /api/risk/score [post]
func (h *HTTPHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, h.manager.Score(req))
}

// ===== Helpers =====

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ppg.ErrUnknownMode), errors.Is(err, ErrUnknownSource), errors.Is(err, ErrNotPushSource):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionInactive), errors.Is(err, scan.ErrDeviceBusy), errors.Is(err, scan.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, ErrFrameRejected):
		return http.StatusServiceUnavailable
	case errors.Is(err, scan.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, scan.ErrDeviceNotFound):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode JSON response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}

func getQueryInt(r *http.Request, key string, defaultValue int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
