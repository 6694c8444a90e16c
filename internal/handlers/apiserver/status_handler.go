package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chatlink/internal/middleware"
	"chatlink/internal/models"
	"chatlink/internal/services"
)

// StatusHandler serves the status (story) surface.
type StatusHandler struct {
	statuses services.StatusService
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(statuses services.StatusService) *StatusHandler {
	return &StatusHandler{statuses: statuses}
}

// CreateStatusRequest is the create body for a status. Media statuses
// reference a previously uploaded file by URL.
type CreateStatusRequest struct {
	Content     string `json:"content,omitempty"`
	MediaURL    string `json:"mediaUrl,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Create posts a new status.
func (h *StatusHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req CreateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	status, err := h.statuses.Create(r.Context(), userID, services.StatusInput{
		Content:     req.Content,
		MediaURL:    req.MediaURL,
		ContentType: models.ContentType(req.ContentType),
	})
	if err != nil {
		h.writeStatusError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, status)
}

// List returns all statuses that have not yet expired.
func (h *StatusHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserIDFromContext(r.Context()); !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	statuses, err := h.statuses.ListActive(r.Context())
	if err != nil {
		writeJSONError(w, "failed to list statuses", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, statuses)
}

// View records the authenticated user as a viewer of the status.
func (h *StatusHandler) View(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.statusRequest(w, r)
	if !ok {
		return
	}
	status, err := h.statuses.View(r.Context(), id, userID)
	if err != nil {
		h.writeStatusError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, status)
}

// Delete removes a status owned by the authenticated user.
func (h *StatusHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.statusRequest(w, r)
	if !ok {
		return
	}
	if err := h.statuses.Delete(r.Context(), id, userID); err != nil {
		h.writeStatusError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (h *StatusHandler) statusRequest(w http.ResponseWriter, r *http.Request) (userID, id uint, ok bool) {
	userID, authed := middleware.GetUserIDFromContext(r.Context())
	if !authed {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return 0, 0, false
	}
	parsed, err := strconv.ParseUint(mux.Vars(r)["statusID"], 10, 32)
	if err != nil {
		writeJSONError(w, "invalid status id", http.StatusBadRequest)
		return 0, 0, false
	}
	return userID, uint(parsed), true
}

func (h *StatusHandler) writeStatusError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrStatusNotFound):
		writeJSONError(w, "status not found", http.StatusNotFound)
	case errors.Is(err, services.ErrStatusNotOwner):
		writeJSONError(w, "status belongs to another user", http.StatusForbidden)
	case errors.Is(err, services.ErrStatusContentRequired):
		writeJSONError(w, "status content is required", http.StatusBadRequest)
	case errors.Is(err, services.ErrStatusContentTooLong):
		writeJSONError(w, "status text exceeds 500 characters", http.StatusBadRequest)
	case errors.Is(err, services.ErrStatusBadContentType):
		writeJSONError(w, "unsupported status content type", http.StatusBadRequest)
	default:
		writeJSONError(w, "status operation failed", http.StatusInternalServerError)
	}
}
