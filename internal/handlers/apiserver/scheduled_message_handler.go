package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"chatlink/internal/middleware"
	"chatlink/internal/models"
	"chatlink/internal/services"
)

// ScheduledMessageHandler serves deferred message CRUD.
type ScheduledMessageHandler struct {
	scheduled services.ScheduledMessageService
}

// NewScheduledMessageHandler creates a ScheduledMessageHandler.
func NewScheduledMessageHandler(scheduled services.ScheduledMessageService) *ScheduledMessageHandler {
	return &ScheduledMessageHandler{scheduled: scheduled}
}

// ScheduleRequest is the create body for a deferred message.
type ScheduleRequest struct {
	ReceiverID    uint      `json:"receiverId"`
	Content       string    `json:"content,omitempty"`
	MediaURL      string    `json:"mediaUrl,omitempty"`
	ContentType   string    `json:"contentType,omitempty"`
	ScheduledTime time.Time `json:"scheduledTime"`

	IsOneTimeMedia     bool  `json:"isOneTimeMedia,omitempty"`
	ViewLimit          int   `json:"viewLimit,omitempty"`
	MediaExpirySeconds int64 `json:"mediaExpirySeconds,omitempty"`
}

// Create schedules a new deferred message.
func (h *ScheduledMessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	item, err := h.scheduled.Schedule(r.Context(), userID, services.ScheduleInput{
		ReceiverID:          req.ReceiverID,
		Content:             req.Content,
		MediaURL:            req.MediaURL,
		ContentType:         models.ContentType(req.ContentType),
		ScheduledTime:       req.ScheduledTime,
		IsOneTimeMedia:      req.IsOneTimeMedia,
		ViewLimit:           req.ViewLimit,
		MediaExpiryDuration: time.Duration(req.MediaExpirySeconds) * time.Second,
	})
	if err != nil {
		h.writeScheduledError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, item)
}

// UpdateScheduleRequest is the update body for a pending item.
type UpdateScheduleRequest struct {
	Content       string    `json:"content,omitempty"`
	ScheduledTime time.Time `json:"scheduledTime,omitempty"`
}

// Update edits a pending deferred message.
func (h *ScheduledMessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.scheduledRequest(w, r)
	if !ok {
		return
	}

	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	item, err := h.scheduled.Update(r.Context(), id, userID, req.Content, req.ScheduledTime)
	if err != nil {
		h.writeScheduledError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, item)
}

// Cancel abandons a pending deferred message.
func (h *ScheduledMessageHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.scheduledRequest(w, r)
	if !ok {
		return
	}
	if err := h.scheduled.Cancel(r.Context(), id, userID); err != nil {
		h.writeScheduledError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "cancelled"})
}

// List returns the authenticated user's pending deferred messages,
// optionally filtered to one conversation.
func (h *ScheduledMessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	var conversationID uint
	if v, err := strconv.ParseUint(r.URL.Query().Get("conversationId"), 10, 32); err == nil {
		conversationID = uint(v)
	}

	items, err := h.scheduled.ListPending(r.Context(), userID, conversationID)
	if err != nil {
		writeJSONError(w, "failed to list scheduled messages", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, items)
}

func (h *ScheduledMessageHandler) scheduledRequest(w http.ResponseWriter, r *http.Request) (userID, id uint, ok bool) {
	userID, authed := middleware.GetUserIDFromContext(r.Context())
	if !authed {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return 0, 0, false
	}
	parsed, err := strconv.ParseUint(mux.Vars(r)["scheduledID"], 10, 32)
	if err != nil {
		writeJSONError(w, "invalid scheduled message id", http.StatusBadRequest)
		return 0, 0, false
	}
	return userID, uint(parsed), true
}

func (h *ScheduledMessageHandler) writeScheduledError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrScheduledNotFound):
		writeJSONError(w, "scheduled message not found", http.StatusNotFound)
	case errors.Is(err, services.ErrScheduledNotOwner):
		writeJSONError(w, "scheduled message belongs to another user", http.StatusForbidden)
	case errors.Is(err, services.ErrScheduledNotPending):
		writeJSONError(w, "scheduled message is no longer pending", http.StatusConflict)
	case errors.Is(err, services.ErrScheduleInPast):
		writeJSONError(w, "scheduled time must be in the future", http.StatusBadRequest)
	default:
		writeJSONError(w, "scheduled message operation failed", http.StatusInternalServerError)
	}
}
