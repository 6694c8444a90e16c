package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"chatlink/internal/middleware"
	"chatlink/internal/services"
	"chatlink/internal/storage"
)

// ConversationHandler serves conversation listing, lookup, settings and
// message history.
type ConversationHandler struct {
	convoService services.ConversationService
	messages     storage.MessageRepository
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(convoService services.ConversationService, messages storage.MessageRepository) *ConversationHandler {
	return &ConversationHandler{convoService: convoService, messages: messages}
}

// GetUserConversations lists the authenticated user's conversations.
func (h *ConversationHandler) GetUserConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	limit, offset := paginationParams(r)

	conversations, err := h.convoService.GetUserConversations(r.Context(), userID, limit, offset)
	if err != nil {
		writeJSONError(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, conversations)
}

// CreateConversationRequest identifies the peer to converse with.
type CreateConversationRequest struct {
	PeerID uint `json:"peerId"`
}

// CreateOrGetConversation finds or creates the one-to-one conversation
// with the given peer.
func (h *ConversationHandler) CreateOrGetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeerID == 0 {
		writeJSONError(w, "peerId is required", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	conversation, err := h.convoService.GetOrCreateConversation(r.Context(), userID, req.PeerID)
	if err != nil {
		if errors.Is(err, services.ErrSelfConversation) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		} else {
			writeJSONError(w, "failed to resolve conversation", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, conversation)
}

// GetConversationDetails returns one conversation the user belongs to.
func (h *ConversationHandler) GetConversationDetails(w http.ResponseWriter, r *http.Request) {
	userID, conversationID, ok := h.conversationRequest(w, r)
	if !ok {
		return
	}

	conversation, err := h.convoService.GetConversationDetails(r.Context(), conversationID, userID)
	if err != nil {
		h.writeConversationError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, conversation)
}

// GetConversationMessages pages through a conversation's history.
func (h *ConversationHandler) GetConversationMessages(w http.ResponseWriter, r *http.Request) {
	userID, conversationID, ok := h.conversationRequest(w, r)
	if !ok {
		return
	}
	// Membership check happens through the details lookup.
	if _, err := h.convoService.GetConversationDetails(r.Context(), conversationID, userID); err != nil {
		h.writeConversationError(w, err)
		return
	}

	limit, offset := paginationParams(r)
	messages, err := h.messages.GetByConversationID(r.Context(), conversationID, limit, offset)
	if err != nil {
		writeJSONError(w, "failed to load messages", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, messages)
}

// TemporaryModeRequest toggles disappearing messages.
type TemporaryModeRequest struct {
	Enabled         bool  `json:"enabled"`
	DurationSeconds int64 `json:"durationSeconds,omitempty"`
}

// SetTemporaryMode flips disappearing-message mode on a conversation.
func (h *ConversationHandler) SetTemporaryMode(w http.ResponseWriter, r *http.Request) {
	userID, conversationID, ok := h.conversationRequest(w, r)
	if !ok {
		return
	}

	var req TemporaryModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	conversation, err := h.convoService.SetTemporaryMode(r.Context(), conversationID, userID, req.Enabled, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		h.writeConversationError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, conversation)
}

// MarkConversationRead clears the unread counter.
func (h *ConversationHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	userID, conversationID, ok := h.conversationRequest(w, r)
	if !ok {
		return
	}
	if err := h.convoService.MarkConversationRead(r.Context(), conversationID, userID); err != nil {
		h.writeConversationError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (h *ConversationHandler) conversationRequest(w http.ResponseWriter, r *http.Request) (userID, conversationID uint, ok bool) {
	userID, authed := middleware.GetUserIDFromContext(r.Context())
	if !authed {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return 0, 0, false
	}
	id, err := strconv.ParseUint(mux.Vars(r)["conversationID"], 10, 32)
	if err != nil {
		writeJSONError(w, "invalid conversation id", http.StatusBadRequest)
		return 0, 0, false
	}
	return userID, uint(id), true
}

func (h *ConversationHandler) writeConversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		writeJSONError(w, "conversation not found", http.StatusNotFound)
	case errors.Is(err, services.ErrNotParticipant):
		writeJSONError(w, "not a participant of this conversation", http.StatusForbidden)
	default:
		writeJSONError(w, "conversation operation failed", http.StatusInternalServerError)
	}
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
