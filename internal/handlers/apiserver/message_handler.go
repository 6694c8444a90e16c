package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chatlink/internal/delivery"
	"chatlink/internal/middleware"
	"chatlink/internal/models"
)

// MessageHandler exposes the delivery operations over REST for clients
// without a live socket. The same state machine serves both surfaces.
type MessageHandler struct {
	delivery *delivery.Service
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(deliverySvc *delivery.Service) *MessageHandler {
	return &MessageHandler{delivery: deliverySvc}
}

// SendMessageRequest is the REST send body.
type SendMessageRequest struct {
	ConversationID uint   `json:"conversationId,omitempty"`
	ReceiverID     uint   `json:"receiverId"`
	Content        string `json:"content,omitempty"`
	MediaURL       string `json:"mediaUrl,omitempty"`
	ContentType    string `json:"contentType,omitempty"`
}

// SendMessage persists and best-effort delivers a message.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	message, err := h.delivery.Send(r.Context(), delivery.SendInput{
		ConversationID: req.ConversationID,
		SenderID:       userID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		MediaURL:       req.MediaURL,
		ContentType:    models.ContentType(req.ContentType),
	})
	if err != nil {
		h.writeDeliveryError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, message)
}

// MarkReadRequest lists messages to mark read.
type MarkReadRequest struct {
	MessageIDs []uint `json:"messageIds"`
}

// MarkRead transitions the given messages to read.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.delivery.MarkRead(r.Context(), req.MessageIDs, userID); err != nil {
		h.writeDeliveryError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "ok"})
}

// ReactRequest toggles a reaction.
type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// React toggles the authenticated user's reaction on a message.
func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	userID, messageID, ok := h.messageRequest(w, r)
	if !ok {
		return
	}

	var req ReactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.delivery.React(r.Context(), messageID, userID, req.Emoji); err != nil {
		h.writeDeliveryError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "ok"})
}

// RecordMediaView burns one view of a one-time media message for the
// authenticated receiver and returns the message with its remaining view
// count.
func (h *MessageHandler) RecordMediaView(w http.ResponseWriter, r *http.Request) {
	userID, messageID, ok := h.messageRequest(w, r)
	if !ok {
		return
	}
	message, err := h.delivery.RecordMediaView(r.Context(), messageID, userID)
	if err != nil {
		h.writeDeliveryError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, message)
}

// DeleteMessage removes a message on behalf of its sender.
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, messageID, ok := h.messageRequest(w, r)
	if !ok {
		return
	}
	if err := h.delivery.Delete(r.Context(), messageID, userID); err != nil {
		h.writeDeliveryError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (h *MessageHandler) messageRequest(w http.ResponseWriter, r *http.Request) (userID, messageID uint, ok bool) {
	userID, authed := middleware.GetUserIDFromContext(r.Context())
	if !authed {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return 0, 0, false
	}
	id, err := strconv.ParseUint(mux.Vars(r)["messageID"], 10, 32)
	if err != nil {
		writeJSONError(w, "invalid message id", http.StatusBadRequest)
		return 0, 0, false
	}
	return userID, uint(id), true
}

func (h *MessageHandler) writeDeliveryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, delivery.ErrInvalidInput):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, delivery.ErrAccessDenied):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, delivery.ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	default:
		writeJSONError(w, "message operation failed", http.StatusInternalServerError)
	}
}
