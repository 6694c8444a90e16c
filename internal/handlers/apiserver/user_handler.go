package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"chatlink/internal/middleware"
	"chatlink/internal/services"
)

// UserHandler serves profile endpoints.
type UserHandler struct {
	userService services.UserService
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetMyProfile returns the authenticated user's own profile.
func (h *UserHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	user, err := h.userService.GetUserProfile(r.Context(), userID)
	if err != nil {
		writeJSONError(w, "failed to load profile", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// UpdateMyProfileRequest is the profile update request body.
type UpdateMyProfileRequest struct {
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// UpdateMyProfile updates the authenticated user's profile.
func (h *UserHandler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req UpdateMyProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	user, err := h.userService.UpdateUserProfile(r.Context(), userID, req.AvatarURL)
	if err != nil {
		writeJSONError(w, "failed to update profile", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// GetUserProfile returns another user's public profile.
func (h *UserHandler) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userID"], 10, 32)
	if err != nil {
		writeJSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	user, err := h.userService.GetUserProfile(r.Context(), uint(userID))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeJSONError(w, "user not found", http.StatusNotFound)
		} else {
			writeJSONError(w, "failed to load user", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, user.BasicInfo())
}

// SearchUsers matches usernames by prefix.
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if len(query) < 2 {
		writeJSONError(w, "query must be at least 2 characters", http.StatusBadRequest)
		return
	}

	users, err := h.userService.SearchUsers(r.Context(), query, userID)
	if err != nil {
		log.Printf("apiserver: user search failed: %v", err)
		writeJSONError(w, "search failed", http.StatusInternalServerError)
		return
	}

	results := make([]any, 0, len(users))
	for i := range users {
		results = append(results, users[i].BasicInfo())
	}
	writeJSONResponse(w, http.StatusOK, results)
}
