// Package coordinator exposes the real-time surface: the WebSocket
// upgrade endpoint and the router that dispatches client events to the
// presence, typing, delivery and call components.
package coordinator

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"chatlink/internal/auth"
	"chatlink/internal/config"
	"chatlink/internal/presence"
	ws "chatlink/internal/websocket"
)

// WebSocketHandler upgrades authenticated HTTP requests and hands the
// resulting connection to the presence registry and the event router.
type WebSocketHandler struct {
	registry  *presence.Registry
	router    *Router
	blacklist auth.TokenBlacklist
	cfg       config.Config
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler creates the WebSocket entry point.
func NewWebSocketHandler(registry *presence.Registry, router *Router, blacklist auth.TokenBlacklist, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		registry:  registry,
		router:    router,
		blacklist: blacklist,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.WebSocket.MaxMessageSizeBytes,
			WriteBufferSize: cfg.WebSocket.MaxMessageSizeBytes,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS authenticates the token query parameter, upgrades the
// connection and registers it as the user's live connection.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing authentication token", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ValidateToken(r.Context(), token, h.cfg.Auth.JWTSecretKey, h.blacklist)
	if err != nil {
		log.Printf("coordinator: rejected socket, invalid token: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("coordinator: upgrade failed for user %d: %v", claims.UserID, err)
		return
	}

	// The request context dies with this handler; disconnects happen long
	// after, so they run against the background context.
	client := ws.NewClient(conn, claims.UserID, h.cfg.WebSocket, h.router.Dispatch, func(connID string) {
		h.registry.Disconnect(context.Background(), connID)
	})
	h.registry.Connect(r.Context(), claims.UserID, client)
	client.Run()
	log.Printf("coordinator: user %s (ID %d) connected", claims.Username, claims.UserID)
}
