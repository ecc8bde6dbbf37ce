package routes

import (
	"net/http"

	"frserver/internal/bus"
	"frserver/internal/config"
	"frserver/internal/handlers"
	"frserver/internal/identity"
	"frserver/internal/logger"
)

// SetupRoutes registers the websocket and API endpoints.
func SetupRoutes(b *bus.Bus, store identity.Store, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Websocket endpoints
	mux.HandleFunc("/api/stream", handlers.StreamWebsocketHandler(b, cfg, logger))
	mux.HandleFunc("/api/dialog", handlers.DialogWebsocketHandler(b, logger))

	// Identity admin endpoints
	mux.HandleFunc("/api/identities", handlers.ListIdentitiesHandler(store, logger))
	mux.HandleFunc("/api/identities/rename", handlers.RenameIdentityHandler(store, logger))

	return mux
}
