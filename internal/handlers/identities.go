package handlers

import (
	"encoding/json"
	"net/http"

	"frserver/internal/identity"
	"frserver/internal/logger"
)

// ListIdentitiesHandler returns all enrolled identities with visit counts.
func ListIdentitiesHandler(store identity.Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		summaries, err := store.List()
		if err != nil {
			logger.Error("Failed to list identities: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summaries); err != nil {
			logger.Error("Failed to encode identities: %v", err)
		}
	}
}

// RenameIdentityHandler sets an identity's display name (operator action).
func RenameIdentityHandler(store identity.Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			IdentityID  string `json:"identity_id"`
			DisplayName string `json:"display_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.IdentityID == "" || req.DisplayName == "" {
			http.Error(w, "identity_id and display_name are required", http.StatusBadRequest)
			return
		}

		if err := store.Rename(req.IdentityID, req.DisplayName); err != nil {
			logger.Error("Failed to rename identity %s: %v", req.IdentityID, err)
			http.Error(w, "Rename failed", http.StatusNotFound)
			return
		}

		logger.Info("identity %s renamed to %q", req.IdentityID, req.DisplayName)
		w.WriteHeader(http.StatusNoContent)
	}
}
