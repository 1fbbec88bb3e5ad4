package flags

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arre-ops/arre_server/services/auth"
)

// Handler serves the admin flag endpoints
type Handler struct {
	store    *Store
	resolver *auth.Resolver
}

// NewHandler creates a new flags handler
func NewHandler(store *Store, resolver *auth.Resolver) *Handler {
	return &Handler{store: store, resolver: resolver}
}

// SetFlags handles POST /setFlags (admin only)
func (h *Handler) SetFlags(w http.ResponseWriter, r *http.Request) (int, any) {
	principal, err := h.resolver.Resolve(r)
	if err != nil {
		return http.StatusUnauthorized, map[string]string{"error": "authentication required"}
	}

	var update FlagUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		return http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()}
	}

	updated, err := h.store.Set(r.Context(), principal, update)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrPermissionDenied):
			return http.StatusForbidden, map[string]string{"error": "admin capability required"}
		case errors.Is(err, ErrInvalidValue):
			return http.StatusBadRequest, map[string]string{"error": err.Error()}
		default:
			return http.StatusInternalServerError, map[string]string{"error": err.Error()}
		}
	}

	return http.StatusOK, updated
}

// GetFlags handles POST /getAdminSettingsFlags and its GET alias
func (h *Handler) GetFlags(w http.ResponseWriter, r *http.Request) (int, any) {
	if _, err := h.resolver.Resolve(r); err != nil {
		return http.StatusUnauthorized, map[string]string{"error": "authentication required"}
	}
	return http.StatusOK, h.store.Get()
}
