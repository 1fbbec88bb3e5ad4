package workspaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/arre-ops/arre_server/services/auth"
)

// Handler serves the workspace admin endpoints
type Handler struct {
	manager  *Manager
	resolver *auth.Resolver
}

// NewHandler creates a new workspaces handler
func NewHandler(manager *Manager, resolver *auth.Resolver) *Handler {
	return &Handler{manager: manager, resolver: resolver}
}

// List handles GET /v1/workspaces
func (h *Handler) List(w http.ResponseWriter, r *http.Request) (int, any) {
	if _, err := h.resolver.Resolve(r); err != nil {
		return http.StatusUnauthorized, map[string]string{"error": "authentication required"}
	}

	all, err := h.manager.GetAll()
	if err != nil {
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}
	return http.StatusOK, map[string]any{"workspaces": all}
}

// Create handles POST /v1/workspaces (admin only)
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) (int, any) {
	principal, err := h.resolver.Resolve(r)
	if err != nil {
		return http.StatusUnauthorized, map[string]string{"error": "authentication required"}
	}
	if err := auth.RequireAdmin(principal); err != nil {
		return http.StatusForbidden, map[string]string{"error": "admin capability required"}
	}

	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()}
	}
	if req.Name == "" {
		return http.StatusBadRequest, map[string]string{"error": "workspace name is required"}
	}

	created, err := h.manager.Create(Workspace{
		Name:          req.Name,
		Description:   req.Description,
		Source:        req.Source,
		LabelSelector: req.LabelSelector,
		IsDefault:     req.IsDefault,
		Active:        true,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateWorkspace) {
			return http.StatusConflict, map[string]string{"error": err.Error()}
		}
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}
	return http.StatusCreated, created
}

// Delete handles DELETE /v1/workspaces/{id} (admin only)
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request, idParam string) (int, any) {
	principal, err := h.resolver.Resolve(r)
	if err != nil {
		return http.StatusUnauthorized, map[string]string{"error": "authentication required"}
	}
	if err := auth.RequireAdmin(principal); err != nil {
		return http.StatusForbidden, map[string]string{"error": "admin capability required"}
	}

	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		return http.StatusBadRequest, map[string]string{"error": "invalid workspace id"}
	}
	if err := h.manager.Delete(id); err != nil {
		if errors.Is(err, ErrWorkspaceNotFound) {
			return http.StatusNotFound, map[string]string{"error": err.Error()}
		}
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}
	return http.StatusNoContent, nil
}
