package alerts

import (
	"net/http"
	"strconv"

	"github.com/arre-ops/arre_server/services/auth"
)

// Handler serves the alert record query endpoints
type Handler struct {
	storage  *Storage
	resolver *auth.Resolver
}

// NewHandler creates a new alerts handler
func NewHandler(storage *Storage, resolver *auth.Resolver) *Handler {
	return &Handler{storage: storage, resolver: resolver}
}

// Search handles GET /v1/alerts
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) (int, any) {
	if _, err := h.resolver.Resolve(r); err != nil {
		return http.StatusUnauthorized, map[string]string{"error": "authentication required"}
	}

	q := r.URL.Query()
	filters := SearchFilters{
		Source:        q.Get("source"),
		AlertName:     q.Get("alert_name"),
		SelectionMode: q.Get("selection_mode"),
		Severity:      q.Get("severity"),
		Status:        q.Get("status"),
		Query:         q.Get("q"),
	}
	if limit := q.Get("limit"); limit != "" {
		filters.Limit, _ = strconv.Atoi(limit)
	}
	if offset := q.Get("offset"); offset != "" {
		filters.Offset, _ = strconv.Atoi(offset)
	}

	records, total, err := h.storage.Search(r.Context(), filters)
	if err != nil {
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}
	return http.StatusOK, map[string]any{
		"alerts": records,
		"total":  total,
		"limit":  filters.Limit,
		"offset": filters.Offset,
	}
}

// GetByID handles GET /v1/alerts/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request, id string) (int, any) {
	if _, err := h.resolver.Resolve(r); err != nil {
		return http.StatusUnauthorized, map[string]string{"error": "authentication required"}
	}

	record, err := h.storage.GetByID(r.Context(), id)
	if err != nil {
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}
	if record == nil {
		return http.StatusNotFound, map[string]string{"error": "alert record not found"}
	}
	return http.StatusOK, record
}

// GetStats handles GET /v1/alerts/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) (int, any) {
	if _, err := h.resolver.Resolve(r); err != nil {
		return http.StatusUnauthorized, map[string]string{"error": "authentication required"}
	}

	stats, err := h.storage.GetStats(r.Context())
	if err != nil {
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}
	return http.StatusOK, stats
}
