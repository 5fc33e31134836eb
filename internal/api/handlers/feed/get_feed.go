package feed

import (
	"log/slog"
	"net/http"
	"strconv"

	"Murmur/internal/api/middleware"
	"Murmur/internal/core/feeds"
)

// GetFeedHandler serves the personalized feed.
type GetFeedHandler struct {
	service feeds.Service
	logger  *slog.Logger
}

// NewGetFeedHandler creates a new personalized feed handler.
func NewGetFeedHandler(service feeds.Service, logger *slog.Logger) *GetFeedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetFeedHandler{service: service, logger: logger}
}

// HandleGetFeed returns one page of the authenticated viewer's feed.
// GET /api/feed?page=1&limit=20
func (h *GetFeedHandler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	viewerDID := middleware.GetViewerDID(r)
	if viewerDID == "" {
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "Viewer must be authenticated to read their feed")
		return
	}

	req := feeds.GetFeedRequest{
		ViewerDID: viewerDID,
		Page:      queryInt(r, "page", 1),
		Limit:     queryInt(r, "limit", 20),
	}

	page, err := h.service.GetFeed(r.Context(), req)
	if err != nil {
		h.logger.Error("feed request failed", "viewer", viewerDID, "error", err)
		handleServiceError(w, err)
		return
	}

	// The cached page is viewer-neutral; the per-viewer overlay happens
	// on every read, on a copy.
	enriched, err := h.service.EnrichFeedWithCurrentData(r.Context(), page.Data, viewerDID)
	if err != nil {
		h.logger.Error("feed enrichment failed", "viewer", viewerDID, "error", err)
		handleServiceError(w, err)
		return
	}

	out := *page
	out.Data = enriched
	writeJSON(w, http.StatusOK, &out)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
