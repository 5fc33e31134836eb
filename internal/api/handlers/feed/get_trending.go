package feed

import (
	"log/slog"
	"net/http"

	"Murmur/internal/api/middleware"
	"Murmur/internal/core/feeds"
)

// GetTrendingHandler serves the shared trending feed.
type GetTrendingHandler struct {
	service feeds.Service
	logger  *slog.Logger
}

// NewGetTrendingHandler creates a new trending feed handler.
func NewGetTrendingHandler(service feeds.Service, logger *slog.Logger) *GetTrendingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetTrendingHandler{service: service, logger: logger}
}

// HandleGetTrending returns one page of the trending feed. Anonymous
// viewers get the shared page as-is; authenticated viewers get their
// like/favorite state overlaid.
// GET /api/feed/trending?page=1&limit=20
func (h *GetTrendingHandler) HandleGetTrending(w http.ResponseWriter, r *http.Request) {
	req := feeds.GetTrendingRequest{
		Page:  queryInt(r, "page", 1),
		Limit: queryInt(r, "limit", 20),
	}

	page, err := h.service.GetTrendingFeed(r.Context(), req)
	if err != nil {
		h.logger.Error("trending request failed", "page", req.Page, "error", err)
		handleServiceError(w, err)
		return
	}

	viewerDID := middleware.GetViewerDID(r)
	enriched, err := h.service.EnrichFeedWithCurrentData(r.Context(), page.Data, viewerDID)
	if err != nil {
		h.logger.Error("trending enrichment failed", "viewer", viewerDID, "error", err)
		handleServiceError(w, err)
		return
	}

	out := *page
	out.Data = enriched
	writeJSON(w, http.StatusOK, &out)
}
