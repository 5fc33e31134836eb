package feed

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"Murmur/internal/api/middleware"
	"Murmur/internal/core/views"
)

// RecordViewHandler records post views.
type RecordViewHandler struct {
	service views.Service
	logger  *slog.Logger
}

// NewRecordViewHandler creates a new view recording handler.
func NewRecordViewHandler(service views.Service, logger *slog.Logger) *RecordViewHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordViewHandler{service: service, logger: logger}
}

// HandleRecordView counts a view of the post by the authenticated viewer,
// at most once ever per (post, viewer). The response reports whether this
// request produced the counted view; the counter increment itself is
// deferred and not reflected here.
// POST /api/posts/{postID}/view
func (h *RecordViewHandler) HandleRecordView(w http.ResponseWriter, r *http.Request) {
	viewerDID := middleware.GetViewerDID(r)
	if viewerDID == "" {
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "Viewer must be authenticated to record a view")
		return
	}

	postID := chi.URLParam(r, "postID")

	counted, err := h.service.RecordView(r.Context(), postID, viewerDID)
	if err != nil {
		h.logger.Error("view record failed", "post", postID, "viewer", viewerDID, "error", err)
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"counted": counted})
}
