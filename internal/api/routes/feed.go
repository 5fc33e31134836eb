package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	feedHandlers "Murmur/internal/api/handlers/feed"
	"Murmur/internal/api/middleware"
	"Murmur/internal/core/feeds"
	"Murmur/internal/core/views"
)

// RegisterFeedRoutes registers the feed and view-recording endpoints.
func RegisterFeedRoutes(
	r chi.Router,
	feedService feeds.Service,
	viewService views.Service,
	auth *middleware.AuthMiddleware,
	viewLimiter *middleware.RateLimiter,
	logger *slog.Logger,
) {
	getFeed := feedHandlers.NewGetFeedHandler(feedService, logger)
	getTrending := feedHandlers.NewGetTrendingHandler(feedService, logger)
	recordView := feedHandlers.NewRecordViewHandler(viewService, logger)

	// Personalized feed requires a viewer identity.
	r.With(auth.RequireAuth).Get("/api/feed", getFeed.HandleGetFeed)

	// Trending is public; authenticated viewers get enrichment.
	r.With(auth.OptionalAuth).Get("/api/feed/trending", getTrending.HandleGetTrending)

	// View recording is authenticated and rate limited per viewer.
	r.With(auth.RequireAuth, viewLimiter.Middleware).
		Post("/api/posts/{postID}/view", recordView.HandleRecordView)
}
