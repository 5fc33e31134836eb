package feeds

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"Murmur/internal/core/posts"
	"Murmur/internal/core/retry"
)

const (
	defaultLimit = 20
	maxLimit     = 50
)

type feedService struct {
	repo      Repository
	viewers   ViewerReader
	trending  TrendingStore
	engage    EngagementReader
	cache     Cache
	events    EventPublisher
	coldStart ColdStartConfig
	retryCfg  retry.Config
	logger    *slog.Logger
}

// NewFeedService creates the feed rank engine. The cache and the trending
// store are best-effort accelerators; every generation path works with only
// the repository available.
func NewFeedService(
	repo Repository,
	viewers ViewerReader,
	trending TrendingStore,
	engage EngagementReader,
	cache Cache,
	events EventPublisher,
	coldStart ColdStartConfig,
	logger *slog.Logger,
) Service {
	if coldStart.TopAffinityTags <= 0 {
		coldStart.TopAffinityTags = DefaultColdStartConfig.TopAffinityTags
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &feedService{
		repo:      repo,
		viewers:   viewers,
		trending:  trending,
		engage:    engage,
		cache:     cache,
		events:    events,
		coldStart: coldStart,
		retryCfg: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   50 * time.Millisecond,
			MaxDelay:    time.Second,
			ShouldRetry: isTransient,
		},
		logger: logger,
	}
}

// isTransient keeps the retry executor away from failures that a second
// attempt cannot fix.
func isTransient(err error) bool {
	return !posts.IsNotFound(err) && !posts.IsValidationError(err)
}

// GetFeed serves the personalized feed: cache check, then cold-start or
// personalized generation, then cache populate.
func (s *feedService) GetFeed(ctx context.Context, req GetFeedRequest) (*FeedPage, error) {
	if err := s.validateFeedRequest(&req); err != nil {
		return nil, err
	}

	key := CacheKey(req.ViewerDID, req.Page, req.Limit)
	if v, ok := s.cache.GetWithTags(key); ok {
		if page, ok := v.(*FeedPage); ok {
			return page, nil
		}
	}

	page, err := s.generatePersonalized(ctx, req)
	if err != nil {
		if posts.IsNotFound(err) || posts.IsValidationError(err) {
			return nil, err
		}
		return nil, newGenerationError(req.ViewerDID, req.Page, err)
	}

	s.cache.SetWithTags(key, page, CacheTags(req.ViewerDID, req.Page, req.Limit), CacheTTL)
	return page, nil
}

func (s *feedService) generatePersonalized(ctx context.Context, req GetFeedRequest) (*FeedPage, error) {
	viewer, err := retry.Execute(ctx, func(ctx context.Context) (*Viewer, error) {
		return s.viewers.ResolveViewer(ctx, req.ViewerDID)
	}, s.retryCfg)
	if err != nil {
		return nil, err
	}

	affinityTags, err := retry.Execute(ctx, func(ctx context.Context) ([]string, error) {
		return s.viewers.GetAffinityTags(ctx, viewer.ID, s.coldStart.TopAffinityTags)
	}, s.retryCfg)
	if err != nil {
		return nil, err
	}

	followedIDs, err := retry.Execute(ctx, func(ctx context.Context) ([]int64, error) {
		return s.viewers.GetFollowedAuthorIDs(ctx, viewer.ID)
	}, s.retryCfg)
	if err != nil {
		return nil, err
	}

	var data []*posts.FeedPost
	var total int

	if s.coldStart.isColdStart(len(followedIDs), len(affinityTags)) {
		data, total, err = s.generateColdStart(ctx, req)
	} else {
		data, total, err = s.generateForViewer(ctx, viewer.ID, affinityTags, followedIDs, req)
	}
	if err != nil {
		return nil, err
	}

	return NewFeedPage(data, req.Page, req.Limit, total), nil
}

// generateColdStart computes the general ranked feed and, on page 1 only,
// announces the cold start to downstream analytics/onboarding. One event
// per generating request: cache hits and further pages stay silent.
func (s *feedService) generateColdStart(ctx context.Context, req GetFeedRequest) ([]*posts.FeedPost, int, error) {
	type ranked struct {
		data  []*posts.FeedPost
		total int
	}
	res, err := retry.Execute(ctx, func(ctx context.Context) (ranked, error) {
		data, total, err := s.repo.GetRankedFeed(ctx, req.Page, req.Limit)
		return ranked{data, total}, err
	}, s.retryCfg)
	if err != nil {
		return nil, 0, err
	}

	if req.Page == 1 {
		s.publishEvent(ctx, Event{
			ID:         uuid.NewString(),
			Type:       EventColdStartFeedGenerated,
			ViewerDID:  req.ViewerDID,
			OccurredAt: time.Now().UTC(),
		})
	}

	return res.data, res.total, nil
}

func (s *feedService) generateForViewer(ctx context.Context, viewerID int64, affinityTags []string, followedIDs []int64, req GetFeedRequest) ([]*posts.FeedPost, int, error) {
	type ranked struct {
		data  []*posts.FeedPost
		total int
	}
	res, err := retry.Execute(ctx, func(ctx context.Context) (ranked, error) {
		data, total, err := s.repo.GetFeedForUser(ctx, viewerID, affinityTags, followedIDs, req.Page, req.Limit)
		return ranked{data, total}, err
	}, s.retryCfg)
	if err != nil {
		return nil, 0, err
	}
	return res.data, res.total, nil
}

// GetTrendingFeed serves the trending feed from the sorted-set window when
// it is warm, falling back to the authoritative aggregation when the window
// is cold or the store is unavailable.
func (s *feedService) GetTrendingFeed(ctx context.Context, req GetTrendingRequest) (*FeedPage, error) {
	if err := s.validateTrendingRequest(&req); err != nil {
		return nil, err
	}

	key := CacheKey(TrendingSegment, req.Page, req.Limit)
	if v, ok := s.cache.GetWithTags(key); ok {
		if page, ok := v.(*FeedPage); ok {
			return page, nil
		}
	}

	page, err := s.generateTrending(ctx, req)
	if err != nil {
		if posts.IsNotFound(err) || posts.IsValidationError(err) {
			return nil, err
		}
		return nil, newGenerationError(TrendingSegment, req.Page, err)
	}

	s.cache.SetWithTags(key, page, CacheTags(TrendingSegment, req.Page, req.Limit), CacheTTL)
	return page, nil
}

func (s *feedService) generateTrending(ctx context.Context, req GetTrendingRequest) (*FeedPage, error) {
	ids, err := retry.Execute(ctx, func(ctx context.Context) ([]string, error) {
		return s.trending.GetTrendingRange(ctx, req.Page, req.Limit)
	}, s.retryCfg)
	if err != nil {
		// The sorted set is an accelerator, not the source of truth: an
		// unavailable store falls through to the aggregation explicitly.
		s.logger.Warn("trending store unavailable, using aggregation fallback", "error", err)
		ids = nil
	}

	if len(ids) > 0 {
		page, err := s.hydrateTrendingWindow(ctx, ids, req)
		if err == nil {
			return page, nil
		}
		s.logger.Warn("trending window hydration failed, using aggregation fallback", "error", err)
	}

	type facet struct {
		data  []*posts.FeedPost
		total int
	}
	res, err := retry.Execute(ctx, func(ctx context.Context) (facet, error) {
		data, total, err := s.repo.GetTrendingFeedWithFacet(ctx, req.Page, req.Limit)
		return facet{data, total}, err
	}, s.retryCfg)
	if err != nil {
		return nil, err
	}
	return NewFeedPage(res.data, req.Page, req.Limit, res.total), nil
}

// hydrateTrendingWindow fetches the posts for the sorted-set page and the
// window count concurrently; neither depends on the other. Post order
// follows the sorted set, and the total comes from the same structure.
func (s *feedService) hydrateTrendingWindow(ctx context.Context, ids []string, req GetTrendingRequest) (*FeedPage, error) {
	var (
		wg       sync.WaitGroup
		data     []*posts.FeedPost
		dataErr  error
		total    int
		countErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		data, dataErr = retry.Execute(ctx, func(ctx context.Context) ([]*posts.FeedPost, error) {
			return s.repo.FindPostsByIDs(ctx, ids)
		}, s.retryCfg)
	}()
	go func() {
		defer wg.Done()
		total, countErr = retry.Execute(ctx, func(ctx context.Context) (int, error) {
			return s.trending.GetTrendingCount(ctx)
		}, s.retryCfg)
	}()
	wg.Wait()

	if dataErr != nil {
		return nil, dataErr
	}
	if countErr != nil {
		return nil, countErr
	}
	return NewFeedPage(data, req.Page, req.Limit, total), nil
}

// publishEvent is best effort: a lost analytics event never fails a feed
// request.
func (s *feedService) publishEvent(ctx context.Context, event Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("event publish failed", "type", event.Type, "error", err)
	}
}

// validateFeedRequest rejects malformed requests before any I/O.
func (s *feedService) validateFeedRequest(req *GetFeedRequest) error {
	if req.ViewerDID == "" {
		return posts.NewValidationError("viewerDid", "viewer identity is required")
	}
	return validatePagination(&req.Page, &req.Limit)
}

func (s *feedService) validateTrendingRequest(req *GetTrendingRequest) error {
	return validatePagination(&req.Page, &req.Limit)
}

func validatePagination(page, limit *int) error {
	if *page <= 0 {
		*page = 1
	}
	if *limit <= 0 {
		*limit = defaultLimit
	}
	if *limit > maxLimit {
		return posts.NewValidationError("limit", "limit must not exceed 50")
	}
	return nil
}
