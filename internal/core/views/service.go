package views

import (
	"context"
	"log/slog"
	"time"

	"Murmur/internal/core/posts"
	"Murmur/internal/core/retry"
	"Murmur/internal/core/writequeue"
)

// viewWeight is the trend-score contribution of one counted view. Likes
// and comments carry more weight and are recorded by their own write paths.
const viewWeight = 1.0

// Config tunes the view-recording path.
type Config struct {
	// IncrementLoadThreshold is the queue load above which view-count
	// increments are deferred instead of applied inline.
	IncrementLoadThreshold int64
}

// DefaultConfig defers increments once more than 32 writes are in flight.
var DefaultConfig = Config{IncrementLoadThreshold: 32}

type viewService struct {
	postsReader PostReader
	store       Store
	counters    CounterWriter
	filter      Filter
	trending    TrendingRecorder
	queue       Deferrer
	cfg         Config
	retryCfg    retry.Config
	logger      *slog.Logger
}

// NewViewService creates the view-recording service. filter and trending
// may be nil; the service then goes straight to the authoritative store and
// skips trend scoring.
func NewViewService(
	postsReader PostReader,
	store Store,
	counters CounterWriter,
	filter Filter,
	trending TrendingRecorder,
	queue Deferrer,
	cfg Config,
	logger *slog.Logger,
) Service {
	if cfg.IncrementLoadThreshold <= 0 {
		cfg.IncrementLoadThreshold = DefaultConfig.IncrementLoadThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &viewService{
		postsReader: postsReader,
		store:       store,
		counters:    counters,
		filter:      filter,
		trending:    trending,
		queue:       queue,
		cfg:         cfg,
		retryCfg: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   50 * time.Millisecond,
			MaxDelay:    time.Second,
			ShouldRetry: func(err error) bool { return !posts.IsNotFound(err) },
		},
		logger: logger,
	}
}

// RecordView implements the filter-gated, exactly-once view count:
// validate, reject owner views, consult the probabilistic filter, and only
// on a filter miss touch the authoritative store. A newly recorded view
// submits one low-priority counter increment to the write queue and
// returns before it executes.
func (s *viewService) RecordView(ctx context.Context, postID, viewerDID string) (bool, error) {
	if postID == "" {
		return false, posts.NewValidationError("postId", "post id is required")
	}
	if viewerDID == "" {
		return false, posts.NewValidationError("viewerDid", "viewer identity is required")
	}

	post, err := retry.Execute(ctx, func(ctx context.Context) (*PostInfo, error) {
		return s.postsReader.FindByPublicID(ctx, postID)
	}, s.retryCfg)
	if err != nil {
		return false, err
	}

	// A viewer never counts a view on their own post, regardless of
	// filter state.
	if post.AuthorDID == viewerDID {
		return false, nil
	}

	// Filter hit: almost certainly counted before. A false positive skips
	// a legitimate increment, which the design accepts; a duplicate count
	// is impossible either way because the store is idempotent.
	if s.filter != nil && s.filter.MightContain(postID, viewerDID) {
		return false, nil
	}

	newlyRecorded, err := retry.Execute(ctx, func(ctx context.Context) (bool, error) {
		return s.store.RecordView(ctx, postID, viewerDID)
	}, s.retryCfg)
	if err != nil {
		return false, err
	}

	// Shadow the durable record whether or not this call won the race;
	// either way the pair is now counted.
	if s.filter != nil {
		s.filter.Add(postID, viewerDID)
	}

	if !newlyRecorded {
		return false, nil
	}

	// The view is durably recorded; only the denormalized counter and the
	// trend score lag behind. Both are self-healing, so they ride the
	// low-priority lane and their failures stay in the logs.
	s.queue.ExecuteOrQueue(func(ctx context.Context) error {
		if err := s.counters.IncrementViewCount(ctx, postID); err != nil {
			return err
		}
		if s.trending != nil {
			if err := s.trending.RecordEngagement(ctx, postID, viewWeight); err != nil {
				s.logger.Debug("trend score bump failed", "post", postID, "error", err)
			}
		}
		return nil
	}, writequeue.Options{
		Priority:      writequeue.PriorityLow,
		LoadThreshold: s.cfg.IncrementLoadThreshold,
	})

	return true, nil
}
