package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Murmur/internal/core/cache"
	"Murmur/internal/core/posts"
)

// mockRepo is a minimal hand-rolled fake of the authoritative read store.
type mockRepo struct {
	rankedCalls   atomic.Int32
	forUserCalls  atomic.Int32
	facetCalls    atomic.Int32
	byIDsCalls    atomic.Int32
	lastAffinity  []string
	lastFollowed  []int64
	rankedData    []*posts.FeedPost
	rankedTotal   int
	forUserData   []*posts.FeedPost
	forUserTotal  int
	facetData     []*posts.FeedPost
	facetTotal    int
	postsByID     map[string]*posts.FeedPost
	failEverything error
}

func (m *mockRepo) GetFeedForUser(ctx context.Context, viewerID int64, affinityTags []string, followedIDs []int64, page, limit int) ([]*posts.FeedPost, int, error) {
	m.forUserCalls.Add(1)
	m.lastAffinity = affinityTags
	m.lastFollowed = followedIDs
	if m.failEverything != nil {
		return nil, 0, m.failEverything
	}
	return m.forUserData, m.forUserTotal, nil
}

func (m *mockRepo) GetRankedFeed(ctx context.Context, page, limit int) ([]*posts.FeedPost, int, error) {
	m.rankedCalls.Add(1)
	if m.failEverything != nil {
		return nil, 0, m.failEverything
	}
	return m.rankedData, m.rankedTotal, nil
}

func (m *mockRepo) GetTrendingFeedWithFacet(ctx context.Context, page, limit int) ([]*posts.FeedPost, int, error) {
	m.facetCalls.Add(1)
	if m.failEverything != nil {
		return nil, 0, m.failEverything
	}
	return m.facetData, m.facetTotal, nil
}

func (m *mockRepo) FindPostsByIDs(ctx context.Context, publicIDs []string) ([]*posts.FeedPost, error) {
	m.byIDsCalls.Add(1)
	if m.failEverything != nil {
		return nil, m.failEverything
	}
	out := make([]*posts.FeedPost, 0, len(publicIDs))
	for _, id := range publicIDs {
		if p, ok := m.postsByID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockViewers struct {
	viewer       *Viewer
	affinityTags []string
	followedIDs  []int64
	resolveErr   error
}

func (m *mockViewers) ResolveViewer(ctx context.Context, did string) (*Viewer, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return m.viewer, nil
}

func (m *mockViewers) GetAffinityTags(ctx context.Context, viewerID int64, topN int) ([]string, error) {
	return m.affinityTags, nil
}

func (m *mockViewers) GetFollowedAuthorIDs(ctx context.Context, viewerID int64) ([]int64, error) {
	return m.followedIDs, nil
}

type mockTrending struct {
	rangeIDs  []string
	count     int
	rangeErr  error
	countErr  error
}

func (m *mockTrending) GetTrendingRange(ctx context.Context, page, limit int) ([]string, error) {
	return m.rangeIDs, m.rangeErr
}

func (m *mockTrending) GetTrendingCount(ctx context.Context) (int, error) {
	return m.count, m.countErr
}

type mockEvents struct {
	published []Event
}

func (m *mockEvents) Publish(ctx context.Context, event Event) error {
	m.published = append(m.published, event)
	return nil
}

func feedPost(id string) *posts.FeedPost {
	return &posts.FeedPost{
		PublicID:  id,
		Author:    posts.AuthorView{PublicID: "author-" + id, Handle: id + ".example.com"},
		Title:     "post " + id,
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

type fixture struct {
	repo     *mockRepo
	viewers  *mockViewers
	trending *mockTrending
	events   *mockEvents
	cache    *cache.TaggedCache
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: &mockRepo{
			rankedData:  []*posts.FeedPost{feedPost("r1"), feedPost("r2")},
			rankedTotal: 2,
			forUserData: []*posts.FeedPost{feedPost("u1")},
			forUserTotal: 1,
			facetData:   []*posts.FeedPost{feedPost("f1")},
			facetTotal:  1,
			postsByID: map[string]*posts.FeedPost{
				"p1": feedPost("p1"),
				"p2": feedPost("p2"),
			},
		},
		viewers:  &mockViewers{viewer: &Viewer{ID: 7, DID: "did:plc:alice"}},
		trending: &mockTrending{},
		events:   &mockEvents{},
		cache:    cache.NewTaggedCache(nil),
	}
	t.Cleanup(f.cache.Close)
	f.svc = NewFeedService(f.repo, f.viewers, f.trending, nil, f.cache, f.events, DefaultColdStartConfig, nil)
	return f
}

func TestSecondCallWithinTTLServesCacheByteIdentical(t *testing.T) {
	f := newFixture(t)
	req := GetFeedRequest{ViewerDID: "did:plc:alice", Page: 1, Limit: 15}

	first, err := f.svc.GetFeed(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.GetFeed(context.Background(), req)
	require.NoError(t, err)

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	assert.Equal(t, firstJSON, secondJSON)
	assert.Equal(t, int32(1), f.repo.rankedCalls.Load(),
		"second call must not reach the rank-computation path")
}

func TestColdStartPublishesEventOnceOnPageOne(t *testing.T) {
	f := newFixture(t)
	f.viewers.affinityTags = nil
	f.viewers.followedIDs = nil

	_, err := f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:alice", Page: 1, Limit: 15})
	require.NoError(t, err)

	require.Len(t, f.events.published, 1)
	assert.Equal(t, EventColdStartFeedGenerated, f.events.published[0].Type)
	assert.Equal(t, "did:plc:alice", f.events.published[0].ViewerDID)
	assert.Equal(t, int32(1), f.repo.rankedCalls.Load())
	assert.Equal(t, int32(0), f.repo.forUserCalls.Load())
}

func TestColdStartPageTwoPublishesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:alice", Page: 2, Limit: 15})
	require.NoError(t, err)

	assert.Empty(t, f.events.published)
}

func TestCacheHitDoesNotRepublishColdStartEvent(t *testing.T) {
	f := newFixture(t)
	req := GetFeedRequest{ViewerDID: "did:plc:alice", Page: 1, Limit: 15}

	_, err := f.svc.GetFeed(context.Background(), req)
	require.NoError(t, err)
	_, err = f.svc.GetFeed(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, f.events.published, 1, "one event per generating request, not per read")
}

func TestPersonalizedPathUsesSignal(t *testing.T) {
	f := newFixture(t)
	f.viewers.affinityTags = []string{"golang", "distsys"}
	f.viewers.followedIDs = []int64{11, 12}

	page, err := f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:alice", Page: 1, Limit: 15})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.repo.forUserCalls.Load())
	assert.Equal(t, int32(0), f.repo.rankedCalls.Load())
	assert.Equal(t, []string{"golang", "distsys"}, f.repo.lastAffinity)
	assert.Equal(t, []int64{11, 12}, f.repo.lastFollowed)
	assert.Empty(t, f.events.published)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "u1", page.Data[0].PublicID)
}

func TestColdStartCutoffIsConfigurable(t *testing.T) {
	f := newFixture(t)
	// A single follow is still below this deployment's personalization bar.
	f.viewers.followedIDs = []int64{11}
	svc := NewFeedService(f.repo, f.viewers, f.trending, nil, f.cache, f.events,
		ColdStartConfig{MinFollows: 1, MinAffinityTags: 0, TopAffinityTags: 10}, nil)

	_, err := svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:alice", Page: 1, Limit: 15})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.repo.rankedCalls.Load())
	assert.Equal(t, int32(0), f.repo.forUserCalls.Load())
}

func TestTrendingServedFromSortedSet(t *testing.T) {
	f := newFixture(t)
	f.trending.rangeIDs = []string{"p1", "p2"}
	f.trending.count = 42

	page, err := f.svc.GetTrendingFeed(context.Background(), GetTrendingRequest{Page: 1, Limit: 15})
	require.NoError(t, err)

	require.Len(t, page.Data, 2)
	assert.Equal(t, "p1", page.Data[0].PublicID)
	assert.Equal(t, "p2", page.Data[1].PublicID)
	assert.Equal(t, 42, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, int32(0), f.repo.facetCalls.Load())
}

func TestTrendingEmptyRangeFallsBackToAggregation(t *testing.T) {
	f := newFixture(t)
	f.trending.rangeIDs = nil
	f.repo.facetData = []*posts.FeedPost{feedPost("agg1"), feedPost("agg2")}
	f.repo.facetTotal = 9

	page, err := f.svc.GetTrendingFeed(context.Background(), GetTrendingRequest{Page: 1, Limit: 15})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.repo.facetCalls.Load())
	assert.Equal(t, int32(0), f.repo.byIDsCalls.Load())
	require.Len(t, page.Data, 2)
	assert.Equal(t, "agg1", page.Data[0].PublicID)
	assert.Equal(t, 9, page.Total)
}

func TestTrendingStoreOutageFallsThroughExplicitly(t *testing.T) {
	f := newFixture(t)
	f.trending.rangeErr = errors.New("connection refused")

	page, err := f.svc.GetTrendingFeed(context.Background(), GetTrendingRequest{Page: 1, Limit: 15})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.repo.facetCalls.Load())
	assert.Equal(t, 1, page.Total)
}

func TestGenerationErrorWrapsCauseMessageNotType(t *testing.T) {
	f := newFixture(t)
	f.viewers.resolveErr = errors.New("pq: connection reset")

	_, err := f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:alice", Page: 1, Limit: 15})
	require.Error(t, err)

	require.True(t, IsGenerationError(err))
	assert.Contains(t, err.Error(), "did:plc:alice")
	assert.Contains(t, err.Error(), "pq: connection reset")
	// The infra error itself must not be reachable through the chain.
	assert.False(t, errors.Is(err, f.viewers.resolveErr))
}

func TestViewerNotFoundPropagatesUnwrapped(t *testing.T) {
	f := newFixture(t)
	f.viewers.resolveErr = posts.ErrViewerNotFound

	_, err := f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:ghost", Page: 1, Limit: 15})

	assert.ErrorIs(t, err, posts.ErrViewerNotFound)
	assert.False(t, IsGenerationError(err))
}

func TestValidationRejectsBeforeIO(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "", Page: 1, Limit: 15})
	assert.True(t, posts.IsValidationError(err))

	_, err = f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:alice", Page: 1, Limit: 500})
	assert.True(t, posts.IsValidationError(err))

	assert.Equal(t, int32(0), f.repo.rankedCalls.Load())
	assert.Equal(t, int32(0), f.repo.forUserCalls.Load())
}

func TestDistinctQueryShapesGetDistinctCacheEntries(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:alice", Page: 1, Limit: 15})
	require.NoError(t, err)
	_, err = f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:alice", Page: 2, Limit: 15})
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.repo.rankedCalls.Load())
}

func TestFollowChangeInvalidatesOnlyThatViewer(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:alice", Page: 1, Limit: 15})
	require.NoError(t, err)
	_, err = f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:bob", Page: 1, Limit: 15})
	require.NoError(t, err)
	require.Equal(t, int32(2), f.repo.rankedCalls.Load())

	// A follow write elsewhere invalidates alice's tag only.
	f.cache.InvalidateByTag(TagViewer("did:plc:alice"))

	_, err = f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:bob", Page: 1, Limit: 15})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.repo.rankedCalls.Load(), "bob's page is still cached")

	_, err = f.svc.GetFeed(context.Background(), GetFeedRequest{ViewerDID: "did:plc:alice", Page: 1, Limit: 15})
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.repo.rankedCalls.Load(), "alice's page was recomputed")
}

func TestFeedPageInvariants(t *testing.T) {
	for _, tc := range []struct {
		total, limit, wantPages int
	}{
		{0, 15, 0},
		{1, 15, 1},
		{15, 15, 1},
		{16, 15, 2},
		{42, 15, 3},
	} {
		p := NewFeedPage(nil, 1, tc.limit, tc.total)
		assert.Equal(t, tc.wantPages, p.TotalPages, fmt.Sprintf("total=%d limit=%d", tc.total, tc.limit))
		assert.NotNil(t, p.Data)
	}
}
