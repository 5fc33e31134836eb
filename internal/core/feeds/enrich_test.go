package feeds

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Murmur/internal/core/cache"
	"Murmur/internal/core/posts"
)

type mockEngage struct {
	liked     map[string]bool
	favorited map[string]bool
	likedErr  error
	calls     int
}

func (m *mockEngage) GetLikedPostIDs(ctx context.Context, viewerDID string, postIDs []string) (map[string]bool, error) {
	m.calls++
	if m.likedErr != nil {
		return nil, m.likedErr
	}
	return m.liked, nil
}

func (m *mockEngage) GetFavoritedPostIDs(ctx context.Context, viewerDID string, postIDs []string) (map[string]bool, error) {
	m.calls++
	return m.favorited, nil
}

func enrichFixture(t *testing.T, engage *mockEngage) Service {
	t.Helper()
	c := cache.NewTaggedCache(nil)
	t.Cleanup(c.Close)
	return NewFeedService(&mockRepo{}, &mockViewers{}, &mockTrending{}, engage, c, nil, DefaultColdStartConfig, nil)
}

func TestEnrichOverlaysViewerState(t *testing.T) {
	engage := &mockEngage{
		liked:     map[string]bool{"p1": true},
		favorited: map[string]bool{"p2": true},
	}
	svc := enrichFixture(t, engage)

	feed := []*posts.FeedPost{feedPost("p1"), feedPost("p2"), feedPost("p3")}
	enriched, err := svc.EnrichFeedWithCurrentData(context.Background(), feed, "did:plc:alice")
	require.NoError(t, err)

	require.Len(t, enriched, 3)
	assert.True(t, enriched[0].IsLiked)
	assert.False(t, enriched[0].IsFavorited)
	assert.True(t, enriched[1].IsFavorited)
	assert.False(t, enriched[2].IsLiked)
}

func TestEnrichNeverMutatesInput(t *testing.T) {
	engage := &mockEngage{liked: map[string]bool{"p1": true}}
	svc := enrichFixture(t, engage)

	shared := []*posts.FeedPost{feedPost("p1")}
	enriched, err := svc.EnrichFeedWithCurrentData(context.Background(), shared, "did:plc:alice")
	require.NoError(t, err)

	assert.True(t, enriched[0].IsLiked)
	assert.False(t, shared[0].IsLiked, "the shared cached post must stay viewer-neutral")
	assert.NotSame(t, shared[0], enriched[0])
}

func TestEnrichIsIdempotent(t *testing.T) {
	engage := &mockEngage{liked: map[string]bool{"p1": true}}
	svc := enrichFixture(t, engage)

	feed := []*posts.FeedPost{feedPost("p1")}
	once, err := svc.EnrichFeedWithCurrentData(context.Background(), feed, "did:plc:alice")
	require.NoError(t, err)
	twice, err := svc.EnrichFeedWithCurrentData(context.Background(), once, "did:plc:alice")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestEnrichAnonymousViewerSkipsLookups(t *testing.T) {
	engage := &mockEngage{}
	svc := enrichFixture(t, engage)

	feed := []*posts.FeedPost{feedPost("p1")}
	enriched, err := svc.EnrichFeedWithCurrentData(context.Background(), feed, "")
	require.NoError(t, err)

	assert.Equal(t, 0, engage.calls)
	assert.False(t, enriched[0].IsLiked)
}

func TestEnrichSurfacesStoreFailure(t *testing.T) {
	engage := &mockEngage{likedErr: errors.New("store down")}
	svc := enrichFixture(t, engage)

	_, err := svc.EnrichFeedWithCurrentData(context.Background(), []*posts.FeedPost{feedPost("p1")}, "did:plc:alice")
	assert.Error(t, err)
}
