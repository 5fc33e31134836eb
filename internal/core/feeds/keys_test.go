package feeds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyIsDeterministic(t *testing.T) {
	a := CacheKey("did:plc:alice", 2, 15)
	b := CacheKey("did:plc:alice", 2, 15)
	assert.Equal(t, a, b)
	assert.Equal(t, "feed:did:plc:alice:page:2:limit:15", a)
}

func TestCacheKeyDistinguishesQueryShapes(t *testing.T) {
	base := CacheKey("did:plc:alice", 1, 15)
	assert.NotEqual(t, base, CacheKey("did:plc:bob", 1, 15))
	assert.NotEqual(t, base, CacheKey("did:plc:alice", 2, 15))
	assert.NotEqual(t, base, CacheKey("did:plc:alice", 1, 20))
	assert.NotEqual(t, base, CacheKey(TrendingSegment, 1, 15))
}

func TestCacheTagsCoverAllInvalidationAxes(t *testing.T) {
	tags := CacheTags("did:plc:alice", 3, 15)
	assert.Equal(t, []string{
		"feed:viewer:did:plc:alice",
		"feed:page:3",
		"feed:limit:15",
	}, tags)
}
