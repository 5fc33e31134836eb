package viewfilter

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoFalseNegatives(t *testing.T) {
	f := New(Config{ExpectedViewers: 5000, FalsePositiveRate: 0.01}, nil)

	rng := rand.New(rand.NewSource(1))
	type pair struct{ post, viewer string }
	added := make([]pair, 0, 5000)

	for i := 0; i < 5000; i++ {
		p := pair{
			post:   fmt.Sprintf("post-%d", rng.Intn(50)),
			viewer: fmt.Sprintf("viewer-%d", i),
		}
		f.Add(p.post, p.viewer)
		added = append(added, p)
	}

	for _, p := range added {
		require.True(t, f.MightContain(p.post, p.viewer),
			"added pair (%s, %s) must always test positive", p.post, p.viewer)
	}
}

func TestUnknownPostIsDefinitelyAbsent(t *testing.T) {
	f := New(Config{}, nil)
	assert.False(t, f.MightContain("never-seen", "viewer-1"))
}

func TestFalsePositiveRateWithinBound(t *testing.T) {
	// LRU disabled so only the bloom shard answers.
	f := New(Config{ExpectedViewers: 10000, FalsePositiveRate: 0.01}, nil)

	for i := 0; i < 10000; i++ {
		f.Add("post-1", fmt.Sprintf("viewer-%d", i))
	}

	falsePositives := 0
	const probes = 20000
	for i := 0; i < probes; i++ {
		if f.MightContain("post-1", fmt.Sprintf("other-%d", i)) {
			falsePositives++
		}
	}

	// Target is 1%; allow generous slack against hash clustering.
	rate := float64(falsePositives) / float64(probes)
	assert.Less(t, rate, 0.03, "false positive rate %.4f exceeds bound", rate)
}

func TestShardsAreIndependentPerPost(t *testing.T) {
	f := New(Config{RecentViewerCacheSize: 0}, nil)

	f.Add("post-a", "viewer-1")

	assert.True(t, f.MightContain("post-a", "viewer-1"))
	assert.False(t, f.MightContain("post-b", "viewer-1"),
		"a view on one post must not register on another")
}

func TestDropPost(t *testing.T) {
	f := New(Config{RecentViewerCacheSize: 0}, nil)

	f.Add("post-a", "viewer-1")
	require.Equal(t, 1, f.Posts())

	f.DropPost("post-a")
	assert.Equal(t, 0, f.Posts())
	assert.False(t, f.MightContain("post-a", "viewer-1"))
}

func TestRecentViewerCacheShortCircuits(t *testing.T) {
	f := New(Config{RecentViewerCacheSize: 16}, nil)

	f.Add("post-a", "viewer-1")
	// Shard dropped, but the exact-match LRU still remembers the pair.
	f.DropPost("post-a")

	assert.True(t, f.MightContain("post-a", "viewer-1"))
}

func TestBloomSizing(t *testing.T) {
	bf := newBloomFilter(10000, 0.01)

	// ~9.6 bits per item for 1% and k≈7.
	assert.GreaterOrEqual(t, int(bf.size), 95000)
	assert.GreaterOrEqual(t, bf.hashFns, 6)
	assert.LessOrEqual(t, bf.hashFns, 8)
}
