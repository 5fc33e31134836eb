package feeds

import (
	"time"

	"Murmur/internal/core/posts"
)

// FeedPage is one paginated feed result. Pages are viewer-neutral until
// enrichment; the cached copy is shared across viewers requesting the same
// (segment, page, limit) shape.
type FeedPage struct {
	Data       []*posts.FeedPost `json:"data"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	Total      int               `json:"total"`
	TotalPages int               `json:"totalPages"`
}

// NewFeedPage builds a page and derives TotalPages = ceil(total/limit).
func NewFeedPage(data []*posts.FeedPost, page, limit, total int) *FeedPage {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	if data == nil {
		data = []*posts.FeedPost{}
	}
	return &FeedPage{
		Data:       data,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Clone deep-copies the page so enrichment never touches the cached copy.
func (p *FeedPage) Clone() *FeedPage {
	data := make([]*posts.FeedPost, len(p.Data))
	for i, fp := range p.Data {
		data[i] = fp.Clone()
	}
	cp := *p
	cp.Data = data
	return &cp
}

// Viewer is the resolved identity of an authenticated feed requester.
type Viewer struct {
	ID       int64  // internal database id
	DID      string // public decentralized identifier
	Handle   string
	JoinedAt time.Time
}

// GetFeedRequest asks for one page of the personalized feed.
type GetFeedRequest struct {
	ViewerDID string
	Page      int
	Limit     int
}

// GetTrendingRequest asks for one page of the trending feed. Anonymous
// requests are allowed; ViewerDID is only used by enrichment downstream.
type GetTrendingRequest struct {
	Page  int
	Limit int
}

// ColdStartConfig decides when a viewer has too little personalization
// signal and falls back to the general ranked feed. The cutoffs are
// tunables, not hidden constants: a deployment may decide that one or two
// follows are still not enough signal to personalize on.
type ColdStartConfig struct {
	// MinFollows is the follow count at or below which follows alone do
	// not count as personalization signal.
	MinFollows int

	// MinAffinityTags is the affinity-tag count at or below which tags
	// alone do not count as personalization signal.
	MinAffinityTags int

	// TopAffinityTags is how many of the viewer's strongest tags bias the
	// personalized ranking.
	TopAffinityTags int
}

// DefaultColdStartConfig is the strict both-empty rule.
var DefaultColdStartConfig = ColdStartConfig{
	MinFollows:      0,
	MinAffinityTags: 0,
	TopAffinityTags: 10,
}

// isColdStart reports whether the viewer's signal is below both cutoffs.
func (c ColdStartConfig) isColdStart(followCount, affinityTagCount int) bool {
	return followCount <= c.MinFollows && affinityTagCount <= c.MinAffinityTags
}
