package posts

import "time"

// Post is the authoritative post document as indexed in the AppView
// database. Feed reads never return it directly; they return FeedPost.
type Post struct {
	ID           int64      `json:"-"`
	PublicID     string     `json:"publicId"`
	AuthorID     int64      `json:"-"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Tags         []string   `json:"tags,omitempty"`
	LikeCount    int        `json:"likeCount"`
	CommentCount int        `json:"commentCount"`
	ViewCount    int        `json:"viewCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	EditedAt     *time.Time `json:"editedAt,omitempty"`
	DeletedAt    *time.Time `json:"-"`
}

// AuthorView is the denormalized author snapshot carried on every feed
// post, so rendering a page needs no join at read time.
type AuthorView struct {
	PublicID    string `json:"publicId"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// FeedPost is one entry of a feed page. Identity is PublicID: an opaque
// string that stays stable across edits and reposts of the same document.
//
// RankScore and TrendScore are present only on the ranked and trending
// variants respectively; they are recomputed on every generation and never
// persisted. IsLiked and IsFavorited are viewer-relative overlays applied
// by enrichment after the shared page leaves the cache.
type FeedPost struct {
	PublicID     string     `json:"publicId"`
	Author       AuthorView `json:"author"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Tags         []string   `json:"tags,omitempty"`
	LikeCount    int        `json:"likeCount"`
	CommentCount int        `json:"commentCount"`
	ViewCount    int        `json:"viewCount"`
	CreatedAt    time.Time  `json:"createdAt"`

	RankScore  *float64 `json:"rankScore,omitempty"`
	TrendScore *float64 `json:"trendScore,omitempty"`

	IsLiked     bool `json:"isLiked"`
	IsFavorited bool `json:"isFavorited"`
}

// Clone returns a deep copy. Enrichment works on copies so the shared
// cached page is never mutated.
func (p *FeedPost) Clone() *FeedPost {
	cp := *p
	if p.Tags != nil {
		cp.Tags = append([]string(nil), p.Tags...)
	}
	if p.RankScore != nil {
		v := *p.RankScore
		cp.RankScore = &v
	}
	if p.TrendScore != nil {
		v := *p.TrendScore
		cp.TrendScore = &v
	}
	return &cp
}
