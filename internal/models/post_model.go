package models

import (
	"time"

	"github.com/lib/pq"
)

type Post struct {
	ID             int64          `db:"id" json:"id"`
	Platform       string         `db:"platform" json:"platform"`
	PostType       string         `db:"post_type" json:"post_type"`
	Caption        string         `db:"caption" json:"caption"`
	FirstComment   string         `db:"first_comment" json:"first_comment"`
	TaggedPeople   pq.StringArray `db:"tagged_people" json:"tagged_people"`
	MediaSetID     *int64         `db:"media_set_id" json:"media_set_id"`
	AccountID      *int64         `db:"account_id" json:"account_id"`
	Status         string         `db:"status" json:"status"`
	ExternalPostID string         `db:"external_post_id" json:"external_post_id"`
	ErrorMessage   string         `db:"error_message" json:"error_message"`
	Attempts       int            `db:"attempts" json:"attempts"`
	PublishedAt    *time.Time     `db:"published_at" json:"published_at"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

type MediaSet struct {
	ID        int64          `db:"id" json:"id"`
	URLs      pq.StringArray `db:"urls" json:"urls"`
	RefCount  int            `db:"ref_count" json:"ref_count"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// MediaChild is a platform-side media item belonging to a published post,
// fetched after publish to enrich the stored record.
type MediaChild struct {
	PostID       int64  `db:"post_id" json:"post_id"`
	ExternalID   string `db:"external_id" json:"external_id"`
	MediaURL     string `db:"media_url" json:"media_url"`
	Permalink    string `db:"permalink" json:"permalink"`
	DisplayOrder int    `db:"display_order" json:"display_order"`
}

const (
	PostStatusPending    = "pending"
	PostStatusProcessing = "processing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
	PostStatusCancelled  = "cancelled"
)

const (
	PostTypeFeed      = "feed"
	PostTypeStory     = "story"
	PostTypeReel      = "reel"
	PostTypeCarousel  = "carousel"
	PostTypeFeedStory = "feed_story"
	PostTypeArticle   = "article"
)
