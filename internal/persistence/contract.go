// Package persistence defines the storage contract the Smart-Note and tag
// generation stages call through (spec.md §4.F stage 4, §4.H), plus a
// concrete default adapter.
//
// Task/Execution state is never stored here — the Task Registry is
// explicitly in-memory only (spec.md §1 Non-goals) — this package persists
// only the content and tags a completed pipeline run produces.
package persistence

import (
	"context"
	"time"
)

// Content is the durable record a Smart-Note run's corrected text and
// summary are saved as.
type Content struct {
	ID                int64
	OwnerID           string
	Title             string
	ContentMarkdown   string
	IsPublic          bool
	PublicTitle       string
	PublicDescription string
	PublishedAt       time.Time
}

// ExistingTag is a previously-persisted tag available for reuse by the tag
// generator.
type ExistingTag struct {
	ID   int64
	Name string
}

// Store is the opaque persistence collaborator every adapter implements.
// Callers depend only on this interface; BoltStore is one concrete default,
// not the only legal implementation.
type Store interface {
	// StoreContent saves a completed Smart-Note's content and returns its
	// assigned ID.
	StoreContent(ctx context.Context, content Content) (int64, error)

	// ListExistingTags returns up to limit existing tag names, for the tag
	// generator to offer the model as reuse candidates.
	ListExistingTags(ctx context.Context, limit int) ([]ExistingTag, error)

	// UpsertTag returns the ID of the tag named name, creating it if it
	// doesn't already exist.
	UpsertTag(ctx context.Context, name string) (int64, error)

	// Associate links contentID with tagID at the given confidence.
	Associate(ctx context.Context, contentID, tagID int64, confidence float64) error

	// SetContentPublic flips a content's visibility, recording the
	// publication's own title/description and timestamp (spec.md §6:
	// set_content_public(content_id, public_title, public_description,
	// published_at)) separately from the content's internal title.
	SetContentPublic(ctx context.Context, contentID int64, public bool, publicTitle, publicDescription string, publishedAt time.Time) error
}
