package fetch

import (
	"context"
	"sync"

	"github.com/mctl-dev/mctl/internal/models"
)

// FeedSource is the backend activity feed RPC.
type FeedSource interface {
	GetActivityFeed(ctx context.Context, limit int) ([]models.ActivityEvent, error)
}

// FeedFetcher retrieves the bounded, backend-ordered activity feed. On
// failure the previous feed value is retained so the view never flashes
// empty; the error is surfaced alongside the stale data.
type FeedFetcher struct {
	source FeedSource

	mu     sync.Mutex
	events []models.ActivityEvent
	err    error
}

// NewFeedFetcher creates a feed fetcher.
func NewFeedFetcher(source FeedSource) *FeedFetcher {
	return &FeedFetcher{source: source}
}

// Refresh fetches up to limit events. Ordering is whatever the backend
// returned (most recent first); the feed is never re-sorted here.
func (f *FeedFetcher) Refresh(ctx context.Context, limit int) error {
	events, err := f.source.GetActivityFeed(ctx, limit)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.err = err
		return err
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	f.events = events
	f.err = nil
	return nil
}

// Snapshot returns the current feed and the last fetch error, if any. The
// two can both be non-empty: stale data with an inline error indicator.
func (f *FeedFetcher) Snapshot() ([]models.ActivityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events, f.err
}
