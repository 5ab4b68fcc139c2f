package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pevans/newsharvest/article"
	"github.com/pevans/newsharvest/browser"
	"github.com/pevans/newsharvest/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWalker(dl Downloader) *Walker {
	return &Walker{
		Extractor:  newTestExtractor(dl),
		SearchTerm: "GPT",
		Logger:     logger.Discard(),
	}
}

// descendingPages builds pages of entries published one day apart, newest
// first, starting at start.
func descendingPages(start time.Time, sizes ...int) [][]Entry {
	var pages [][]Entry
	day := start
	n := 0
	for _, size := range sizes {
		var page []Entry
		for i := 0; i < size; i++ {
			n++
			page = append(page, datedEntry(fmt.Sprintf("Story %d", n), day))
			day = day.AddDate(0, 0, -1)
		}
		pages = append(pages, page)
	}
	return pages
}

func titles(records []article.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Title)
	}
	return out
}

// TestWalk_StopsAtHorizon verifies that with descending dates and a horizon
// between the k-th and (k+1)-th record exactly k records are returned
func TestWalk_StopsAtHorizon(t *testing.T) {
	start := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)

	for k := 1; k <= 8; k++ {
		pages := &fakePages{pages: descendingPages(start, 3, 3, 3)}
		// record k is published at start-(k-1) days; the horizon sits half a
		// day before it
		horizon := start.AddDate(0, 0, -(k - 1)).Add(-12 * time.Hour)

		records, err := newTestWalker(nil).Walk(context.Background(), horizon, pages)
		require.NoError(t, err)
		assert.Len(t, records, k, "k=%d", k)
		for _, r := range records {
			assert.False(t, r.PublishedAt.Before(horizon))
		}
	}
}

// TestWalk_EmptyWhenFirstIsOld verifies the empty result
func TestWalk_EmptyWhenFirstIsOld(t *testing.T) {
	start := time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)
	pages := &fakePages{pages: descendingPages(start, 3, 3)}

	records, err := newTestWalker(nil).Walk(context.Background(), Horizon(fixedNow, 1), pages)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Zero(t, pages.opened, "should not paginate past the first page")
}

// TestWalk_HorizonOnBoundary verifies a record exactly at the horizon is kept
func TestWalk_HorizonOnBoundary(t *testing.T) {
	start := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	pages := &fakePages{pages: descendingPages(start, 4)}

	records, err := newTestWalker(nil).Walk(context.Background(), start.AddDate(0, 0, -1), pages)
	require.NoError(t, err)
	assert.Equal(t, []string{"Story 1", "Story 2"}, titles(records))
}

// TestWalk_RunsOutOfPages verifies the walk ends when no next page exists
func TestWalk_RunsOutOfPages(t *testing.T) {
	start := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	pages := &fakePages{pages: descendingPages(start, 2, 2, 1)}

	records, err := newTestWalker(nil).Walk(context.Background(), start.AddDate(-1, 0, 0), pages)
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, 2, pages.opened)
}

// TestWalk_OutOfOrderTruncates documents that a stale entry ahead of newer
// ones (a pinned story) ends the walk and drops the newer entries after it
func TestWalk_OutOfOrderTruncates(t *testing.T) {
	recent := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	pinned := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	pages := &fakePages{pages: [][]Entry{{
		datedEntry("Fresh", recent),
		datedEntry("Pinned classic", pinned),
		datedEntry("Also fresh", recent.AddDate(0, 0, -1)),
	}}}

	records, err := newTestWalker(nil).Walk(context.Background(), Horizon(recent, 1), pages)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fresh"}, titles(records))
}

// TestWalk_MaxPages verifies the page safety cap
func TestWalk_MaxPages(t *testing.T) {
	start := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	pages := &fakePages{pages: descendingPages(start, 2, 2, 2, 2)}

	w := newTestWalker(nil)
	w.MaxPages = 2
	records, err := w.Walk(context.Background(), start.AddDate(-1, 0, 0), pages)
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Equal(t, 1, pages.opened)
}

// TestWalk_DownloadsOnlyKeptImages verifies the excluded record's image is
// not fetched
func TestWalk_DownloadsOnlyKeptImages(t *testing.T) {
	start := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	kept := datedEntry("Kept", start)
	kept.image = "https://b.s3.amazonaws.com/kept.jpg"
	dropped := datedEntry("Dropped", start.AddDate(-2, 0, 0))
	dropped.image = "https://b.s3.amazonaws.com/dropped.jpg"

	dl := &fakeDownloader{}
	pages := &fakePages{pages: [][]Entry{{kept, dropped}}}

	records, err := newTestWalker(dl).Walk(context.Background(), Horizon(start, 1), pages)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, dl.calls, 1)
	assert.Contains(t, dl.calls[0], "kept.jpg")
}

// TestWalk_PropagatesErrors verifies errors are returned with what was read
func TestWalk_PropagatesErrors(t *testing.T) {
	start := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	horizon := start.AddDate(-1, 0, 0)

	t.Run("page read", func(t *testing.T) {
		pages := &fakePages{pages: descendingPages(start, 1), readErr: browser.ErrWaitTimeout}
		_, err := newTestWalker(nil).Walk(context.Background(), horizon, pages)
		assert.ErrorIs(t, err, browser.ErrWaitTimeout)
	})

	t.Run("next page", func(t *testing.T) {
		pages := &fakePages{pages: descendingPages(start, 2, 2), nextErr: browser.ErrElementNotFound}
		records, err := newTestWalker(nil).Walk(context.Background(), horizon, pages)
		assert.ErrorIs(t, err, browser.ErrElementNotFound)
		assert.Len(t, records, 2, "records read before the failure are returned")
	})

	t.Run("entry", func(t *testing.T) {
		boom := errors.New("stale element")
		pages := &fakePages{pages: [][]Entry{{datedEntry("ok", start), fakeEntry{err: boom}}}}
		records, err := newTestWalker(nil).Walk(context.Background(), horizon, pages)
		assert.ErrorIs(t, err, boom)
		assert.Len(t, records, 1)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		pages := &fakePages{pages: descendingPages(start, 1)}
		_, err := newTestWalker(nil).Walk(ctx, horizon, pages)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
