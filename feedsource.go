package newsharvest

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/pevans/newsharvest/browser"
	"github.com/pevans/newsharvest/discovery"
)

// feedDateLayout matches the long-month format the date normalizer accepts.
const feedDateLayout = "January 2, 2006"

// FeedSource is a single-page discovery.PageSource over an RSS or Atom
// search feed. The gofeed library normalizes both formats into a common
// structure, so this type handles both transparently.
type FeedSource struct {
	entries []discovery.Entry
}

// FetchFeedSource fetches and parses the feed at url.
func FetchFeedSource(ctx context.Context, parser *gofeed.Parser, url string) (*FeedSource, error) {
	if parser == nil {
		parser = gofeed.NewParser()
	}
	feed, err := parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return NewFeedSource(feed), nil
}

// NewFeedSource wraps an already parsed feed.
func NewFeedSource(feed *gofeed.Feed) *FeedSource {
	entries := make([]discovery.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, feedEntry{item: item})
	}
	return &FeedSource{entries: entries}
}

func (s *FeedSource) Entries(context.Context) ([]discovery.Entry, error) {
	return s.entries, nil
}

// HasNext is always false: search feeds are not paginated.
func (s *FeedSource) HasNext(context.Context) (bool, error) {
	return false, nil
}

func (s *FeedSource) Next(context.Context) error {
	return fmt.Errorf("%w: feeds have a single page", browser.ErrElementNotFound)
}

type feedEntry struct {
	item *gofeed.Item
}

func (e feedEntry) Title() (string, error) {
	if strings.TrimSpace(e.item.Title) == "" {
		return "", fmt.Errorf("%w: feed item title", browser.ErrElementNotFound)
	}
	return e.item.Title, nil
}

// DateText formats <pubDate> (RSS) or <published>/<updated> (Atom), which
// gofeed parses into PublishedParsed and UpdatedParsed. Unparsed dates are
// passed through raw and left to the normalizer.
func (e feedEntry) DateText() (string, error) {
	switch {
	case e.item.PublishedParsed != nil:
		return e.item.PublishedParsed.Format(feedDateLayout), nil
	case e.item.UpdatedParsed != nil:
		return e.item.UpdatedParsed.Format(feedDateLayout), nil
	case e.item.Published != "":
		return e.item.Published, nil
	}
	return e.item.Updated, nil
}

// Description strips any markup from <description> (RSS) or
// <summary>/<content> (Atom).
func (e feedEntry) Description() (string, error) {
	desc := e.item.Description
	if desc == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc))
	if err != nil {
		return desc, nil
	}
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// ImageURL prefers the item image and falls back to the first image
// enclosure.
func (e feedEntry) ImageURL() (string, error) {
	if e.item.Image != nil && e.item.Image.URL != "" {
		return e.item.Image.URL, nil
	}
	for _, enc := range e.item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL, nil
		}
	}
	return "", nil
}
