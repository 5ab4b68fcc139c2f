package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pevans/newsharvest/browser"
	"github.com/pevans/newsharvest/logger"
)

// fakeEntry is an in-memory result entry.
type fakeEntry struct {
	title       string
	noTitle     bool
	date        string
	description string
	image       string
	err         error
}

func (e fakeEntry) Title() (string, error) {
	if e.err != nil {
		return "", e.err
	}
	if e.noTitle {
		return "", fmt.Errorf("%w: .promo-title a", browser.ErrElementNotFound)
	}
	return e.title, nil
}

func (e fakeEntry) DateText() (string, error)    { return e.date, nil }
func (e fakeEntry) Description() (string, error) { return e.description, nil }
func (e fakeEntry) ImageURL() (string, error)    { return e.image, nil }

// datedEntry builds an entry published on the given day.
func datedEntry(title string, day time.Time) fakeEntry {
	return fakeEntry{title: title, date: day.Format("Jan. 2, 2006")}
}

// fakePages serves a fixed list of pages.
type fakePages struct {
	pages   [][]Entry
	current int
	nextErr error
	readErr error
	opened  int
}

func (p *fakePages) Entries(context.Context) ([]Entry, error) {
	if p.readErr != nil {
		return nil, p.readErr
	}
	return p.pages[p.current], nil
}

func (p *fakePages) HasNext(context.Context) (bool, error) {
	return p.current+1 < len(p.pages), nil
}

func (p *fakePages) Next(context.Context) error {
	if p.nextErr != nil {
		return p.nextErr
	}
	p.current++
	p.opened++
	return nil
}

// fakeDownloader records downloads and optionally fails them.
type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (d *fakeDownloader) Download(_ context.Context, url, dest string, overwrite bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, url+" -> "+dest)
	if d.fail {
		return errors.New("connection reset")
	}
	return nil
}

var fixedNow = time.Date(2024, time.October, 16, 12, 0, 0, 0, time.UTC)

func newTestExtractor(dl Downloader) *Extractor {
	return NewExtractor(ExtractorConfig{
		TrustedImageHost: "s3.amazonaws.com",
		OutputDir:        "out",
		Downloader:       dl,
		Now:              func() time.Time { return fixedNow },
		Logger:           logger.Discard(),
	})
}
