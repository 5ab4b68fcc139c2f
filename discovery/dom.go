package discovery

import (
	"context"
	"errors"

	"github.com/pevans/newsharvest/browser"
	"github.com/pevans/newsharvest/scraper"
)

// DOMSource reads result pages from a live browser session.
type DOMSource struct {
	session browser.Session
	profile *scraper.SiteProfile
}

// NewDOMSource creates a page source over the session's current page.
func NewDOMSource(session browser.Session, profile *scraper.SiteProfile) *DOMSource {
	return &DOMSource{session: session, profile: profile}
}

func (s *DOMSource) Entries(ctx context.Context) ([]Entry, error) {
	list, err := s.session.Find(ctx, s.profile.ResultList)
	if err != nil {
		return nil, err
	}

	items, err := list.FindAll(s.profile.ResultEntry)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, &domEntry{el: item, profile: s.profile})
	}
	return entries, nil
}

func (s *DOMSource) HasNext(ctx context.Context) (bool, error) {
	return s.session.IsVisible(ctx, s.profile.NextPage)
}

func (s *DOMSource) Next(ctx context.Context) error {
	if err := s.session.Click(ctx, s.profile.NextPage); err != nil {
		return err
	}
	return s.session.WaitEnabled(ctx, s.profile.ResultList)
}

// domEntry reads fields from one result list item.
type domEntry struct {
	el      browser.Element
	profile *scraper.SiteProfile
}

func (e *domEntry) Title() (string, error) {
	el, err := e.el.Find(e.profile.Entry.Title)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (e *domEntry) DateText() (string, error) {
	return e.optionalText(e.profile.Entry.Date)
}

func (e *domEntry) Description() (string, error) {
	return e.optionalText(e.profile.Entry.Description)
}

func (e *domEntry) ImageURL() (string, error) {
	if e.profile.Entry.Image.IsZero() {
		return "", nil
	}

	el, err := e.el.Find(e.profile.Entry.Image)
	if errors.Is(err, browser.ErrElementNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	v, _, err := el.Attribute(e.profile.ImageAttribute())
	return v, err
}

func (e *domEntry) optionalText(loc browser.Locator) (string, error) {
	if loc.IsZero() {
		return "", nil
	}

	el, err := e.el.Find(loc)
	if errors.Is(err, browser.ErrElementNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return el.Text()
}
