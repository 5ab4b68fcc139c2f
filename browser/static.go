package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// staticSession drives server-rendered pages without a browser. Links are
// followed, GET forms are submitted with the values typed or toggled since
// the last navigation, and changing a select submits its form. Elements that
// need scripting to react (buttons outside forms) are no-ops.
type staticSession struct {
	client    *http.Client
	userAgent string
	log       logrus.FieldLogger

	current *url.URL
	doc     *goquery.Document
	inputs  map[string]string
	checks  map[string]bool
	closed  bool
}

func newStaticSession(opts Options) *staticSession {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.PageLoadTimeout}
	}

	return &staticSession{
		client:    client,
		userAgent: opts.UserAgent,
		log:       opts.Logger.WithField("backend", BackendStatic),
		inputs:    map[string]string{},
		checks:    map[string]bool{},
	}
}

func (s *staticSession) Open(ctx context.Context, rawURL string) error {
	if s.closed {
		return ErrClosed
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL %q: %w", ErrNavigation, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrNavigation, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: loading %s: %w", ErrWaitTimeout, target, err)
		}
		return fmt.Errorf("%w: loading %s: %w", ErrNavigation, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrNavigation, target, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to parse HTML: %w", ErrNavigation, err)
	}

	s.log.WithField("url", target.String()).Debug("page loaded")
	s.current = resp.Request.URL
	s.doc = doc
	s.inputs = map[string]string{}
	s.checks = map[string]bool{}

	return nil
}

// match returns the selection for loc within root.
func match(root *goquery.Selection, loc Locator) *goquery.Selection {
	sel := root.Find(loc.CSS)
	if loc.Text == "" {
		return sel
	}
	return sel.FilterFunction(func(_ int, el *goquery.Selection) bool {
		return strings.Contains(el.Text(), loc.Text)
	})
}

func (s *staticSession) find(loc Locator) (*goquery.Selection, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.doc == nil {
		return nil, fmt.Errorf("%w: no page loaded", ErrNavigation)
	}

	sel := match(s.doc.Selection, loc)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, loc)
	}
	return sel.First(), nil
}

func (s *staticSession) Find(_ context.Context, loc Locator) (Element, error) {
	sel, err := s.find(loc)
	if err != nil {
		return nil, err
	}
	return &staticElement{session: s, sel: sel}, nil
}

func (s *staticSession) FindAll(_ context.Context, loc Locator) ([]Element, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.doc == nil {
		return nil, fmt.Errorf("%w: no page loaded", ErrNavigation)
	}
	return wrapAll(s, match(s.doc.Selection, loc)), nil
}

func (s *staticSession) IsVisible(_ context.Context, loc Locator) (bool, error) {
	sel, err := s.find(loc)
	if err != nil {
		if errors.Is(err, ErrElementNotFound) {
			return false, nil
		}
		return false, err
	}
	return visible(sel), nil
}

func (s *staticSession) Click(ctx context.Context, loc Locator) error {
	sel, err := s.find(loc)
	if err != nil {
		return err
	}
	return s.click(ctx, sel)
}

func (s *staticSession) Input(_ context.Context, loc Locator, text string) error {
	sel, err := s.find(loc)
	if err != nil {
		return err
	}

	name, ok := sel.Attr("name")
	if !ok || name == "" {
		return fmt.Errorf("%w: %s has no name to submit", ErrElementNotFound, loc)
	}
	s.inputs[name] = text

	return nil
}

// WaitEnabled succeeds if the element exists and is not disabled. A static
// page cannot change, so there is nothing to wait for.
func (s *staticSession) WaitEnabled(_ context.Context, loc Locator) error {
	sel, err := s.find(loc)
	if err != nil {
		return err
	}
	if _, disabled := sel.Attr("disabled"); disabled {
		return fmt.Errorf("%w: %s is disabled", ErrWaitTimeout, loc)
	}
	return nil
}

func (s *staticSession) WaitNotVisible(ctx context.Context, loc Locator) error {
	shown, err := s.IsVisible(ctx, loc)
	if err != nil {
		return err
	}
	if shown {
		return fmt.Errorf("%w: %s is still visible", ErrWaitTimeout, loc)
	}
	return nil
}

func (s *staticSession) SelectOption(ctx context.Context, loc Locator, optionText string) error {
	sel, err := s.find(loc)
	if err != nil {
		return err
	}

	option := sel.Find("option").FilterFunction(func(_ int, o *goquery.Selection) bool {
		return strings.TrimSpace(o.Text()) == optionText
	}).First()
	if option.Length() == 0 {
		return fmt.Errorf("%w: option %q in %s", ErrElementNotFound, optionText, loc)
	}

	return s.click(ctx, option)
}

func (s *staticSession) Close() error {
	s.closed = true
	s.doc = nil
	return nil
}

// click emulates what a browser does for the element without scripts.
func (s *staticSession) click(ctx context.Context, sel *goquery.Selection) error {
	if s.closed {
		return ErrClosed
	}

	if link := sel.Closest("a[href]"); link.Length() > 0 {
		href, _ := link.Attr("href")
		return s.Open(ctx, s.resolve(href))
	}

	if goquery.NodeName(sel) == "option" {
		selectEl := sel.Closest("select")
		name, _ := selectEl.Attr("name")
		value, ok := sel.Attr("value")
		if !ok {
			value = strings.TrimSpace(sel.Text())
		}
		if name != "" {
			s.inputs[name] = value
		}
		return s.submit(ctx, selectEl.Closest("form"))
	}

	if label := sel.Closest("label"); label.Length() > 0 {
		if box := label.Find("input[type=checkbox]").First(); box.Length() > 0 {
			s.toggle(box)
			return s.submit(ctx, box.Closest("form"))
		}
	}

	if goquery.NodeName(sel) == "input" && sel.AttrOr("type", "") == "checkbox" {
		s.toggle(sel)
		return s.submit(ctx, sel.Closest("form"))
	}

	if button := sel.Closest("button, input[type=submit]"); button.Length() > 0 {
		form := button.Closest("form")
		if form.Length() == 0 {
			s.log.Debug("click on scripted button ignored")
			return nil
		}
		return s.submit(ctx, form)
	}

	s.log.Debug("click on inert element ignored")
	return nil
}

func checkKey(box *goquery.Selection) string {
	return box.AttrOr("name", "") + "\x00" + box.AttrOr("value", "on")
}

func (s *staticSession) toggle(box *goquery.Selection) {
	key := checkKey(box)
	checked, ok := s.checks[key]
	if !ok {
		_, checked = box.Attr("checked")
	}
	s.checks[key] = !checked
}

// submit sends a GET form with the current input state.
func (s *staticSession) submit(ctx context.Context, form *goquery.Selection) error {
	if form.Length() == 0 {
		return nil
	}

	if method := strings.ToUpper(form.AttrOr("method", "GET")); method != http.MethodGet {
		return fmt.Errorf("%w: %s forms are not supported", ErrNavigation, method)
	}

	values := url.Values{}
	form.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		switch strings.ToLower(in.AttrOr("type", "text")) {
		case "checkbox", "radio":
			checked, ok := s.checks[checkKey(in)]
			if !ok {
				_, checked = in.Attr("checked")
			}
			if checked {
				values.Add(name, in.AttrOr("value", "on"))
			}
		case "submit", "button", "image", "reset":
		default:
			if v, ok := s.inputs[name]; ok {
				values.Set(name, v)
			} else {
				values.Set(name, in.AttrOr("value", ""))
			}
		}
	})
	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if v, ok := s.inputs[name]; ok {
			values.Set(name, v)
			return
		}
		option := sel.Find("option[selected]").First()
		if option.Length() == 0 {
			option = sel.Find("option").First()
		}
		if option.Length() > 0 {
			values.Set(name, option.AttrOr("value", strings.TrimSpace(option.Text())))
		}
	})

	action := s.resolve(form.AttrOr("action", ""))
	target, err := url.Parse(action)
	if err != nil {
		return fmt.Errorf("%w: invalid form action %q: %w", ErrNavigation, action, err)
	}
	target.RawQuery = values.Encode()

	return s.Open(ctx, target.String())
}

func (s *staticSession) resolve(ref string) string {
	if s.current == nil {
		return ref
	}
	u, err := s.current.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// visible reports whether the element is not hidden by attribute or inline
// style on itself or an ancestor.
func visible(sel *goquery.Selection) bool {
	for node := sel; node.Length() > 0; node = node.Parent() {
		if _, hidden := node.Attr("hidden"); hidden {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(node.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func wrapAll(s *staticSession, sel *goquery.Selection) []Element {
	elements := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, el *goquery.Selection) {
		elements = append(elements, &staticElement{session: s, sel: el})
	})
	return elements
}

// staticElement is one node of the current static document.
type staticElement struct {
	session *staticSession
	sel     *goquery.Selection
}

func (e *staticElement) Text() (string, error) {
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

func (e *staticElement) Attribute(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *staticElement) Find(loc Locator) (Element, error) {
	sel := match(e.sel, loc)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, loc)
	}
	return &staticElement{session: e.session, sel: sel.First()}, nil
}

func (e *staticElement) FindAll(loc Locator) ([]Element, error) {
	return wrapAll(e.session, match(e.sel, loc)), nil
}

func (e *staticElement) Click(ctx context.Context) error {
	return e.session.click(ctx, e.sel)
}
