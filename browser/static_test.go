package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPage = `<html><body>
<button class="open">Search</button>
<form action="/search" method="get">
  <input name="q" value="">
  <button class="submit" type="submit">Go</button>
</form>
<a class="hidden-link" href="/x" style="display: none">Hidden</a>
</body></html>`

const resultsPage = `<html><body>
<form action="/search" method="get">
  <input type="hidden" name="q" value="%s">
  <label><input type="checkbox" name="f1" value="tech"><span>Technology</span></label>
  <label><input type="checkbox" name="f1" value="politics" checked><span>Politics</span></label>
  <select name="s">
    <option value="0">Relevance</option>
    <option value="1">Newest</option>
  </select>
</form>
<p class="query">%s</p>
<ul class="results">
  <li><h3><a href="/a1">First   story</a></h3><img src="https://x.s3.amazonaws.com/a.jpg"></li>
  <li><h3><a href="/a2">Second story</a></h3></li>
</ul>
<button class="disabled" disabled>Nope</button>
<a class="next" href="/search?page=2"><span class="chevron">Next</span></a>
</body></html>`

// newTestSite serves a search page and echoes the query string on the
// results page.
func newTestSite(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, resultsPage, r.URL.Query().Get("q"), r.URL.RawQuery)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(t *testing.T) Session {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	s, err := New(context.Background(), Options{
		Backend:        BackendStatic,
		ElementTimeout: time.Second,
		Logger:         log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func queryText(t *testing.T, s Session) string {
	el, err := s.Find(context.Background(), CSS("p.query"))
	require.NoError(t, err)
	text, err := el.Text()
	require.NoError(t, err)
	return text
}

// TestStatic_SearchFormSubmit verifies typed input is submitted with the form
func TestStatic_SearchFormSubmit(t *testing.T) {
	srv := newTestSite(t)
	s := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx, srv.URL))
	require.NoError(t, s.Click(ctx, CSS("button.open")), "scripted button should be a no-op")
	require.NoError(t, s.Input(ctx, CSS("input[name=q]"), "GPT"))
	require.NoError(t, s.Click(ctx, CSS("button.submit")))

	assert.Equal(t, "q=GPT", queryText(t, s))
}

// TestStatic_CheckboxAndSelect verifies topic toggles and sort selection
func TestStatic_CheckboxAndSelect(t *testing.T) {
	srv := newTestSite(t)
	s := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx, srv.URL+"/search?q=GPT"))
	require.NoError(t, s.Click(ctx, CSS("span").WithText("Technology")))
	assert.Equal(t, "f1=tech&f1=politics&q=GPT&s=0", queryText(t, s))

	require.NoError(t, s.SelectOption(ctx, CSS("select[name=s]"), "Newest"))
	assert.Contains(t, queryText(t, s), "s=1")

	err := s.SelectOption(ctx, CSS("select[name=s]"), "Oldest")
	assert.ErrorIs(t, err, ErrElementNotFound)
}

// TestStatic_Elements verifies scoped lookups, text and attributes
func TestStatic_Elements(t *testing.T) {
	srv := newTestSite(t)
	s := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx, srv.URL+"/search?q=x"))

	list, err := s.Find(ctx, CSS("ul.results"))
	require.NoError(t, err)
	items, err := list.FindAll(CSS("li"))
	require.NoError(t, err)
	require.Len(t, items, 2)

	title, err := items[0].Find(CSS("h3 a"))
	require.NoError(t, err)
	text, err := title.Text()
	require.NoError(t, err)
	assert.Equal(t, "First story", text, "whitespace should be collapsed")

	img, err := items[0].Find(CSS("img"))
	require.NoError(t, err)
	src, ok, err := img.Attribute("src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://x.s3.amazonaws.com/a.jpg", src)

	_, err = items[1].Find(CSS("img"))
	assert.ErrorIs(t, err, ErrElementNotFound)

	none, err := items[1].FindAll(CSS("img"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestStatic_LinkNavigation verifies clicking a child of a link follows it
func TestStatic_LinkNavigation(t *testing.T) {
	srv := newTestSite(t)
	s := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx, srv.URL+"/search?q=x"))
	next, err := s.FindAll(ctx, CSS("a > .chevron"))
	require.NoError(t, err)
	require.Len(t, next, 1)
	require.NoError(t, next[0].Click(ctx))

	assert.Equal(t, "page=2", queryText(t, s))
}

// TestStatic_Visibility verifies visibility and wait semantics
func TestStatic_Visibility(t *testing.T) {
	srv := newTestSite(t)
	s := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx, srv.URL))

	shown, err := s.IsVisible(ctx, CSS("a.hidden-link"))
	require.NoError(t, err)
	assert.False(t, shown, "inline display:none should be hidden")

	shown, err = s.IsVisible(ctx, CSS("a.missing"))
	require.NoError(t, err)
	assert.False(t, shown, "missing element should not be visible")

	assert.NoError(t, s.WaitNotVisible(ctx, CSS("a.hidden-link")))
	assert.ErrorIs(t, s.WaitNotVisible(ctx, CSS("button.open")), ErrWaitTimeout)

	require.NoError(t, s.Open(ctx, srv.URL+"/search"))
	assert.NoError(t, s.WaitEnabled(ctx, CSS("ul.results")))
	assert.ErrorIs(t, s.WaitEnabled(ctx, CSS("button.disabled")), ErrWaitTimeout)
	assert.ErrorIs(t, s.WaitEnabled(ctx, CSS("ul.missing")), ErrElementNotFound)
}

// TestStatic_Errors verifies navigation failures and closed sessions
func TestStatic_Errors(t *testing.T) {
	srv := newTestSite(t)
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Find(ctx, CSS("body"))
	assert.ErrorIs(t, err, ErrNavigation, "no page loaded yet")

	assert.ErrorIs(t, s.Open(ctx, srv.URL+"/broken"), ErrNavigation)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Open(ctx, srv.URL), ErrClosed)
}

// TestNew_UnknownBackend verifies backend selection errors
func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), Options{Backend: "selenium"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

// TestLocatorString verifies locator formatting
func TestLocatorString(t *testing.T) {
	assert.Equal(t, "span", CSS("span").String())
	assert.Equal(t, `span:contains("See All")`, CSS("span").WithText("See All").String())
	assert.True(t, Locator{}.IsZero())
}
