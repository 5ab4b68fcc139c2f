// Package browser is the page-state and action capability the harvester
// drives. A Session is created once per run with one of two backends: "rod"
// drives headless Chrome, "static" reads server-rendered HTML over HTTP and
// emulates links, form submission and select changes without scripting.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Errors returned by sessions. Any of them aborts a run.
var (
	ErrElementNotFound = errors.New("element not found")
	ErrWaitTimeout     = errors.New("wait timed out")
	ErrNavigation      = errors.New("navigation failed")
	ErrUnknownBackend  = errors.New("unknown browser backend")
	ErrClosed          = errors.New("session closed")
)

// Backend names accepted by New.
const (
	BackendRod    = "rod"
	BackendStatic = "static"
)

// Locator identifies elements by CSS selector, optionally restricted to
// elements whose text contains Text.
type Locator struct {
	CSS  string `yaml:"css" json:"css"`
	Text string `yaml:"text,omitempty" json:"text,omitempty"`
}

// CSS returns a locator for a plain CSS selector.
func CSS(selector string) Locator {
	return Locator{CSS: selector}
}

// WithText returns a copy of l that also requires the element text to
// contain text.
func (l Locator) WithText(text string) Locator {
	l.Text = text
	return l
}

// IsZero reports whether the locator has no selector.
func (l Locator) IsZero() bool {
	return l.CSS == ""
}

func (l Locator) String() string {
	if l.Text == "" {
		return l.CSS
	}
	return fmt.Sprintf("%s:contains(%q)", l.CSS, l.Text)
}

// Element is one node found on the current page.
type Element interface {
	// Text returns the element's visible text with whitespace collapsed.
	Text() (string, error)
	// Attribute returns the raw attribute value and whether it exists.
	Attribute(name string) (string, bool, error)
	// Find returns the first descendant matching loc without waiting, or
	// ErrElementNotFound.
	Find(loc Locator) (Element, error)
	// FindAll returns every descendant matching loc, possibly none.
	FindAll(loc Locator) ([]Element, error)
	Click(ctx context.Context) error
}

// Session is a single browser session. Calls are blocking and bounded by the
// configured timeouts.
type Session interface {
	Open(ctx context.Context, url string) error
	// Find waits up to the element timeout for loc to appear.
	Find(ctx context.Context, loc Locator) (Element, error)
	// FindAll returns the elements currently matching loc without waiting.
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
	IsVisible(ctx context.Context, loc Locator) (bool, error)
	Click(ctx context.Context, loc Locator) error
	Input(ctx context.Context, loc Locator, text string) error
	WaitEnabled(ctx context.Context, loc Locator) error
	WaitNotVisible(ctx context.Context, loc Locator) error
	SelectOption(ctx context.Context, loc Locator, optionText string) error
	Close() error
}

// Options configures a session.
type Options struct {
	Backend         string
	Headless        bool
	ControlURL      string
	PageLoadTimeout time.Duration
	ElementTimeout  time.Duration
	UserAgent       string
	HTTPClient      *http.Client
	Logger          logrus.FieldLogger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Backend:         BackendRod,
		Headless:        true,
		PageLoadTimeout: 60 * time.Second,
		ElementTimeout:  60 * time.Second,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	}
}

// New creates a session for the configured backend.
func New(ctx context.Context, opts Options) (Session, error) {
	defaults := DefaultOptions()
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = defaults.PageLoadTimeout
	}
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = defaults.ElementTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	switch opts.Backend {
	case BackendRod, "":
		return newRodSession(ctx, opts)
	case BackendStatic:
		return newStaticSession(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
