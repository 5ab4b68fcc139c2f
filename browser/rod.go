package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// clickSettle is how long an action waits for a navigation to start before
// treating the click as in-page.
const clickSettle = 2 * time.Second

// rodSession drives Chrome over the DevTools protocol. When no control URL is
// configured a local browser is launched and killed again on Close.
//
// The browser itself is not bound to the run context so Close still reaches
// it after a cancellation; every call scopes the page to its own context.
type rodSession struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher

	pageLoadTimeout time.Duration
	elementTimeout  time.Duration
	settle          time.Duration
	log             logrus.FieldLogger
}

func newRodSession(ctx context.Context, opts Options) (*rodSession, error) {
	s := &rodSession{
		pageLoadTimeout: opts.PageLoadTimeout,
		elementTimeout:  opts.ElementTimeout,
		settle:          clickSettle,
		log:             opts.Logger.WithField("backend", BackendRod),
	}

	controlURL := opts.ControlURL
	if controlURL == "" {
		s.launcher = launcher.New().
			Headless(opts.Headless).
			Set("lang", "en-US").
			Set("ignore-certificate-errors").
			Set("disable-infobars")

		u, err := s.launcher.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
		s.log.WithField("control_url", controlURL).Info("launched browser")
	} else {
		s.log.WithField("control_url", controlURL).Info("attaching to browser")
	}

	if err := ctx.Err(); err != nil {
		s.killLauncher()
		return nil, err
	}

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		s.killLauncher()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			s.log.WithError(err).Warn("failed to set user agent")
		}
	}
	s.page = page

	return s, nil
}

// classify maps rod and context errors onto the package errors.
func classify(err error, kind error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if kind == ErrElementNotFound {
			return fmt.Errorf("%w: %s", ErrElementNotFound, what)
		}
		return fmt.Errorf("%w: %s", ErrWaitTimeout, what)
	}
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, what)
	}
	return fmt.Errorf("%w: %s: %w", kind, what, err)
}

func (s *rodSession) Open(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.pageLoadTimeout)
	if err := page.Navigate(url); err != nil {
		return classify(err, ErrNavigation, url)
	}
	if err := page.WaitLoad(); err != nil {
		return classify(err, ErrWaitTimeout, url)
	}
	s.log.WithField("url", url).Debug("page loaded")
	return nil
}

func (s *rodSession) element(ctx context.Context, loc Locator) (*rod.Element, error) {
	page := s.page.Context(ctx).Timeout(s.elementTimeout)

	var (
		el  *rod.Element
		err error
	)
	if loc.Text == "" {
		el, err = page.Element(loc.CSS)
	} else {
		el, err = page.ElementR(loc.CSS, regexp.QuoteMeta(loc.Text))
	}
	if err != nil {
		return nil, classify(err, ErrElementNotFound, loc.String())
	}

	return el.CancelTimeout(), nil
}

func (s *rodSession) Find(ctx context.Context, loc Locator) (Element, error) {
	el, err := s.element(ctx, loc)
	if err != nil {
		return nil, err
	}
	return &rodElement{el: el, s: s}, nil
}

func (s *rodSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	els, err := s.page.Context(ctx).Elements(loc.CSS)
	if err != nil {
		return nil, classify(err, ErrElementNotFound, loc.String())
	}
	return s.filterText(els, loc.Text)
}

func (s *rodSession) IsVisible(ctx context.Context, loc Locator) (bool, error) {
	page := s.page.Context(ctx)

	var (
		has bool
		el  *rod.Element
		err error
	)
	if loc.Text == "" {
		has, el, err = page.Has(loc.CSS)
	} else {
		has, el, err = page.HasR(loc.CSS, regexp.QuoteMeta(loc.Text))
	}
	if err != nil {
		return false, classify(err, ErrNavigation, loc.String())
	}
	if !has {
		return false, nil
	}

	shown, err := el.Visible()
	if err != nil {
		return false, classify(err, ErrNavigation, loc.String())
	}
	return shown, nil
}

func (s *rodSession) Click(ctx context.Context, loc Locator) error {
	el, err := s.element(ctx, loc)
	if err != nil {
		return err
	}
	return s.settleAfter(ctx, "click "+loc.String(), func() error {
		err := el.Context(ctx).Timeout(s.elementTimeout).Click(proto.InputMouseButtonLeft, 1)
		return classify(err, ErrWaitTimeout, "click "+loc.String())
	})
}

// settleAfter runs action and, if it starts a navigation of the main frame
// within the settle window, waits for the new document to stop loading.
// Without this, waits that follow a click can match nodes of the page being
// replaced.
func (s *rodSession) settleAfter(ctx context.Context, what string, action func() error) error {
	navCtx, cancel := context.WithTimeout(ctx, s.pageLoadTimeout)
	defer cancel()
	startCtx, stopStart := context.WithTimeout(navCtx, s.settle)
	defer stopStart()

	frame := s.page.FrameID
	started := false
	waitStarted := s.page.Context(startCtx).EachEvent(func(e *proto.PageFrameStartedLoading) bool {
		started = e.FrameID == frame
		return started
	})
	waitStopped := s.page.Context(navCtx).EachEvent(func(e *proto.PageFrameStoppedLoading) bool {
		return e.FrameID == frame
	})

	if err := action(); err != nil {
		return err
	}

	waitStarted()
	if !started {
		return nil
	}

	waitStopped()
	if err := ctx.Err(); err != nil {
		return err
	}
	if navCtx.Err() != nil {
		return fmt.Errorf("%w: load after %s", ErrWaitTimeout, what)
	}
	s.log.WithField("action", what).Debug("page reloaded")
	return nil
}

func (s *rodSession) Input(ctx context.Context, loc Locator, text string) error {
	el, err := s.element(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).Timeout(s.elementTimeout).Input(text); err != nil {
		return classify(err, ErrWaitTimeout, "input "+loc.String())
	}
	return nil
}

func (s *rodSession) WaitEnabled(ctx context.Context, loc Locator) error {
	el, err := s.element(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).Timeout(s.elementTimeout).WaitEnabled(); err != nil {
		return classify(err, ErrWaitTimeout, "enabled "+loc.String())
	}
	return nil
}

func (s *rodSession) WaitNotVisible(ctx context.Context, loc Locator) error {
	page := s.page.Context(ctx)

	var (
		has bool
		el  *rod.Element
		err error
	)
	if loc.Text == "" {
		has, el, err = page.Has(loc.CSS)
	} else {
		has, el, err = page.HasR(loc.CSS, regexp.QuoteMeta(loc.Text))
	}
	if err != nil {
		return classify(err, ErrNavigation, loc.String())
	}
	if !has {
		return nil
	}

	if err := el.Context(ctx).Timeout(s.elementTimeout).WaitInvisible(); err != nil {
		return classify(err, ErrWaitTimeout, "invisible "+loc.String())
	}
	return nil
}

func (s *rodSession) SelectOption(ctx context.Context, loc Locator, optionText string) error {
	el, err := s.element(ctx, loc)
	if err != nil {
		return err
	}
	what := fmt.Sprintf("option %q in %s", optionText, loc)
	return s.settleAfter(ctx, what, func() error {
		err := el.Context(ctx).Timeout(s.elementTimeout).Select([]string{optionText}, true, rod.SelectorTypeText)
		return classify(err, ErrElementNotFound, what)
	})
}

func (s *rodSession) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	s.killLauncher()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func (s *rodSession) killLauncher() {
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	}
}

func (s *rodSession) filterText(els rod.Elements, text string) ([]Element, error) {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		if text != "" {
			t, err := el.Text()
			if err != nil {
				return nil, classify(err, ErrNavigation, "read text")
			}
			if !strings.Contains(t, text) {
				continue
			}
		}
		out = append(out, &rodElement{el: el, s: s})
	}
	return out, nil
}

// rodElement wraps a live DOM node.
type rodElement struct {
	el *rod.Element
	s  *rodSession
}

func (e *rodElement) Text() (string, error) {
	t, err := e.el.Text()
	if err != nil {
		return "", classify(err, ErrNavigation, "read text")
	}
	return strings.Join(strings.Fields(t), " "), nil
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, classify(err, ErrNavigation, "read attribute "+name)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// Find does not wait: entries are fully rendered once the result list is.
func (e *rodElement) Find(loc Locator) (Element, error) {
	all, err := e.FindAll(loc)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, loc)
	}
	return all[0], nil
}

func (e *rodElement) FindAll(loc Locator) ([]Element, error) {
	els, err := e.el.Elements(loc.CSS)
	if err != nil {
		return nil, classify(err, ErrElementNotFound, loc.String())
	}
	return e.s.filterText(els, loc.Text)
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.s.settleAfter(ctx, "click", func() error {
		err := e.el.Context(ctx).Timeout(e.s.elementTimeout).Click(proto.InputMouseButtonLeft, 1)
		return classify(err, ErrWaitTimeout, "click")
	})
}
