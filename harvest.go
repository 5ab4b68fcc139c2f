// Package newsharvest searches a news site, walks the newest-first result
// pages back to a time horizon, and exports the matching articles to a
// spreadsheet. Runs are started directly or drained from a work item queue.
package newsharvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/pevans/newsharvest/article"
	"github.com/pevans/newsharvest/browser"
	"github.com/pevans/newsharvest/discovery"
	"github.com/pevans/newsharvest/scraper"
	"github.com/sirupsen/logrus"
)

// SessionFactory opens a browser session. browser.New is the default.
type SessionFactory func(ctx context.Context, opts browser.Options) (browser.Session, error)

// HarvesterConfig holds the collaborators and settings of a Harvester.
type HarvesterConfig struct {
	Profile *scraper.SiteProfile
	Browser browser.Options
	// UseFeed reads results from Profile.FeedURL instead of driving the
	// site's search page.
	UseFeed    bool
	FeedParser *gofeed.Parser
	OutputDir  string
	// MaxPages caps pagination; 0 means no cap.
	MaxPages   int
	Downloader discovery.Downloader
	NewSession SessionFactory
	Now        func() time.Time
	Logger     logrus.FieldLogger
}

// Harvester runs search requests end to end.
type Harvester struct {
	cfg HarvesterConfig
	log logrus.FieldLogger
}

// RunResult summarizes one completed run.
type RunResult struct {
	RunID         uuid.UUID
	Records       []article.Record
	Horizon       time.Time
	ExportPath    string
	SkippedTopics []string
}

// Count returns the number of exported records.
func (r *RunResult) Count() int {
	return len(r.Records)
}

// NewHarvester creates a harvester, filling unset fields with defaults.
func NewHarvester(cfg HarvesterConfig) (*Harvester, error) {
	if cfg.Profile == nil {
		cfg.Profile = scraper.LATimes()
	}
	if cfg.UseFeed {
		if cfg.Profile.FeedURL == "" {
			return nil, fmt.Errorf("%w: feed_url is required to harvest from a feed", scraper.ErrInvalidProfile)
		}
	} else if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.NewSession == nil {
		cfg.NewSession = browser.New
	}
	if cfg.FeedParser == nil {
		cfg.FeedParser = gofeed.NewParser()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Browser.Logger == nil {
		cfg.Browser.Logger = cfg.Logger
	}

	return &Harvester{cfg: cfg, log: cfg.Logger}, nil
}

// Run harvests into the configured output directory.
func (h *Harvester) Run(ctx context.Context, req SearchRequest) (*RunResult, error) {
	return h.RunTo(ctx, req, h.cfg.OutputDir)
}

// RunTo harvests req and writes the spreadsheet and images into outputDir.
// The browser session is always closed before RunTo returns. On error
// nothing is exported.
func (h *Harvester) RunTo(ctx context.Context, req SearchRequest, outputDir string) (*RunResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:   uuid.New(),
		Horizon: discovery.Horizon(h.cfg.Now(), req.HorizonMonths),
	}
	log := h.log.WithFields(logrus.Fields{
		"run_id":      result.RunID.String(),
		"search_term": req.SearchTerm,
	})
	log.WithFields(logrus.Fields{
		"topics":  req.Topics,
		"months":  req.HorizonMonths,
		"horizon": result.Horizon.Format(time.DateOnly),
	}).Info("starting run")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if h.cfg.UseFeed {
		result.Records, err = h.harvestFeed(ctx, req, outputDir, result.Horizon, log)
	} else {
		result.Records, result.SkippedTopics, err = h.harvestSite(ctx, req, outputDir, result.Horizon, log)
	}
	if err != nil {
		log.WithError(err).Error("run failed")
		return nil, err
	}

	result.ExportPath = filepath.Join(outputDir, ExportFilename)
	if err := WriteXLSX(result.ExportPath, result.Records); err != nil {
		return nil, fmt.Errorf("failed to export results: %w", err)
	}

	log.WithFields(logrus.Fields{
		"records": result.Count(),
		"path":    result.ExportPath,
	}).Info("run complete")

	return result, nil
}

func (h *Harvester) harvestSite(ctx context.Context, req SearchRequest, outputDir string, horizon time.Time, log logrus.FieldLogger) ([]article.Record, []string, error) {
	session, err := h.cfg.NewSession(ctx, h.cfg.Browser)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("failed to close browser session")
		}
	}()

	if err := h.openSite(ctx, session, log); err != nil {
		return nil, nil, err
	}
	if err := h.search(ctx, session, req.SearchTerm); err != nil {
		return nil, nil, fmt.Errorf("failed to search: %w", err)
	}
	if err := h.resetTopics(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to reset topics: %w", err)
	}
	skipped, err := h.filterTopics(ctx, session, req.Topics, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to filter topics: %w", err)
	}
	if err := h.sortNewest(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to sort results: %w", err)
	}

	source := discovery.NewDOMSource(session, h.cfg.Profile)
	records, err := h.walk(ctx, req, outputDir, horizon, source, log)
	if err != nil {
		return nil, nil, err
	}
	return records, skipped, nil
}

func (h *Harvester) harvestFeed(ctx context.Context, req SearchRequest, outputDir string, horizon time.Time, log logrus.FieldLogger) ([]article.Record, error) {
	feedURL := h.cfg.Profile.FeedURLFor(req.SearchTerm)
	log.WithField("url", feedURL).Info("fetching feed")

	source, err := FetchFeedSource(ctx, h.cfg.FeedParser, feedURL)
	if err != nil {
		return nil, err
	}
	if len(req.Topics) > 0 {
		log.WithField("topics", req.Topics).Warn("topic filters are not applied to feeds")
	}

	return h.walk(ctx, req, outputDir, horizon, source, log)
}

func (h *Harvester) walk(ctx context.Context, req SearchRequest, outputDir string, horizon time.Time, source discovery.PageSource, log logrus.FieldLogger) ([]article.Record, error) {
	extractor := discovery.NewExtractor(discovery.ExtractorConfig{
		Formats:          h.cfg.Profile.Formats(),
		TrustedImageHost: h.cfg.Profile.TrustedImageHost,
		OutputDir:        outputDir,
		Downloader:       h.cfg.Downloader,
		Now:              h.cfg.Now,
		Logger:           log,
	})
	walker := &discovery.Walker{
		Extractor:  extractor,
		SearchTerm: req.SearchTerm,
		MaxPages:   h.cfg.MaxPages,
		Logger:     log,
	}

	records, err := walker.Walk(ctx, horizon, source)
	if err != nil {
		return nil, fmt.Errorf("failed to extract results: %w", err)
	}
	return records, nil
}

// openSite loads the home page and dismisses the newsletter popup when one
// is showing.
func (h *Harvester) openSite(ctx context.Context, session browser.Session, log logrus.FieldLogger) error {
	p := h.cfg.Profile
	if err := session.Open(ctx, p.BaseURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", p.BaseURL, err)
	}

	if p.PopupClose.IsZero() {
		return nil
	}
	shown, err := session.IsVisible(ctx, p.PopupClose)
	if err != nil || !shown {
		return nil
	}
	if err := session.Click(ctx, p.PopupClose); err != nil {
		log.WithError(err).Debug("failed to dismiss popup")
	}
	return nil
}

func (h *Harvester) search(ctx context.Context, session browser.Session, term string) error {
	p := h.cfg.Profile
	if !p.SearchOpen.IsZero() {
		if err := session.Click(ctx, p.SearchOpen); err != nil {
			return err
		}
	}
	if err := session.Input(ctx, p.SearchInput, term); err != nil {
		return err
	}
	if err := session.Click(ctx, p.SearchSubmit); err != nil {
		return err
	}
	return session.WaitEnabled(ctx, p.ResultList)
}

// resetTopics clears topic filters left over from a previous search.
func (h *Harvester) resetTopics(ctx context.Context, session browser.Session) error {
	p := h.cfg.Profile
	if p.ResetTopics.IsZero() {
		return nil
	}
	shown, err := session.IsVisible(ctx, p.ResetTopics)
	if err != nil || !shown {
		return err
	}
	if err := session.Click(ctx, p.ResetTopics); err != nil {
		return err
	}
	return session.WaitNotVisible(ctx, p.ResetTopics)
}

// filterTopics applies each allowed topic and returns the rejected ones.
func (h *Harvester) filterTopics(ctx context.Context, session browser.Session, topics []string, log logrus.FieldLogger) ([]string, error) {
	p := h.cfg.Profile
	allowed, rejected := p.PartitionTopics(topics)
	for _, topic := range rejected {
		log.WithField("topic", topic).Warn("topic not offered by site, skipping")
	}

	for _, topic := range allowed {
		if !p.SeeAllTopics.IsZero() {
			shown, err := session.IsVisible(ctx, p.SeeAllTopics)
			if err != nil {
				return rejected, err
			}
			if shown {
				if err := session.Click(ctx, p.SeeAllTopics); err != nil {
					return rejected, err
				}
			}
		}

		if err := session.Click(ctx, p.TopicLabel.WithText(topic)); err != nil {
			if errors.Is(err, browser.ErrElementNotFound) {
				return rejected, fmt.Errorf("topic %q: %w", topic, err)
			}
			return rejected, err
		}
		if err := session.WaitEnabled(ctx, p.ResultList); err != nil {
			return rejected, err
		}
		log.WithField("topic", topic).Info("topic applied")
	}

	return rejected, nil
}

func (h *Harvester) sortNewest(ctx context.Context, session browser.Session) error {
	p := h.cfg.Profile
	if err := session.WaitEnabled(ctx, p.SortSelect); err != nil {
		return err
	}
	if err := session.SelectOption(ctx, p.SortSelect, p.SortNewest); err != nil {
		return err
	}
	return session.WaitEnabled(ctx, p.ResultList)
}
