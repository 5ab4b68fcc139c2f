package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pevans/newsharvest/article"
	"github.com/pevans/newsharvest/datenorm"
	"github.com/sirupsen/logrus"
)

// ErrEmptyTitle is returned when an entry's title element exists but has no
// text.
var ErrEmptyTitle = errors.New("entry title is empty")

// Entry is one raw item of a result list. Optional fields return "" when the
// entry does not have them; Title returns an error wrapping
// browser.ErrElementNotFound when it is missing.
type Entry interface {
	Title() (string, error)
	DateText() (string, error)
	Description() (string, error)
	ImageURL() (string, error)
}

// Downloader fetches a URL into a local file.
type Downloader interface {
	Download(ctx context.Context, url, destPath string, overwrite bool) error
}

// Extractor turns entries into article records.
type Extractor struct {
	formats     []datenorm.FormatSpec
	trustedHost string
	outputDir   string
	downloader  Downloader
	now         func() time.Time
	log         logrus.FieldLogger
}

// ExtractorConfig holds the collaborators and settings of an Extractor.
type ExtractorConfig struct {
	Formats          []datenorm.FormatSpec
	TrustedImageHost string
	OutputDir        string
	// Downloader may be nil, in which case no images are fetched and every
	// image reference stays empty.
	Downloader Downloader
	Now        func() time.Time
	Logger     logrus.FieldLogger
}

// NewExtractor creates an extractor, filling unset fields with defaults.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	x := &Extractor{
		formats:     cfg.Formats,
		trustedHost: strings.ToLower(cfg.TrustedImageHost),
		outputDir:   cfg.OutputDir,
		downloader:  cfg.Downloader,
		now:         cfg.Now,
		log:         cfg.Logger,
	}
	if len(x.formats) == 0 {
		x.formats = datenorm.DefaultFormats
	}
	if x.now == nil {
		x.now = time.Now
	}
	if x.log == nil {
		x.log = logrus.StandardLogger()
	}
	return x
}

// ExtractOne reads one entry into a record. It has no side effects; images
// are fetched separately by DownloadImage once the record is kept.
func (x *Extractor) ExtractOne(entry Entry, searchTerm string) (article.Record, error) {
	title, err := entry.Title()
	if err != nil {
		return article.Record{}, fmt.Errorf("failed to extract title: %w", err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return article.Record{}, ErrEmptyTitle
	}

	rec := article.Record{Title: title}

	dateText, err := entry.DateText()
	if err != nil {
		return article.Record{}, fmt.Errorf("failed to extract date: %w", err)
	}
	now := x.now()
	if res := datenorm.AttemptIn(dateText, x.formats, now.Location()); res.OK {
		rec.PublishedAt = res.Time
	} else {
		rec.PublishedAt = now
		rec.DateFallback = true
		x.log.WithFields(logrus.Fields{
			"title": title,
			"raw":   dateText,
		}).Warn("failed to convert date, using current time")
	}

	rec.Description, err = entry.Description()
	if err != nil {
		return article.Record{}, fmt.Errorf("failed to extract description: %w", err)
	}
	rec.Description = strings.TrimSpace(rec.Description)

	imageURL, err := entry.ImageURL()
	if err != nil {
		return article.Record{}, fmt.Errorf("failed to extract image: %w", err)
	}
	if name, ok := ImageFilename(imageURL, x.trustedHost); ok {
		rec.ImageURL = imageURL
		rec.ImageReference = name
	}

	text := rec.Title + rec.Description
	rec.SearchTermHits = article.CountSearchTerm(text, searchTerm)
	rec.MentionsMoney = article.MentionsMoney(text)

	return rec, nil
}

// DownloadImage fetches the record's image into the output directory. It is
// best-effort: failures are logged and clear the image reference so it never
// points at a file that does not exist.
func (x *Extractor) DownloadImage(ctx context.Context, rec *article.Record) {
	if rec.ImageReference == "" {
		return
	}
	if x.downloader == nil {
		rec.ImageReference = ""
		return
	}

	dest := filepath.Join(x.outputDir, rec.ImageReference)
	if err := x.downloader.Download(ctx, rec.ImageURL, dest, true); err != nil {
		x.log.WithError(err).WithField("url", rec.ImageURL).Warn("failed to download image")
		rec.ImageReference = ""
	}
}

// ImageFilename reports whether rawURL points into trustedHost and returns
// the file name derived from its trailing path segment. CDN resizer URLs that
// carry the original location in a "url" query parameter are resolved to
// that original first.
func ImageFilename(rawURL, trustedHost string) (string, bool) {
	if rawURL == "" || trustedHost == "" {
		return "", false
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	if inner := u.Query().Get("url"); inner != "" {
		if iu, err := url.Parse(inner); err == nil && iu.Host != "" {
			u = iu
		}
	}

	host := strings.ToLower(u.Hostname())
	trustedHost = strings.ToLower(trustedHost)
	if host != trustedHost && !strings.HasSuffix(host, "."+trustedHost) {
		return "", false
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", false
	}
	return name, true
}
