package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/pevans/newsharvest/article"
	"github.com/sirupsen/logrus"
)

// DefaultMaxPages bounds a walk when nothing else is configured.
const DefaultMaxPages = 50

// PageSource is a paginated list of result entries.
type PageSource interface {
	// Entries returns the current page's entries in display order.
	Entries(ctx context.Context) ([]Entry, error)
	HasNext(ctx context.Context) (bool, error)
	Next(ctx context.Context) error
}

// Walker extracts records page by page until one falls before the horizon.
type Walker struct {
	Extractor  *Extractor
	SearchTerm string
	// MaxPages stops the walk after this many pages. Zero means no limit.
	MaxPages int
	Logger   logrus.FieldLogger
}

// Walk reads pages from source in order and returns the records published at
// or after horizon. The walk stops at the first record older than horizon;
// that record and every entry after it are dropped, since results are sorted
// newest first. It also stops when the source has no next page or MaxPages is
// reached.
//
// On error the records accumulated so far are returned with it.
func (w *Walker) Walk(ctx context.Context, horizon time.Time, source PageSource) ([]article.Record, error) {
	log := w.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	records := []article.Record{}
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		entries, err := source.Entries(ctx)
		if err != nil {
			return records, fmt.Errorf("failed to read page %d: %w", page, err)
		}
		log.WithFields(logrus.Fields{"page": page, "entries": len(entries)}).Info("extracting page")

		for i, entry := range entries {
			rec, err := w.Extractor.ExtractOne(entry, w.SearchTerm)
			if err != nil {
				return records, fmt.Errorf("failed to extract entry %d on page %d: %w", i+1, page, err)
			}

			if rec.PublishedAt.Before(horizon) {
				log.WithFields(logrus.Fields{
					"page":      page,
					"published": rec.PublishedAt.Format(time.DateOnly),
					"horizon":   horizon.Format(time.DateOnly),
					"kept":      len(records),
				}).Info("reached horizon")
				return records, nil
			}

			w.Extractor.DownloadImage(ctx, &rec)
			records = append(records, rec)
		}

		if w.MaxPages > 0 && page >= w.MaxPages {
			log.WithField("max_pages", w.MaxPages).Warn("page limit reached before horizon")
			return records, nil
		}

		more, err := source.HasNext(ctx)
		if err != nil {
			return records, fmt.Errorf("failed to check for page %d: %w", page+1, err)
		}
		if !more {
			log.WithField("page", page).Info("no more pages")
			return records, nil
		}

		if err := source.Next(ctx); err != nil {
			return records, fmt.Errorf("failed to open page %d: %w", page+1, err)
		}
	}
}
