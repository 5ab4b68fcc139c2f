package newsharvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrUnexpectedStatus is wrapped when an image server answers with anything
// but 200.
var ErrUnexpectedStatus = errors.New("unexpected status code")

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrUnexpectedStatus, e.code)
}

func (e *statusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// DownloaderConfig tunes HTTPDownloader.
type DownloaderConfig struct {
	// RatePerSecond limits request starts; 0 disables throttling.
	RatePerSecond float64
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Timeout       time.Duration
	UserAgent     string
	Client        *http.Client
}

// HTTPDownloader fetches images over HTTP with throttling and retries on
// transient failures.
type HTTPDownloader struct {
	client       *http.Client
	limiter      *rate.Limiter
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	userAgent    string
	log          logrus.FieldLogger
}

// NewHTTPDownloader creates a downloader, filling unset fields with
// defaults.
func NewHTTPDownloader(cfg DownloaderConfig, log logrus.FieldLogger) *HTTPDownloader {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &HTTPDownloader{
		client:       cfg.Client,
		limiter:      rate.NewLimiter(limit, 1),
		maxAttempts:  cfg.MaxAttempts,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		userAgent:    cfg.UserAgent,
		log:          log,
	}
}

// Download saves url to destPath. Unless overwrite is set an existing file
// is kept and no request is made.
func (d *HTTPDownloader) Download(ctx context.Context, url, destPath string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(destPath); err == nil {
			d.log.WithField("path", destPath).Debug("image already downloaded")
			return nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if delay := d.retryDelay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("download throttled: %w", err)
		}

		lastErr = d.fetch(ctx, url, destPath)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || ctx.Err() != nil {
			break
		}

		d.log.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
		}).WithError(lastErr).Debug("image download failed, retrying")
	}

	return fmt.Errorf("failed to download %s: %w", url, lastErr)
}

// retryDelay is exponential backoff: nothing before the first attempt, then
// initialDelay doubling up to maxDelay.
func (d *HTTPDownloader) retryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := d.initialDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= d.maxDelay {
			return d.maxDelay
		}
	}
	return delay
}

func (d *HTTPDownloader) fetch(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	// Write next to the target and rename so a partial file never looks
	// like a finished download.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to read image body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	return os.Rename(tmp.Name(), destPath)
}

// retryable reports whether err is worth another attempt: transport errors
// and the status codes servers use for temporary conditions.
func retryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return true
	}
	switch se.code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
