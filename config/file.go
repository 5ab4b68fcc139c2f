package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pevans/newsharvest/browser"
	"github.com/pevans/newsharvest/scraper"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// QueueConfig locates the work item database.
type QueueConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// BrowserConfig selects and tunes the browser backend.
type BrowserConfig struct {
	// Backend is "rod", "static" or "feed".
	Backend         string        `yaml:"backend"`
	Headless        bool          `yaml:"headless"`
	ControlURL      string        `yaml:"control_url"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
	ElementTimeout  time.Duration `yaml:"element_timeout"`
	UserAgent       string        `yaml:"user_agent"`
}

// WalkConfig bounds pagination.
type WalkConfig struct {
	// MaxPages caps the pages visited per run; 0 means no cap.
	MaxPages int `yaml:"max_pages"`
}

// DownloadConfig throttles and retries image downloads.
type DownloadConfig struct {
	RatePerSecond float64       `yaml:"rate_per_second"`
	MaxAttempts   int           `yaml:"max_attempts"`
	Timeout       time.Duration `yaml:"timeout"`
}

// APIConfig configures the queue HTTP API.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// Config represents the structure of ~/.newsharvest/config.yaml.
type Config struct {
	OutputDir string              `yaml:"output_dir"`
	Queue     QueueConfig         `yaml:"queue"`
	Log       LogConfig           `yaml:"log"`
	Browser   BrowserConfig       `yaml:"browser"`
	Walk      WalkConfig          `yaml:"walk"`
	Download  DownloadConfig      `yaml:"download"`
	API       APIConfig           `yaml:"api"`
	Site      scraper.SiteProfile `yaml:"site"`
}

// BackendFeed reads search results from the site's RSS feed instead of a
// browser session.
const BackendFeed = "feed"

// Default returns the configuration used when no file is present.
func Default() *Config {
	opts := browser.DefaultOptions()
	return &Config{
		OutputDir: "output",
		Queue:     QueueConfig{DSN: filepath.Join(configDir(), "queue.db")},
		Log:       LogConfig{Level: "info"},
		Browser: BrowserConfig{
			Backend:         opts.Backend,
			Headless:        opts.Headless,
			PageLoadTimeout: opts.PageLoadTimeout,
			ElementTimeout:  opts.ElementTimeout,
			UserAgent:       opts.UserAgent,
		},
		Walk: WalkConfig{MaxPages: 50},
		Download: DownloadConfig{
			RatePerSecond: 2,
			MaxAttempts:   3,
			Timeout:       30 * time.Second,
		},
		API:  APIConfig{Listen: ":8080"},
		Site: *scraper.LATimes(),
	}
}

func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".newsharvest"
	}
	return filepath.Join(homeDir, ".newsharvest")
}

// DefaultPath returns ~/.newsharvest/config.yaml.
func DefaultPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// Load reads the configuration file at path (DefaultPath when empty) over
// the defaults, then applies environment overrides. A missing file is not an
// error. Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// File doesn't exist -- not an error
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration parses a duration from environment variable or returns
// default.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func (c *Config) applyEnv() error {
	c.OutputDir = getEnv("NEWSHARVEST_OUTPUT_DIR", c.OutputDir)
	c.Queue.DSN = getEnv("NEWSHARVEST_QUEUE_DSN", c.Queue.DSN)
	c.Log.Level = getEnv("NEWSHARVEST_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("NEWSHARVEST_LOG_FILE", c.Log.File)
	c.Browser.Backend = getEnv("NEWSHARVEST_BROWSER_BACKEND", c.Browser.Backend)
	c.Browser.ControlURL = getEnv("NEWSHARVEST_BROWSER_CONTROL_URL", c.Browser.ControlURL)
	c.API.Listen = getEnv("NEWSHARVEST_API_LISTEN", c.API.Listen)
	c.Site.BaseURL = getEnv("NEWSHARVEST_SITE_URL", c.Site.BaseURL)

	var err error
	if c.Browser.PageLoadTimeout, err = getEnvDuration("NEWSHARVEST_PAGE_LOAD_TIMEOUT", c.Browser.PageLoadTimeout); err != nil {
		return err
	}
	if c.Browser.ElementTimeout, err = getEnvDuration("NEWSHARVEST_ELEMENT_TIMEOUT", c.Browser.ElementTimeout); err != nil {
		return err
	}
	if c.Walk.MaxPages, err = getEnvInt("NEWSHARVEST_MAX_PAGES", c.Walk.MaxPages); err != nil {
		return err
	}
	if headless := os.Getenv("NEWSHARVEST_BROWSER_HEADLESS"); headless != "" {
		b, err := strconv.ParseBool(headless)
		if err != nil {
			return fmt.Errorf("invalid NEWSHARVEST_BROWSER_HEADLESS: %w", err)
		}
		c.Browser.Headless = b
	}

	return nil
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	switch c.Browser.Backend {
	case browser.BackendRod, browser.BackendStatic, BackendFeed:
	default:
		return fmt.Errorf("%w: browser.backend must be rod, static or feed, got %q", ErrInvalidConfig, c.Browser.Backend)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output_dir is required", ErrInvalidConfig)
	}
	if c.Walk.MaxPages < 0 {
		return fmt.Errorf("%w: walk.max_pages must not be negative", ErrInvalidConfig)
	}
	if c.Download.RatePerSecond < 0 {
		return fmt.Errorf("%w: download.rate_per_second must not be negative", ErrInvalidConfig)
	}
	if c.Browser.Backend == BackendFeed {
		if c.Site.FeedURL == "" {
			return fmt.Errorf("%w: site.feed_url is required for the feed backend", ErrInvalidConfig)
		}
		return nil
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// BrowserOptions converts the browser section into session options.
func (c *Config) BrowserOptions(log logrus.FieldLogger) browser.Options {
	return browser.Options{
		Backend:         c.Browser.Backend,
		Headless:        c.Browser.Headless,
		ControlURL:      c.Browser.ControlURL,
		PageLoadTimeout: c.Browser.PageLoadTimeout,
		ElementTimeout:  c.Browser.ElementTimeout,
		UserAgent:       c.Browser.UserAgent,
		Logger:          log,
	}
}
