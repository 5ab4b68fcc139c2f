package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pevans/newsharvest"
	"github.com/pevans/newsharvest/config"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/workitems"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// cli holds the flags shared by every command and the state built from
// them before a command runs.
type cli struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *logrus.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "newsharvest",
		Short: "Harvest news search results into spreadsheets",
		Long: `newsharvest searches a news site for a phrase, optionally filtered by
topics, walks the newest-first results back a number of months and exports
them to news_data.xlsx. Runs can be started directly or queued as work items.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file path (default ~/.newsharvest/config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "`debug/info/warn/error`, overrides log.level")

	root.AddCommand(
		newRunCommand(c),
		newProduceCommand(c),
		newConsumeCommand(c),
		newServeCommand(c),
		newItemsCommand(c),
	)

	return root
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.log = log
	return nil
}

// openQueue opens the work item store named by queue.dsn.
func (c *cli) openQueue() (*workitems.Store, error) {
	c.log.WithField("dsn", c.cfg.Queue.DSN).Debug("opening work item queue")
	store, err := workitems.NewStore(c.cfg.Queue.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open work item queue: %w", err)
	}
	return store, nil
}

// harvester builds a harvester from the loaded configuration.
func (c *cli) harvester() (*newsharvest.Harvester, error) {
	downloader := newsharvest.NewHTTPDownloader(newsharvest.DownloaderConfig{
		RatePerSecond: c.cfg.Download.RatePerSecond,
		MaxAttempts:   c.cfg.Download.MaxAttempts,
		Timeout:       c.cfg.Download.Timeout,
		UserAgent:     c.cfg.Browser.UserAgent,
	}, c.log)

	profile := c.cfg.Site
	return newsharvest.NewHarvester(newsharvest.HarvesterConfig{
		Profile:    &profile,
		Browser:    c.cfg.BrowserOptions(c.log),
		UseFeed:    c.cfg.Browser.Backend == config.BackendFeed,
		OutputDir:  c.cfg.OutputDir,
		MaxPages:   c.cfg.Walk.MaxPages,
		Downloader: downloader,
		Logger:     c.log,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM so in-flight waits abort
// and deferred session cleanup still runs.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
