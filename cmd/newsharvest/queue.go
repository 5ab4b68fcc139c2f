package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsharvest"
	"github.com/pevans/newsharvest/workitems"
	"github.com/spf13/cobra"
)

func newProduceCommand(c *cli) *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Queue a search as a work item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			payload, err := req.Payload()
			if err != nil {
				return fmt.Errorf("failed to encode payload: %w", err)
			}

			store, err := c.openQueue()
			if err != nil {
				return err
			}
			defer store.Close()

			item, err := store.Create(payload)
			if err != nil {
				return fmt.Errorf("failed to create work item: %w", err)
			}

			fmt.Printf("✓ Created work item %s\n", item.ID)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newConsumeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Process queued work items until the queue is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openQueue()
			if err != nil {
				return err
			}
			defer store.Close()

			h, err := c.harvester()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			stats, err := newsharvest.NewConsumer(store, h, c.cfg.OutputDir, c.log).Drain(ctx)
			fmt.Printf("✓ Processed %d work items (%d done, %d failed)\n", stats.Done+stats.Failed, stats.Done, stats.Failed)
			return err
		},
	}
}

func newServeCommand(c *cli) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the work item HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = c.cfg.API.Listen
			}

			store, err := c.openQueue()
			if err != nil {
				return err
			}
			defer store.Close()

			api := workitems.NewAPIServer(store, newsharvest.ValidatePayload)
			srv := &http.Server{
				Addr:              listen,
				Handler:           api.SetupRouter(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, cancel := signalContext()
			defer cancel()

			errChan := make(chan error, 1)
			go func() {
				c.log.WithField("addr", listen).Info("starting work item API on /api/v1/workitems")
				errChan <- srv.ListenAndServe()
			}()

			select {
			case err := <-errChan:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				c.log.Info("shutting down gracefully")
				shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
				defer stop()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides api.listen")
	return cmd
}

func newItemsCommand(c *cli) *cobra.Command {
	items := &cobra.Command{
		Use:   "items",
		Short: "Inspect and manage work items",
	}

	var (
		state  string
		limit  int
		format string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openQueue()
			if err != nil {
				return err
			}
			defer store.Close()

			filter := workitems.Filter{Limit: limit}
			if state != "" {
				filter.State = &state
			}
			found, err := store.List(filter)
			if err != nil {
				return fmt.Errorf("failed to list work items: %w", err)
			}

			switch format {
			case "json":
				return printItemsJSON(found)
			case "table":
				printItemsTable(found)
				return nil
			default:
				return fmt.Errorf("unknown format %q, want table or json", format)
			}
		},
	}
	list.Flags().StringVar(&state, "state", "", "only items in this state (pending, in_progress, done, failed)")
	list.Flags().IntVar(&limit, "limit", 0, "maximum items to show")
	list.Flags().StringVar(&format, "format", "table", "output format: table or json")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid work item ID: %w", err)
			}

			store, err := c.openQueue()
			if err != nil {
				return err
			}
			defer store.Close()

			item, err := store.Get(id)
			if err != nil {
				return err
			}
			printItemDetail(item)
			return nil
		},
	}

	retry := &cobra.Command{
		Use:   "retry <id>",
		Short: "Move a failed work item back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid work item ID: %w", err)
			}

			store, err := c.openQueue()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Retry(id); err != nil {
				return err
			}
			fmt.Printf("✓ Requeued work item %s\n", id)
			return nil
		},
	}

	var olderThan time.Duration
	reclaim := &cobra.Command{
		Use:   "reclaim",
		Short: "Move stale in_progress work items back to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openQueue()
			if err != nil {
				return err
			}
			defer store.Close()

			requeued, err := store.Reclaim(olderThan)
			if err != nil {
				return fmt.Errorf("failed to reclaim work items: %w", err)
			}
			for _, id := range requeued {
				fmt.Printf("✓ Requeued work item %s\n", id)
			}
			if len(requeued) == 0 {
				fmt.Println("No stale work items.")
			}
			return nil
		},
	}
	reclaim.Flags().DurationVar(&olderThan, "older-than", time.Hour, "only items claimed longer ago than this")

	items.AddCommand(list, show, retry, reclaim)
	return items
}
