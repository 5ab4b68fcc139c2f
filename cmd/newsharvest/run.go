package main

import (
	"fmt"

	"github.com/pevans/newsharvest"
	"github.com/spf13/cobra"
)

// requestFlags are the search parameters shared by run and produce.
type requestFlags struct {
	term   string
	topics []string
	months int
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.term, "term", "t", "", "search phrase (required)")
	cmd.Flags().StringArrayVar(&f.topics, "topic", nil, "topic filter, repeatable")
	cmd.Flags().IntVarP(&f.months, "months", "m", 1, "months of results to collect, counting back from today")
	_ = cmd.MarkFlagRequired("term")
}

func (f *requestFlags) request() (newsharvest.SearchRequest, error) {
	req := newsharvest.SearchRequest{
		SearchTerm:    f.term,
		Topics:        f.topics,
		HorizonMonths: f.months,
	}
	return req, req.Validate()
}

func newRunCommand(c *cli) *cobra.Command {
	var (
		flags     requestFlags
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest one search immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			if outputDir != "" {
				c.cfg.OutputDir = outputDir
			}

			h, err := c.harvester()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			res, err := h.Run(ctx, req)
			if err != nil {
				return err
			}

			fmt.Printf("✓ Exported %d articles since %s\n", res.Count(), res.Horizon.Format("2006-01-02"))
			fmt.Printf("  File: %s\n", res.ExportPath)
			for _, topic := range res.SkippedTopics {
				fmt.Printf("  Skipped unknown topic: %s\n", topic)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory, overrides output_dir")

	return cmd
}
