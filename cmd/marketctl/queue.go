package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriys/optionspulse/internal/enrichment"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the enrichment task queue",
	}
	cmd.AddCommand(queueDepthCmd())
	return cmd
}

func queueDepthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "depth",
		Short: "Print the number of tasks waiting on the enrichment queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, cfg, err := getBus()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.CacheOp)
			defer cancel()

			depth, err := b.Depth(ctx, enrichment.Queue)
			if err != nil {
				return fmt.Errorf("read queue depth: %w", err)
			}
			fmt.Printf("%s: %d\n", enrichment.Queue, depth)
			return nil
		},
	}
}
