package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/optionspulse/internal/domain"
	"github.com/oriys/optionspulse/internal/enrichment"
)

func dlqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and requeue dead-lettered enrichment tasks",
	}
	cmd.AddCommand(dlqTailCmd(), dlqRequeueCmd())
	return cmd
}

func dlqTailCmd() *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent dead-letter entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, cfg, err := getBus()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.CacheOp)
			defer cancel()

			entries, err := b.ListDLQ(ctx, cfg.DLQ.Key, limit)
			if err != nil {
				return fmt.Errorf("list dlq: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("dlq is empty")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "TASK ID\tKIND\tENQUEUED AT\tERROR\n")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.TaskID, e.TaskName, e.EnqueuedAt.Format(time.RFC3339), truncate(e.Error, 80))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 20, "Maximum entries to print (0 = all)")
	return cmd
}

func dlqRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <task-id>",
		Short: "Re-enqueue a dead-lettered task by id, resetting its retry count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]

			b, cfg, err := getBus()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.CacheOp)
			defer cancel()

			entries, err := b.ListDLQ(ctx, cfg.DLQ.Key, 0)
			if err != nil {
				return fmt.Errorf("list dlq: %w", err)
			}

			for _, e := range entries {
				if e.TaskID != taskID {
					continue
				}
				task := &domain.Task{
					ID:         e.TaskID,
					Kind:       domain.TaskKind(e.TaskName),
					Args:       e.Args,
					EnqueuedAt: e.EnqueuedAt,
					Retries:    0,
				}
				if err := b.Enqueue(ctx, enrichment.Queue, task); err != nil {
					return fmt.Errorf("requeue task: %w", err)
				}
				fmt.Printf("requeued %s (%s)\n", task.ID, task.Kind)
				return nil
			}

			return fmt.Errorf("no dlq entry found with task id %s", taskID)
		},
	}
}
