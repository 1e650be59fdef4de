package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanun0323/eventsocket/internal/recorder"
)

func newHistoryCommand(rt *runtime) *cobra.Command {
	var (
		q     recorder.Query
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:     "history",
		Short:   "List recorded events",
		Example: `  eventsocket history --dsn postgres://localhost/events --channel /default/orders --since 1h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer rt.close()
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			return rt.history(cmd.Context(), cmd.OutOrStdout(), q)
		},
	}
	cmd.Flags().StringVar(&q.Channel, "channel", "", "only events of this channel")
	cmd.Flags().DurationVar(&since, "since", 0, "only events received within this duration")
	cmd.Flags().IntVar(&q.Limit, "limit", 100, "maximum number of events")
	return cmd
}

func (rt *runtime) history(ctx context.Context, out io.Writer, q recorder.Query) error {
	if rt.cfg.Recorder.DSN == "" {
		return fmt.Errorf("history: recorder.dsn is empty")
	}
	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	records, err := store.List(ctx, q)
	if err != nil {
		return err
	}
	return writeRecords(out, records)
}

func writeRecords(out io.Writer, records []recorder.Record) error {
	for _, r := range records {
		if _, err := fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", r.ReceivedAt.Format(time.RFC3339Nano), r.Channel, r.SubscriptionID, r.Data); err != nil {
			return err
		}
	}
	return nil
}
