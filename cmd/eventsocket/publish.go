package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanun0323/eventsocket/pkg/websocket"
)

type publishFlags struct {
	stdin bool
}

func newPublishCommand(rt *runtime) *cobra.Command {
	var flags publishFlags
	cmd := &cobra.Command{
		Use:   "publish <channel> [event...]",
		Short: "Publish JSON events to a channel",
		Example: `  eventsocket publish /default/orders '{"id":1}' '"plain string"'
  cat events.jsonl | eventsocket publish /default/orders --stdin`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rt.close()
			events := args[1:]
			if flags.stdin {
				lines, err := readEvents(cmd.InOrStdin())
				if err != nil {
					return err
				}
				events = append(events, lines...)
			}
			return rt.publish(cmd.Context(), cmd.OutOrStdout(), args[0], events)
		},
	}
	cmd.Flags().BoolVar(&flags.stdin, "stdin", false, "read one event per line from stdin")
	return cmd
}

// readEvents reads one JSON document per non-blank line.
func readEvents(r io.Reader) ([]string, error) {
	var events []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		events = append(events, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

func (rt *runtime) publish(ctx context.Context, out io.Writer, channel string, events []string) error {
	c, _, err := rt.client(ctx)
	if err != nil {
		return err
	}

	res, err := c.Publish(ctx, channel, events)
	if err != nil {
		return err
	}
	return writeResult(out, res)
}

func writeResult(out io.Writer, res websocket.PublishResult) error {
	for _, ev := range res.Successful {
		if _, err := fmt.Fprintf(out, "ok\t%d\t%s\n", ev.Index, ev.Identifier); err != nil {
			return err
		}
	}
	for _, ev := range res.Failed {
		code := "-"
		if ev.ErrorCode != nil {
			code = strconv.Itoa(*ev.ErrorCode)
		}
		if _, err := fmt.Fprintf(out, "failed\t%d\t%s\t%s\n", ev.Index, code, ev.ErrorMessage); err != nil {
			return err
		}
	}
	if len(res.Failed) != 0 {
		return fmt.Errorf("publish %s: %d of %d events failed", res.ID, len(res.Failed), len(res.Failed)+len(res.Successful))
	}
	return nil
}
