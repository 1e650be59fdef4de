package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"

	"github.com/yanun0323/eventsocket/pkg/websocket"
)

type subscribeFlags struct {
	count       int
	unsubscribe bool
}

func newSubscribeCommand(rt *runtime) *cobra.Command {
	var flags subscribeFlags
	cmd := &cobra.Command{
		Use:   "subscribe <channel> [channel...]",
		Short: "Print events received on one or more channels",
		Example: `  eventsocket subscribe /default/orders
  eventsocket subscribe /default/orders /default/trades/* --count 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rt.close()
			return rt.subscribe(cmd.Context(), cmd.OutOrStdout(), args, flags)
		},
	}
	cmd.Flags().IntVarP(&flags.count, "count", "n", 0, "exit after this many events (0 means no limit)")
	cmd.Flags().BoolVar(&flags.unsubscribe, "unsubscribe", true, "unsubscribe before exiting")
	return cmd
}

func (rt *runtime) subscribe(ctx context.Context, out io.Writer, channels []string, flags subscribeFlags) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, _, err := rt.client(ctx)
	if err != nil {
		return err
	}
	w, err := rt.startRecorder(ctx)
	if err != nil {
		return err
	}

	subs := make([]*websocket.Subscription, 0, len(channels))
	for _, channel := range channels {
		sub, err := c.Subscribe(ctx, channel)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		if err := sub.Ready(ctx); err != nil {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		logs.Infof("subscribed %s as %s", channel, sub.ID())
		subs = append(subs, sub)
	}

	// streams outlive the signal so they can be unsubscribed gracefully
	streamCtx, cancelStreams := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelStreams()

	events := make(chan websocket.Event)
	errs := make(chan error, len(subs))
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev, err := range sub.All(streamCtx) {
				if err != nil {
					errs <- err
					return
				}
				select {
				case events <- ev:
				case <-streamCtx.Done():
					return
				}
			}
		}()
	}
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	stop := shutdown(ctx)
	var received int
	for {
		select {
		case ev := <-events:
			received++
			if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", ev.ReceivedAt.Format(time.RFC3339Nano), ev.Channel, ev.Data); err != nil {
				return err
			}
			if w != nil {
				if err := w.TryAppend(ev); err != nil {
					logs.Warnf("record event of %s, err: %+v", ev.Channel, err)
				}
			}
			if flags.count > 0 && received >= flags.count {
				return rt.unsubscribeAll(subs, flags.unsubscribe)
			}
		case err := <-errs:
			return err
		case <-finished:
			return nil
		case <-stop:
			return rt.unsubscribeAll(subs, flags.unsubscribe)
		}
	}
}

func (rt *runtime) unsubscribeAll(subs []*websocket.Subscription, graceful bool) error {
	if !graceful {
		for _, sub := range subs {
			sub.Close()
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.Client.UnsubscribeWait)
	defer cancel()
	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", sub.Channel(), err))
			sub.Close()
		}
	}
	return errors.Join(errs...)
}

