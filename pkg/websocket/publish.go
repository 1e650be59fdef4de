package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/yanun0323/eventsocket/pkg/exception"
)

// PublishResult is the broker's answer to one publish.
type PublishResult struct {
	ID         string
	Successful []PublishedEvent
	Failed     []FailedEvent
}

type publishOutcome struct {
	result PublishResult
	err    error
}

type publishOperation struct {
	id     string
	client *Client
	once   sync.Once
	result chan publishOutcome
}

func newPublishOperation(c *Client, id string) *publishOperation {
	return &publishOperation{id: id, client: c, result: make(chan publishOutcome, 1)}
}

func (p *publishOperation) deliver(f Frame) {
	switch f.Type {
	case FramePublishSuccess:
		p.resolve(publishOutcome{result: PublishResult{ID: p.id, Successful: f.Successful, Failed: f.Failed}})
	case FramePublishError, FrameError:
		p.resolve(publishOutcome{err: newServiceError("publish", p.id, f.FirstError())})
	default:
		p.client.opt.Observer.FrameDropped("unexpected frame for publish")
		p.client.opt.Logger.Debugf("websocket: publish %s, drop %s frame", p.id, f.Type)
	}
}

func (p *publishOperation) fail(err error) {
	p.complete(publishOutcome{err: asOperationError("publish", p.id, err)})
}

func (p *publishOperation) resolve(out publishOutcome) {
	p.client.unregister(p.id, p)
	p.complete(out)
}

func (p *publishOperation) complete(out publishOutcome) {
	p.once.Do(func() {
		p.result <- out
		p.client.opt.Observer.OperationFinished(OperationPublish, out.err)
	})
}

// Publish sends events, each already a JSON document, to channel and waits
// for the broker's reply. It connects first when needed.
func (c *Client) Publish(ctx context.Context, channel string, events []string, opts ...OperationOption) (PublishResult, error) {
	if err := ValidateChannel(channel, false); err != nil {
		return PublishResult{}, newUnknownError("publish", "", err)
	}
	if len(events) == 0 {
		return PublishResult{}, newUnknownError("publish", "", exception.ErrNoEvents)
	}
	o := c.operationOptions(opts)
	id := newOperationID()

	body, err := encodeMessage(publishBody{Channel: channel, Events: events})
	if err != nil {
		return PublishResult{}, newUnknownError("publish", id, fmt.Errorf("%w: %w", exception.ErrEncode, err))
	}
	headers, err := c.authorize(ctx, "publish", o.authorizer, AuthRequest{URL: c.endpoint, Channel: channel, Body: string(body)})
	if err != nil {
		return PublishResult{}, asOperationError("publish", id, err)
	}

	op := newPublishOperation(c, id)
	c.opt.Observer.OperationStarted(OperationPublish)
	err = c.writer.Do(ctx, func() error {
		sess, err := c.connect(ctx)
		if err != nil {
			return err
		}
		if err := c.register(sess, id, op); err != nil {
			return err
		}
		if err := sess.send(ctx, FramePublish, newPublishMessage(id, channel, events, headers)); err != nil {
			c.unregister(id, op)
			return err
		}
		return nil
	})
	if err != nil {
		err = asOperationError("publish", id, err)
		op.complete(publishOutcome{err: err})
		return PublishResult{}, err
	}

	select {
	case out := <-op.result:
		return out.result, out.err
	case <-ctx.Done():
		c.unregister(id, op)
		err := newNetworkError("publish", id, ctx.Err())
		op.complete(publishOutcome{err: err})
		return PublishResult{}, err
	}
}

// PublishJSON encodes each value and publishes them as one batch.
func (c *Client) PublishJSON(ctx context.Context, channel string, values []any, opts ...OperationOption) (PublishResult, error) {
	events := make([]string, 0, len(values))
	for _, v := range values {
		data, err := encodeMessage(v)
		if err != nil {
			return PublishResult{}, newUnknownError("publish", "", fmt.Errorf("%w: %w", exception.ErrEncode, err))
		}
		events = append(events, string(data))
	}
	return c.Publish(ctx, channel, events, opts...)
}
