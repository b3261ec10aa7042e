package telegram

import (
	"context"
	"log/slog"
	"time"
)

// Handler consumes updates from an update source.
type Handler interface {
	HandleUpdate(ctx context.Context, update Update)
}

// Poller delivers updates via getUpdates long polling. Updates are handled
// sequentially, which keeps events for one chat strictly ordered.
type Poller struct {
	client     *Client
	handler    Handler
	timeout    int
	retryDelay time.Duration
}

// NewPoller creates a poller with a 30 second long-poll window.
func NewPoller(client *Client, handler Handler) *Poller {
	return &Poller{
		client:     client,
		handler:    handler,
		timeout:    30,
		retryDelay: 5 * time.Second,
	}
}

// Run polls until ctx is cancelled. Poll failures are logged and retried
// after a short delay; they never stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("get updates failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			p.handler.HandleUpdate(ctx, update)
		}
	}
}
