package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type UpdateHandler func(ctx context.Context, u Update)

// Poller feeds long-polled updates to a handler. Each update runs on its own
// goroutine so one stuck interaction does not stall the rest.
type Poller struct {
	Client  *Client
	Timeout time.Duration
}

func (p *Poller) Run(ctx context.Context, handle UpdateHandler) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, next, err := p.Client.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				slog.Error("telegram get updates failed", "err", err)
			}
			if err := sleepCtx(ctx, Backoff(err, 1)); err != nil {
				return err
			}
			continue
		}
		offset = next
		for _, u := range updates {
			go handle(ctx, u)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
