package handler

import (
	"context"
	"errors"
	"time"

	"github.com/valentinpelus/linkbrief/pkg/telegram"
	"github.com/valentinpelus/linkbrief/pkg/types"
	"go.uber.org/zap"
)

// UpdateSource is a long-polling update feed
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]types.Update, error)
}

// Poller pulls updates with getUpdates and hands them to the dispatcher
type Poller struct {
	source     UpdateSource
	dispatcher *Dispatcher
	timeout    time.Duration
	backoff    time.Duration
	logger     *zap.Logger
}

// NewPoller creates a poller with a 50s long-poll timeout
func NewPoller(source UpdateSource, dispatcher *Dispatcher, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		timeout:    50 * time.Second,
		backoff:    3 * time.Second,
		logger:     logger,
	}
}

// Run polls until ctx is cancelled. Updates already dispatched keep running
// after cancellation; use Dispatcher.Wait to drain them.
func (p *Poller) Run(ctx context.Context) error {
	offset := 0
	work := context.WithoutCancel(ctx)
	p.logger.Info("polling for updates")

	for {
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := p.backoff
			var apiErr *telegram.APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			p.logger.Warn("getUpdates failed", zap.Error(err), zap.Duration("retry_in", wait))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			p.dispatcher.Dispatch(work, update)
		}
	}
}
