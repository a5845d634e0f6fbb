package push

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// Dispatcher hands a message off for delivery to a set of users. Dispatch
// returns without waiting for delivery and never reports delivery failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, userIDs []string, msg Message)
}

// InlineDispatcher delivers in-process on a bounded goroutine pool.
type InlineDispatcher struct {
	deliverer      *Deliverer
	maxConcurrency int
	logger         zerolog.Logger
	wg             sync.WaitGroup
}

func NewInlineDispatcher(deliverer *Deliverer, maxConcurrency int, logger zerolog.Logger) *InlineDispatcher {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &InlineDispatcher{
		deliverer:      deliverer,
		maxConcurrency: maxConcurrency,
		logger:         logger.With().Str("component", "push_dispatcher").Logger(),
	}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, userIDs []string, msg Message) {
	if len(userIDs) == 0 {
		return
	}
	// Delivery outlives the request that triggered it.
	ctx = context.WithoutCancel(ctx)
	recipients := append([]string(nil), userIDs...)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		p := pool.New().WithMaxGoroutines(d.maxConcurrency)
		for _, userID := range recipients {
			p.Go(func() {
				if err := d.deliverer.DeliverToUser(ctx, userID, msg); err != nil {
					d.logger.Warn().Err(err).Str("user_id", userID).Str("channel", "push").Msg("failed to deliver push notification")
				}
			})
		}
		p.Wait()
	}()
}

// Wait blocks until every dispatched delivery has finished.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
