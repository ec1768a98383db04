package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Report summarizes one fan-out.
type Report struct {
	Attempted int
	Delivered []types.ChannelID
	// Err combines every *DeliveryError; nil when all targets succeeded.
	Err error
}

// Failures returns the individual delivery errors.
func (r Report) Failures() []error {
	return multierr.Errors(r.Err)
}

// SendFunc delivers to one channel.
type SendFunc func(ctx context.Context, channel types.ChannelID) error

// FanOut runs send for every target concurrently and waits for all of them.
// A failing or slow target never cancels the others. Failures are logged and collected.
func FanOut(ctx context.Context, op string, targets []types.ChannelID, send SendFunc) Report {
	results := make([]error, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target types.ChannelID) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = &DeliveryError{Channel: target, Err: panicError{value: r}}
				}
			}()
			if err := send(ctx, target); err != nil {
				results[i] = &DeliveryError{Channel: target, Err: err}
			}
		}(i, target)
	}
	wg.Wait()

	report := Report{
		Attempted: len(targets),
		Delivered: make([]types.ChannelID, 0, len(targets)),
	}
	for i, err := range results {
		if err == nil {
			report.Delivered = append(report.Delivered, targets[i])
			continue
		}
		logger.Warn("Delivery failed",
			zap.String("op", op),
			zap.String("channel_id", string(targets[i])),
			zap.Error(err))
		report.Err = multierr.Append(report.Err, err)
	}

	logger.Debug("Fan-out finished",
		zap.String("op", op),
		zap.Int("attempted", report.Attempted),
		zap.Int("delivered", len(report.Delivered)))

	return report
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic during delivery: %v", p.value)
}
