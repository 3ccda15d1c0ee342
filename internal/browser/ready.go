package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const readyPollInterval = 50 * time.Millisecond

// errReadyTimeout reports that the ready expression never turned truthy.
var errReadyTimeout = errors.New("ready expression timed out")

// readyWaiter decides when a loaded page is ready for capture: the ready
// expression first, then the settle delay if there is no expression or it
// times out.
type readyWaiter struct {
	expression string
	timeout    time.Duration
	settle     time.Duration
	poll       func(ctx context.Context, expression string, timeout time.Duration) error
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

func (w readyWaiter) wait(ctx context.Context) (bool, error) {
	if w.expression != "" {
		err := w.poll(ctx, w.expression, w.timeout)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errReadyTimeout):
			w.logger.Warn("ready expression timed out, using settle delay",
				zap.String("expression", w.expression),
				zap.Duration("ready_timeout", w.timeout),
			)
		default:
			return false, fmt.Errorf("poll ready expression: %w", err)
		}
	}
	if w.settle <= 0 {
		return false, nil
	}
	if err := w.sleep(ctx, w.settle); err != nil {
		return false, fmt.Errorf("settle delay: %w", err)
	}
	return false, nil
}

func pollExpression(ctx context.Context, expression string, timeout time.Duration) error {
	err := chromedp.Run(ctx, chromedp.Poll(expression, nil,
		chromedp.WithPollingInterval(readyPollInterval),
		chromedp.WithPollingTimeout(timeout),
	))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return fmt.Errorf("%w: %w", errReadyTimeout, err)
	}
	return err
}

func sleepInPage(ctx context.Context, d time.Duration) error {
	return chromedp.Run(ctx, chromedp.Sleep(d))
}
