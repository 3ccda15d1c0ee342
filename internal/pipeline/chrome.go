package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/prerender/internal/browser"
)

// ChromeLauncher returns a LaunchFunc backed by headless Chrome.
func ChromeLauncher(cfg browser.Config, logger *zap.Logger) LaunchFunc {
	return func(ctx context.Context) (Browser, error) {
		b, err := browser.Launch(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return chromeBrowser{b}, nil
	}
}

type chromeBrowser struct {
	*browser.Browser
}

func (c chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	p, err := c.Browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}
