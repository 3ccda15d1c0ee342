package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand, the same action as the bare root.
func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Prerender every configured route",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrerender(cmd, opts)
		},
	}
}

func runPrerender(cmd *cobra.Command, opts *rootOptions) error {
	cfg, used, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if used != "" {
		logger.Info("using config file", zap.String("path", used))
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("initialization failed", zap.Error(err))
		return fmt.Errorf("initialize: %w", err)
	}
	defer a.Close(ctx)

	m, err := a.Run(ctx)
	if err != nil {
		logger.Error("prerender failed", zap.Error(err))
		return err
	}
	for _, e := range m.Failed() {
		logger.Warn("route not prerendered",
			zap.String("route", e.Route),
			zap.String("status", string(e.Status)),
			zap.String("error", e.Error),
		)
	}
	return nil
}
