// Package cmd defines the prerender command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prerender/internal/app"
	"github.com/JakeFAU/prerender/internal/config"
	"github.com/JakeFAU/prerender/internal/logging"
	pkgconfig "github.com/JakeFAU/prerender/pkg/config"
)

// newApp is the application factory. It's a variable so tests can inject
// a fake browser.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

type rootOptions struct {
	cfgFile string
}

// newRootCmd creates the root command. Without a subcommand it runs the
// prerender pass.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "prerender",
		Short: "Snapshot client-rendered routes of a built single-page app into static HTML.",
		Long: `prerender serves a pre-built output directory on a local port, drives headless
Chrome across a fixed route list, and writes each rendered document back into
the output directory as <route>/index.html with root-relative asset references
rewritten for the route depth.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrerender(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is ./prerender.yaml, /etc/prerender/ or $HOME/.prerender/)")
	flags.String("output", "dist", "pre-built output directory to serve and write into")
	flags.String("root-document", "index.html", "document served for / and unknown extensionless paths")
	flags.String("host", "localhost", "static server host")
	flags.Int("port", 4173, "static server port (0 picks a free port)")
	flags.StringSlice("route", nil, "route to prerender; repeat for several (default /, /about, /products, /contact)")
	flags.Int("workers", 1, "number of browser pages capturing in parallel")
	flags.Duration("nav-timeout", 30*time.Second, "per-route navigation and idle timeout")
	flags.Duration("idle-window", 500*time.Millisecond, "quiet period with no network requests before capture")
	flags.Duration("settle-delay", 2*time.Second, "delay after idle when no ready expression resolves")
	flags.String("ready-expression", "", "JavaScript expression polled until truthy before capture")
	flags.Duration("ready-timeout", 10*time.Second, "how long to poll the ready expression")
	flags.String("chrome", "", "path to the Chrome executable")
	flags.Bool("no-sandbox", true, "launch Chrome with --no-sandbox and --disable-setuid-sandbox")
	flags.String("manifest", "", "write a JSON run manifest to this path")
	flags.String("log-level", "info", "minimum log level")
	flags.Bool("dev-logs", true, "human-readable console logs instead of JSON")

	cmd.AddCommand(newRunCmd(opts), newRoutesCmd(opts))
	return cmd
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, string, error) {
	v, used, err := pkgconfig.NewViper(opts.cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, used, nil
}

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "prerender: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}
