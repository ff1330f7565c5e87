// Package cli implements the eunsense command line.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlwpdl/eunsense-automation-sub000/config"
	"github.com/dlwpdl/eunsense-automation-sub000/internal/app"
)

type rootOptions struct {
	cfgPath string
	envFile string
	debug   bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "eunsense",
		Short: "Resilience and caching substrate for the content pipeline",
		Long: `eunsense runs the guarded cache, rate limiter and retry layer that sits
between the content pipeline and its external services, and inspects its state.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "config.yaml", "config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file, skipped when absent")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(opts),
		newCacheCommand(opts),
		newClassifyCommand(),
		newLimitsCommand(opts),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *rootOptions) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, o.cfgPath, config.WithEnvFiles(o.envFile))
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.Observe.Logging.Enabled = true
		cfg.Observe.Logging.Level = "debug"
	}
	return cfg, nil
}

// substrate loads the configuration and builds a Substrate logging to stderr.
func (o *rootOptions) substrate(cmd *cobra.Command) (*app.Substrate, error) {
	cfg, err := o.loadConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, app.WithLogWriter(cmd.ErrOrStderr()))
}
