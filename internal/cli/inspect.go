package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dlwpdl/eunsense-automation-sub000/guard"
	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
)

func newClassifyCommand() *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "classify <error message>",
		Short: "Classify an error message and show whether it would be retried",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := strings.Join(args, " ")
			c := resilience.ClassifyError(errors.New(msg))

			fmt.Fprintln(cmd.OutOrStdout(), c.String())
			if service != "" {
				retry := "no"
				if guard.PolicyFor(service).Retryable(c) {
					retry = "yes"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "retried by %s: %s\n", service, retry)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "report whether this service's default policy retries it")
	return cmd
}

func newLimitsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show the configured rate table and retry policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{Limits: cfg.RateLimits()})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tMAX\tWINDOW\tRETRIES\tMAX DELAY")
			for _, name := range rl.Services() {
				limit, _ := rl.Limit(name)
				policy := cfg.RetryPolicy(name)
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n", name, limit.MaxRequests, limit.Window, policy.MaxRetries, policy.MaxDelay)
			}
			return w.Flush()
		},
	}
}
