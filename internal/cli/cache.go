package cli

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dlwpdl/eunsense-automation-sub000/internal/app"
)

func newCacheCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the tiered cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show entry counts per category and tier",
			Args:  cobra.NoArgs,
			RunE:  withSubstrate(opts, runCacheStats),
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Remove expired entries from every tier",
			Args:  cobra.NoArgs,
			RunE: withSubstrate(opts, func(cmd *cobra.Command, s *app.Substrate, _ []string) error {
				removed, err := s.Cache.Cleanup(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", removed)
				return err
			}),
		},
		&cobra.Command{
			Use:   "purge <prefix>",
			Short: "Delete every entry whose key starts with prefix, e.g. ai:",
			Args:  cobra.ExactArgs(1),
			RunE: withSubstrate(opts, func(cmd *cobra.Command, s *app.Substrate, args []string) error {
				deleted, err := s.Cache.DeleteByPrefix(cmd.Context(), args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", deleted)
				return err
			}),
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Show one stored entry, fresh or expired",
			Args:  cobra.ExactArgs(1),
			RunE:  withSubstrate(opts, runCacheGet),
		},
	)
	return cmd
}

// withSubstrate builds a Substrate for the duration of one command.
func withSubstrate(opts *rootOptions, run func(*cobra.Command, *app.Substrate, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := opts.substrate(cmd)
		if err != nil {
			return err
		}
		defer s.Close(cmd.Context())
		return run(cmd, s, args)
	}
}

func runCacheStats(cmd *cobra.Command, s *app.Substrate, _ []string) error {
	st, err := s.Cache.Stats(cmd.Context())

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "entries\t%d\n", st.Entries)
	fmt.Fprintf(w, "size\t%s\n", humanize.IBytes(uint64(st.Bytes)))
	fmt.Fprintf(w, "expired\t%d\n", st.Expired)
	for _, tier := range slices.Sorted(maps.Keys(st.PerTier)) {
		fmt.Fprintf(w, "tier %s\t%d\n", tier, st.PerTier[tier])
	}
	for _, category := range slices.Sorted(maps.Keys(st.PerCategory)) {
		fmt.Fprintf(w, "category %s\t%d\n", category, st.PerCategory[category])
	}
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	return err
}

func runCacheGet(cmd *cobra.Command, s *app.Substrate, args []string) error {
	entry, ok := s.Cache.Inspect(cmd.Context(), args[0])
	if !ok {
		return fmt.Errorf("cache: no entry for %q", args[0])
	}

	now := s.Cache.Now()
	state := "fresh"
	if entry.Expired(now) {
		state = "expired"
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "key\t%s\n", entry.Key)
	fmt.Fprintf(w, "tier\t%s\n", entry.Tier)
	fmt.Fprintf(w, "size\t%s\n", humanize.IBytes(uint64(entry.SizeBytes)))
	fmt.Fprintf(w, "created\t%s (%s)\n", entry.CreatedAt.UTC().Format(time.RFC3339), humanize.RelTime(entry.CreatedAt, now, "ago", "from now"))
	fmt.Fprintf(w, "expires\t%s (%s)\n", entry.ExpiresAt.UTC().Format(time.RFC3339), humanize.RelTime(entry.ExpiresAt, now, "ago", "from now"))
	fmt.Fprintf(w, "state\t%s\n", state)
	fmt.Fprintf(w, "preview\t%s\n", preview(entry.Payload, 80))
	return w.Flush()
}

// preview quotes the first n bytes of a payload.
func preview(b []byte, n int) string {
	if len(b) > n {
		return strconv.QuoteToASCII(string(b[:n])) + "..."
	}
	return strconv.QuoteToASCII(string(b))
}
