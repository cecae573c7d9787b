package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"strmsync/internal/cache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the decision cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func (c *commandContext) withCache(cmd *cobra.Command, fn func(*cache.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := cache.Open(cmd.Context(), cfg.Paths.Cache, cache.Options{})
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show decision cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCache(cmd, func(store *cache.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Cache: %s (schema v%d, normalizer v%d)\n", stats.Path, stats.SchemaVersion, stats.NormalizerVersion)
				rows := [][]string{
					{"Decisions", strconv.Itoa(stats.Decisions)},
					{"Allowed", strconv.Itoa(stats.Allowed)},
					{"Excluded", strconv.Itoa(stats.Excluded)},
					{"With output file", strconv.Itoa(stats.WithOutput)},
					{"Local media", strconv.Itoa(stats.LocalMedia)},
					{"Degraded", yesNo(stats.Degraded)},
				}
				fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

				if len(stats.ByReason) > 0 {
					reasons := make([][]string, 0, len(stats.ByReason))
					for _, reason := range slices.Sorted(maps.Keys(stats.ByReason)) {
						reasons = append(reasons, []string{reason, strconv.Itoa(stats.ByReason[reason])})
					}
					fmt.Fprintln(out, renderTable([]string{"Exclusion reason", "Count"}, reasons, []columnAlignment{alignLeft, alignRight}))
				}
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached decision so the next run looks titles up again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
			}
			return ctx.withCache(cmd, func(store *cache.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached decisions\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing the cache")
	return cmd
}
