package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/deepresearch/internal/cache"
)

// cacheNamespaces are the on-disk subdirectories under CACHE_DIR. The
// page and query namespaces bound themselves on every write; robots and
// llm grow until pruned here.
var cacheNamespaces = []string{"page", "query", "robots", "llm"}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the on-disk caches",
	}
	cmd.AddCommand(newCacheClearCmd(), newCachePruneCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache namespace and recreate them empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			for _, ns := range cacheNamespaces {
				dir := filepath.Join(cfg.CacheDir, ns)
				if err := cache.ClearNamespace(dir); err != nil {
					return fmt.Errorf("clear %s: %w", ns, err)
				}
				log.Debug().Str("namespace", ns).Msg("cleared")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}
}

func newCachePruneCmd() *cobra.Command {
	var maxEntries int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop expired robots/llm entries and bound both namespaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			robotsDir := filepath.Join(cfg.CacheDir, "robots")
			llmDir := filepath.Join(cfg.CacheDir, "llm")

			total := 0
			n, err := cache.SweepHTTPByAge(robotsDir, cfg.CacheTTL)
			if err != nil {
				return fmt.Errorf("sweep robots: %w", err)
			}
			total += n
			n, err = cache.SweepLLMByAge(llmDir, cfg.CacheTTL)
			if err != nil {
				return fmt.Errorf("sweep llm: %w", err)
			}
			total += n
			n, err = cache.BoundHTTPCache(robotsDir, 0, maxEntries)
			if err != nil {
				return fmt.Errorf("bound robots: %w", err)
			}
			total += n
			n, err = cache.BoundLLMCache(llmDir, 0, maxEntries)
			if err != nil {
				return fmt.Errorf("bound llm: %w", err)
			}
			total += n

			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", total)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxEntries, "max-entries", 0, "also evict least-recently-used entries beyond this count per namespace (0 = unbounded)")
	return cmd
}
