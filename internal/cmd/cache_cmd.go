package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openmarket/openmarket-cli/internal/cache"
	"github.com/openmarket/openmarket-cli/internal/config"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cache",
		Aliases: []string{"ch"},
		Short:   "Manage the local cache",
	}

	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCachePathCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear cached product names and thumbnails",
		Long:  "Remove the product name index, the release check and stored thumbnails, including thumbnails kept in Redis when cache.backend is redis.",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			dir := resolveCacheDir()
			if dir == "" {
				return fmt.Errorf("could not determine cache directory")
			}
			removed := cache.ClearAll(dir)

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			thumbsCleared := false
			if settings.Cache.Backend != config.CacheBackendNone {
				store, closeStore, err := thumbnailStore(settings)
				if err != nil {
					return err
				}
				defer closeStore()
				if store != nil {
					if err := store.Clear(cmdContext(cmd)); err != nil {
						return fmt.Errorf("failed to clear thumbnail store: %w", err)
					}
					thumbsCleared = true
				}
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"dir":                dir,
					"files_removed":      removed,
					"thumbnail_backend":  settings.Cache.Backend,
					"thumbnails_cleared": thumbsCleared,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s (%d files)\n", dir, removed)
			if thumbsCleared {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Thumbnail store cleared: %s\n", settings.Cache.Backend)
			}
			return nil
		}),
	}
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the cache directory path",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			dir := resolveCacheDir()
			if dir == "" {
				return fmt.Errorf("could not determine cache directory")
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), dir)

			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil // directory might not exist yet
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				info, err := e.Info()
				if err != nil {
					continue
				}
				name := e.Name()
				if filepath.Ext(name) != ".json" {
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s (%d bytes)\n", name, info.Size())
			}
			return nil
		}),
	}
}
