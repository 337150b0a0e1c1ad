package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/openmarket/openmarket-cli/internal/api"
	"github.com/openmarket/openmarket-cli/internal/config"
	"github.com/openmarket/openmarket-cli/internal/thumbnail"
	"github.com/openmarket/openmarket-cli/internal/urlparse"
	"github.com/openmarket/openmarket-cli/internal/validation"
)

const metricsNamespace = "openmarket"

func newThumbnailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "thumbnails",
		Aliases: []string{"thumb", "th"},
		Short:   "Download and cache product thumbnails",
		Long: strings.TrimSpace(`
Thumbnails are cached in memory for the life of the command and in a
second tier chosen by cache.backend in config.yaml: "dir" keeps image
bytes under the cache directory, "redis" keeps them in cache.redis_url,
"none" disables the second tier.
`),
	}

	cmd.AddCommand(newThumbnailsGetCmd())
	cmd.AddCommand(newThumbnailsPrefetchCmd())
	return cmd
}

// thumbnailStore opens the second cache tier configured in settings. The
// returned close func is never nil.
func thumbnailStore(s config.Settings) (thumbnail.Store, func(), error) {
	switch s.Cache.Backend {
	case config.CacheBackendRedis:
		store, err := thumbnail.NewRedisStoreFromURL(s.Cache.RedisURL, s.Cache.TTL)
		if err != nil {
			return nil, func() {}, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.CacheBackendDir:
		dir := resolveCacheDir()
		if dir == "" {
			return nil, func() {}, nil
		}
		return thumbnail.NewDirStore(filepath.Join(dir, "thumbnails"), s.Cache.TTL), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

type thumbnailSession struct {
	cache    *thumbnail.Cache
	registry *prometheus.Registry
	close    func()
}

func newThumbnailSession(fetcher thumbnail.Fetcher, s config.Settings, maxDimension int, withMetrics bool) (*thumbnailSession, error) {
	store, closeStore, err := thumbnailStore(s)
	if err != nil {
		return nil, err
	}
	opts := []thumbnail.Option{
		thumbnail.WithCapacity(s.Thumbnail.Capacity),
		thumbnail.WithMaxDimension(maxDimension),
	}
	if store != nil {
		opts = append(opts, thumbnail.WithStore(store))
	}

	session := &thumbnailSession{close: closeStore}
	if withMetrics {
		session.registry = prometheus.NewRegistry()
		observer, err := thumbnail.NewPrometheusObserver(metricsNamespace, session.registry)
		if err != nil {
			closeStore()
			return nil, err
		}
		opts = append(opts, thumbnail.WithObserver(observer))
	}

	session.cache, err = thumbnail.New(fetcher, opts...)
	if err != nil {
		closeStore()
		return nil, err
	}
	return session, nil
}

// writeMetrics prints the session counters in the Prometheus text format.
func (s *thumbnailSession) writeMetrics(w io.Writer) error {
	if s.registry == nil {
		return nil
	}
	families, err := s.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// guardedFetcher refuses image URLs that point at internal addresses.
func guardedFetcher(client *api.Client) thumbnail.Fetcher {
	return thumbnail.FetcherFunc(func(ctx context.Context, rawURL string) ([]byte, error) {
		if err := validation.ImageURL(rawURL, client.Builder.Host); err != nil {
			return nil, err
		}
		return client.Fetch(ctx, rawURL)
	})
}

// thumbnailError tags undecodable images so JSON errors carry decode_failed.
func thumbnailError(err error) error {
	if errors.Is(err, thumbnail.ErrDecode) {
		structured := api.NewStructuredError(api.ErrDecodeFailed, err.Error())
		return errors.Join(structured, err)
	}
	return err
}

func isImageURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

// thumbnailURL resolves a product reference or passes an image URL through.
// Product API URLs count as product references.
func thumbnailURL(ctx context.Context, cmd *cobra.Command, client *api.Client, arg string) (string, error) {
	if _, isProduct := urlparse.ProductID(arg); isImageURL(arg) && !isProduct {
		return arg, nil
	}
	id, err := parseProductArg(cmd, client, arg)
	if err != nil {
		return "", err
	}
	product, err := client.Products().Get(ctx, id)
	if err != nil {
		return "", err
	}
	if product.Thumbnail == "" {
		return "", fmt.Errorf("product %d has no thumbnail", id)
	}
	return product.Thumbnail, nil
}

func newThumbnailsGetCmd() *cobra.Command {
	var (
		out          string
		maxDimension int
	)

	cmd := &cobra.Command{
		Use:   "get <product-id|name|url>",
		Short: "Load a thumbnail and report its size",
		Example: strings.TrimSpace(`
  om thumbnails get 42
  om thumbnails get "Blue Mug" --save mug.png --max-dimension 256
  om thumbnails get https://cdn.example.com/a.webp --json
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			client, err := getClient()
			if err != nil {
				return err
			}
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-dimension") {
				maxDimension = settings.Thumbnail.MaxDimension
			}

			rawURL, err := thumbnailURL(ctx, cmd, client, args[0])
			if err != nil {
				return err
			}

			session, err := newThumbnailSession(guardedFetcher(client), settings, maxDimension, false)
			if err != nil {
				return err
			}
			defer session.close()

			img, err := session.cache.Load(ctx, rawURL)
			if err != nil {
				return thumbnailError(err)
			}
			bounds := img.Bounds()

			if out != "" {
				if err := imaging.Save(img, out); err != nil {
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
			}

			if isJSON(cmd) {
				payload := map[string]any{
					"url":    rawURL,
					"key":    thumbnail.Key(rawURL),
					"width":  bounds.Dx(),
					"height": bounds.Dy(),
				}
				if out != "" {
					payload["saved_to"] = out
				}
				return printJSON(cmd, payload)
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "%s\n  Size: %dx%d\n", rawURL, bounds.Dx(), bounds.Dy())
			if out != "" {
				_, _ = fmt.Fprintf(w, "  Saved: %s\n", out)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&out, "save", "O", "", "Write the decoded image to a file (format from extension)")
	cmd.Flags().IntVar(&maxDimension, "max-dimension", 0, "Downscale so neither side exceeds this many pixels (default from config)")
	flagAlias(cmd.Flags(), "max-dimension", "md")

	return cmd
}

func newThumbnailsPrefetchCmd() *cobra.Command {
	var (
		all         bool
		concurrency int
		metrics     bool
	)

	cmd := &cobra.Command{
		Use:   "prefetch [product-id|name|url...]",
		Short: "Warm the thumbnail cache",
		Long:  "Download thumbnails concurrently so later commands hit the cache. With --all, every listed product is warmed.",
		Example: strings.TrimSpace(`
  om thumbnails prefetch --all --concurrency 8
  om thumbnails prefetch 12 13 "Blue Mug" --metrics
`),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return fmt.Errorf("pass either product references or --all")
			}
			ctx := cmdContext(cmd)
			client, err := getClient()
			if err != nil {
				return err
			}
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = settings.Thumbnail.Concurrency
			}

			var urls []string
			if all {
				products, err := client.Products().ListAll(ctx, settings.PerPage, settings.MaxPages)
				if err != nil && !errors.Is(err, api.ErrPageLimitReached) {
					return err
				}
				urls = thumbnailURLs(products)
			} else {
				for _, arg := range args {
					u, err := thumbnailURL(ctx, cmd, client, arg)
					if err != nil {
						return err
					}
					urls = append(urls, u)
				}
			}
			if len(urls) == 0 {
				newFormatter(cmd).Empty("No thumbnails to prefetch.")
				return nil
			}

			session, err := newThumbnailSession(guardedFetcher(client), settings, settings.Thumbnail.MaxDimension, metrics)
			if err != nil {
				return err
			}
			defer session.close()

			results, err := session.cache.Prefetch(ctx, urls, concurrency)
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}

			if isJSON(cmd) {
				items := make([]map[string]any, 0, len(results))
				for _, r := range results {
					item := map[string]any{"url": r.URL, "ok": r.Err == nil}
					if r.Err != nil {
						item["error"] = r.Err.Error()
					} else {
						item["width"], item["height"] = r.Width, r.Height
					}
					items = append(items, item)
				}
				if err := printJSON(cmd, map[string]any{
					"total":   len(results),
					"failed":  failed,
					"results": items,
				}); err != nil {
					return err
				}
			} else {
				f := newFormatter(cmd)
				f.StartTable([]string{"URL", "SIZE", "STATUS"})
				for _, r := range results {
					if r.Err != nil {
						f.Row(r.URL, "-", "error: "+api.Message(r.Err))
						continue
					}
					f.Row(r.URL, fmt.Sprintf("%dx%d", r.Width, r.Height), "ok")
				}
				if err := f.EndTable(); err != nil {
					return err
				}
				printAction(cmd, "Prefetched", "thumbnails:", fmt.Sprintf("%d/%d", len(results)-failed, len(results)), "")
			}

			if metrics {
				if err := session.writeMetrics(cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d thumbnails failed to load", failed, len(results))
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&all, "all", false, "Prefetch every product's thumbnail")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", thumbnail.DefaultPrefetchConcurrency, "Maximum downloads in flight")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Print cache metrics to stderr when done")
	flagAlias(cmd.Flags(), "concurrency", "cc")

	return cmd
}

// thumbnailURLs returns the distinct non-empty thumbnail URLs in product order.
func thumbnailURLs(products []api.Product) []string {
	seen := make(map[string]bool, len(products))
	var urls []string
	for _, p := range products {
		key := thumbnail.Key(p.Thumbnail)
		if p.Thumbnail == "" || seen[key] {
			continue
		}
		seen[key] = true
		urls = append(urls, p.Thumbnail)
	}
	return urls
}
