// Package thumbnail caches decoded product images by source URL so that
// repeated listings do not download the same image twice.
//
// Lookups go through an in-memory LRU first, then an optional byte Store
// (Redis or a cache directory), and finally the Fetcher. Only images that
// decode successfully are stored anywhere.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	// Registers WebP with image.Decode; imaging already covers JPEG, PNG,
	// GIF, BMP and TIFF.
	_ "golang.org/x/image/webp"

	"github.com/openmarket/openmarket-cli/internal/debug"
)

const DefaultCapacity = 256

// ErrDecode is wrapped by every DecodeError.
var ErrDecode = errors.New("image decode failed")

// DecodeError reports bytes that could not be turned into an image.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// Fetcher downloads the raw bytes behind an image URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity bounds the number of decoded images kept in memory.
func WithCapacity(n int) Option {
	return func(c *Cache) { c.capacity = n }
}

// WithStore adds a second tier that keeps raw image bytes.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithMaxDimension downscales images whose width or height exceeds px.
// Zero keeps the original size.
func WithMaxDimension(px int) Option {
	return func(c *Cache) { c.maxDimension = px }
}

// WithCoalescing controls whether concurrent misses for one URL share a
// single download. It is on by default.
func WithCoalescing(enabled bool) Option {
	return func(c *Cache) { c.coalesce = enabled }
}

// WithObserver records cache telemetry.
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		if o != nil {
			c.observer = o
		}
	}
}

// Cache maps source URLs to decoded images. It is safe for concurrent use.
type Cache struct {
	fetcher      Fetcher
	images       *lru.Cache[string, image.Image]
	flights      singleflight.Group
	store        Store
	observer     Observer
	capacity     int
	maxDimension int
	coalesce     bool
	purging      atomic.Bool // Purge is not an eviction
}

// New creates a Cache that downloads misses through fetcher.
func New(fetcher Fetcher, opts ...Option) (*Cache, error) {
	if fetcher == nil {
		return nil, errors.New("thumbnail: nil fetcher")
	}
	c := &Cache{
		fetcher:  fetcher,
		observer: nopObserver{},
		capacity: DefaultCapacity,
		coalesce: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.capacity <= 0 {
		return nil, fmt.Errorf("thumbnail: capacity must be positive, got %d", c.capacity)
	}
	if c.maxDimension < 0 {
		return nil, fmt.Errorf("thumbnail: max dimension must not be negative, got %d", c.maxDimension)
	}
	images, err := lru.NewWithEvict[string, image.Image](c.capacity, func(string, image.Image) {
		if !c.purging.Load() {
			c.observer.RecordEviction()
		}
	})
	if err != nil {
		return nil, err
	}
	c.images = images
	return c, nil
}

// Key canonicalizes a source URL: scheme and host are lowercased and the
// fragment is dropped. Unparsable input is only trimmed.
func Key(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// Load returns the decoded image for rawURL, downloading it on a miss.
// Fetch errors are returned unchanged and nothing is cached for them.
func (c *Cache) Load(ctx context.Context, rawURL string) (image.Image, error) {
	key := Key(rawURL)
	if img, ok := c.images.Get(key); ok {
		c.observer.RecordLookup(LookupHit)
		return img, nil
	}
	if !c.coalesce {
		return c.load(ctx, key, rawURL)
	}
	v, err, shared := c.flights.Do(key, func() (any, error) {
		return c.load(ctx, key, rawURL)
	})
	if err != nil {
		// The flight ran on another caller's context. If that one was
		// canceled while ours is live, load on our own.
		if shared && isContextErr(err) && ctx.Err() == nil {
			return c.load(ctx, key, rawURL)
		}
		return nil, err
	}
	return v.(image.Image), nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) load(ctx context.Context, key, rawURL string) (image.Image, error) {
	// A flight that finished just before this one may have filled the entry.
	if img, ok := c.images.Get(key); ok {
		c.observer.RecordLookup(LookupHit)
		return img, nil
	}

	if img, ok := c.loadFromStore(ctx, key); ok {
		c.observer.RecordLookup(LookupStoreHit)
		c.images.Add(key, img)
		return img, nil
	}
	c.observer.RecordLookup(LookupMiss)

	start := time.Now()
	data, err := c.fetcher.Fetch(ctx, rawURL)
	c.observer.RecordFetch(time.Since(start), len(data), err)
	if err != nil {
		return nil, err
	}

	img, err := c.decode(data)
	if err != nil {
		c.observer.RecordDecodeFailure()
		return nil, &DecodeError{URL: rawURL, Err: err}
	}
	c.images.Add(key, img)

	if c.store != nil {
		if err := c.store.Set(ctx, key, data); err != nil && debug.IsEnabled(ctx) {
			slog.Debug("thumbnail store write failed", "url", rawURL, "error", err)
		}
	}
	return img, nil
}

// loadFromStore treats every tier failure, including undecodable bytes, as a miss.
func (c *Cache) loadFromStore(ctx context.Context, key string) (image.Image, bool) {
	if c.store == nil {
		return nil, false
	}
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		if debug.IsEnabled(ctx) {
			slog.Debug("thumbnail store read failed", "key", key, "error", err)
		}
		return nil, false
	}
	if !ok {
		return nil, false
	}
	img, err := c.decode(data)
	if err != nil {
		if debug.IsEnabled(ctx) {
			slog.Debug("thumbnail store entry undecodable", "key", key, "error", err)
		}
		return nil, false
	}
	return img, true
}

func (c *Cache) decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if c.maxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > c.maxDimension || b.Dy() > c.maxDimension {
			img = imaging.Fit(img, c.maxDimension, c.maxDimension, imaging.Lanczos)
		}
	}
	return img, nil
}

// Contains reports whether rawURL is decoded in memory, without touching
// recency or the second tier.
func (c *Cache) Contains(rawURL string) bool {
	return c.images.Contains(Key(rawURL))
}

// Len returns the number of decoded images held in memory.
func (c *Cache) Len() int {
	return c.images.Len()
}

// Purge empties the in-memory tier. The second tier is left alone; use
// Store.Clear for that.
func (c *Cache) Purge() {
	c.purging.Store(true)
	defer c.purging.Store(false)
	c.images.Purge()
}
