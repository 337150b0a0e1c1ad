package thumbnail

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup outcomes reported to an Observer.
const (
	LookupHit      = "hit"
	LookupStoreHit = "store_hit"
	LookupMiss     = "miss"
)

// Observer captures telemetry for cache operations.
type Observer interface {
	RecordLookup(result string)
	RecordFetch(duration time.Duration, sizeBytes int, err error)
	RecordDecodeFailure()
	RecordEviction()
}

type nopObserver struct{}

func (nopObserver) RecordLookup(string)                   {}
func (nopObserver) RecordFetch(time.Duration, int, error) {}
func (nopObserver) RecordDecodeFailure()                  {}
func (nopObserver) RecordEviction()                       {}

// PrometheusObserver exports cache metrics to Prometheus.
type PrometheusObserver struct {
	lookups        *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	fetchErrors    prometheus.Counter
	fetchedBytes   prometheus.Counter
	decodeFailures prometheus.Counter
	evictions      prometheus.Counter
}

// NewPrometheusObserver registers the thumbnail cache metrics with reg.
// Registering twice against the same registry reuses the existing collectors.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "openmarket"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const subsystem = "thumbnail_cache"
	counterOpts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}
	}

	o := &PrometheusObserver{}
	var err error
	if o.lookups, err = register(reg, prometheus.NewCounterVec(
		counterOpts("lookups_total", "Cache lookups by result."), []string{"result"})); err != nil {
		return nil, err
	}
	if o.fetchDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fetch_duration_seconds",
		Help:      "Latency of image downloads on cache misses.",
		Buckets:   prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if o.fetchErrors, err = register(reg, prometheus.NewCounter(
		counterOpts("fetch_errors_total", "Image downloads that failed."))); err != nil {
		return nil, err
	}
	if o.fetchedBytes, err = register(reg, prometheus.NewCounter(
		counterOpts("fetched_bytes_total", "Bytes downloaded on cache misses."))); err != nil {
		return nil, err
	}
	if o.decodeFailures, err = register(reg, prometheus.NewCounter(
		counterOpts("decode_failures_total", "Downloaded payloads that were not decodable images."))); err != nil {
		return nil, err
	}
	if o.evictions, err = register(reg, prometheus.NewCounter(
		counterOpts("evictions_total", "Decoded images evicted from memory."))); err != nil {
		return nil, err
	}
	return o, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register thumbnail metric: %w", err)
	}
	return c, nil
}

func (o *PrometheusObserver) RecordLookup(result string) {
	o.lookups.WithLabelValues(result).Inc()
}

func (o *PrometheusObserver) RecordFetch(duration time.Duration, sizeBytes int, err error) {
	o.fetchDuration.Observe(duration.Seconds())
	if err != nil {
		o.fetchErrors.Inc()
		return
	}
	o.fetchedBytes.Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordDecodeFailure() {
	o.decodeFailures.Inc()
}

func (o *PrometheusObserver) RecordEviction() {
	o.evictions.Inc()
}
