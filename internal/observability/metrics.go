// Package observability defines the Prometheus metrics for the gateway.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts proxied requests by strategy and response source.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecache_requests_total",
		Help: "Proxied requests by strategy and response source.",
	}, []string{"strategy", "source"})

	// CacheLookups counts cache reads by namespace and result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecache_cache_lookups_total",
		Help: "Cache lookups by namespace and result (hit or miss).",
	}, []string{"namespace", "result"})

	// FallbacksTotal counts responses served by the offline fallback.
	FallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecache_fallbacks_total",
		Help: "Offline fallback responses by strategy.",
	}, []string{"strategy"})

	// UpstreamDuration observes upstream fetch latency by outcome.
	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edgecache_upstream_duration_seconds",
		Help:    "Upstream fetch latency by outcome (ok, error, timeout).",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// SweptNamespaces counts namespaces deleted by activation sweeps.
	SweptNamespaces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edgecache_swept_namespaces_total",
		Help: "Cache namespaces deleted by activation sweeps.",
	})

	// SyncBatches counts background sync batches by result.
	SyncBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecache_sync_batches_total",
		Help: "Background sync batches by result (ok or error).",
	}, []string{"result"})
)

// LookupResult labels for CacheLookups.
const (
	LookupHit  = "hit"
	LookupMiss = "miss"
)
