package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "linkgate"

// Metrics groups the collectors shared by the redirect path and the click pipeline.
type Metrics struct {
	CacheHits         prom.Counter
	CacheNegativeHits prom.Counter
	CacheMisses       prom.Counter
	DirectoryLookups  *prom.CounterVec
	Redirects         *prom.CounterVec
	ClicksDropped     prom.Counter
	BufferDepth       prom.GaugeFunc
	ClicksPersisted   prom.Counter
	ClicksDiscarded   prom.Counter
	WriteFailures     *prom.CounterVec
	DriftLinks        prom.Gauge
}

// NewMetrics builds and registers collectors on reg. Pass prom.DefaultRegisterer in
// production and a fresh registry in tests.
func NewMetrics(reg prom.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Lookups served from a fresh positive cache entry.",
		}),
		CacheNegativeHits: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "negative_hits_total",
			Help: "Lookups answered by a cached not-found entry.",
		}),
		CacheMisses: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Lookups that required a directory read.",
		}),
		DirectoryLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace, Subsystem: "directory", Name: "lookups_total",
			Help: "Directory reads by result (found, not_found, error, timeout).",
		}, []string{"result"}),
		Redirects: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace, Subsystem: "redirect", Name: "outcomes_total",
			Help: "Gating outcomes served to callers.",
		}, []string{"outcome"}),
		ClicksDropped: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace, Subsystem: "clicks", Name: "dropped_total",
			Help: "Click events dropped because the buffer was full or closed.",
		}),
		ClicksPersisted: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace, Subsystem: "clicks", Name: "persisted_total",
			Help: "Click events appended to the click log.",
		}),
		ClicksDiscarded: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace, Subsystem: "clicks", Name: "discarded_total",
			Help: "Click events discarded after exhausting write retries.",
		}),
		WriteFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace, Subsystem: "clicks", Name: "write_failures_total",
			Help: "Batch writes that failed after retries, by stage (events, counter, export).",
		}, []string{"stage"}),
		DriftLinks: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace, Subsystem: "clicks", Name: "drift_links",
			Help: "Links whose click counter disagreed with the click log at the last check.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CacheHits, m.CacheNegativeHits, m.CacheMisses, m.DirectoryLookups, m.Redirects,
			m.ClicksDropped, m.ClicksPersisted, m.ClicksDiscarded, m.WriteFailures, m.DriftLinks,
		)
	}
	return m
}

// TrackBufferDepth exposes a gauge that samples depth on every scrape.
func (m *Metrics) TrackBufferDepth(reg prom.Registerer, depth func() int) {
	m.BufferDepth = prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: namespace, Subsystem: "clicks", Name: "buffer_depth",
		Help: "Click events waiting in the in-process buffer.",
	}, func() float64 { return float64(depth()) })
	if reg != nil {
		reg.MustRegister(m.BufferDepth)
	}
}
