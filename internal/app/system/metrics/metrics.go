// Package metrics holds the Prometheus collectors for the inbound pipeline.
// Collectors live on a private registry so tests can build as many as they
// like. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"net/http"
	"time"

	metricsstore "github.com/dalemusser/mapstash/internal/app/store/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mapstash"

type Metrics struct {
	reg *prometheus.Registry

	webhookEvents   *prometheus.CounterVec
	dedupedEvents   prometheus.Counter
	linkResolutions *prometheus.CounterVec
	placesCalls     *prometheus.HistogramVec
	backfilledLinks prometheus.Counter
	periodUpdates   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook events processed, by event type and outcome.",
		}, []string{"type", "outcome"}),
		dedupedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "redeliveries_dropped_total",
			Help:      "Events skipped because their id was already processed.",
		}),
		linkResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "links",
			Name:      "resolutions_total",
			Help:      "Map link resolutions, by outcome.",
		}, []string{"outcome"}),
		placesCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "places",
			Name:      "request_duration_seconds",
			Help:      "Places API call duration, by endpoint and status.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"endpoint", "status"}),
		backfilledLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "backfilled_links_total",
			Help:      "Links that gained a member through group backfill.",
		}),
		periodUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "period",
			Name:      "updates_total",
			Help:      "Retention period postbacks, by bound and outcome.",
		}, []string{"bound", "outcome"}),
	}
	m.reg.MustRegister(
		m.webhookEvents,
		m.dedupedEvents,
		m.linkResolutions,
		m.placesCalls,
		m.backfilledLinks,
		m.periodUpdates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry (for tests and extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) Redelivery() {
	if m == nil {
		return
	}
	m.dedupedEvents.Inc()
}

func (m *Metrics) LinkResolution(outcome string) {
	if m == nil {
		return
	}
	m.linkResolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PlacesCall(endpoint, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.placesCalls.WithLabelValues(endpoint, status).Observe(d.Seconds())
}

func (m *Metrics) Backfilled(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.backfilledLinks.Add(float64(n))
}

func (m *Metrics) PeriodUpdate(bound, outcome string) {
	if m == nil {
		return
	}
	m.periodUpdates.WithLabelValues(bound, outcome).Inc()
}

// CountsFunc returns collection totals for the store gauges.
type CountsFunc func(ctx context.Context) metricsstore.Counts

// RegisterStoreCounts exports collection totals, fetched on each scrape.
func (m *Metrics) RegisterStoreCounts(fetch CountsFunc, timeout time.Duration) error {
	return m.reg.Register(&storeCollector{fetch: fetch, timeout: timeout})
}

type storeCollector struct {
	fetch   CountsFunc
	timeout time.Duration
}

var (
	usersDesc  = prometheus.NewDesc(namespace+"_users", "Users known to the bot.", nil, nil)
	groupsDesc = prometheus.NewDesc(namespace+"_groups", "Group chats known to the bot.", nil, nil)
	linksDesc  = prometheus.NewDesc(namespace+"_links", "Stored map links.", nil, nil)
)

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- usersDesc
	ch <- groupsDesc
	ch <- linksDesc
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	counts := c.fetch(ctx)
	ch <- prometheus.MustNewConstMetric(usersDesc, prometheus.GaugeValue, float64(counts.Users))
	ch <- prometheus.MustNewConstMetric(groupsDesc, prometheus.GaugeValue, float64(counts.Groups))
	ch <- prometheus.MustNewConstMetric(linksDesc, prometheus.GaugeValue, float64(counts.Links))
}
