package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/schoolgate/core"
)

// Collector records session and paging activity as prometheus metrics.
type Collector struct {
	transitions  *prometheus.CounterVec
	pages        *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

var _ core.Metrics = (*Collector)(nil)

// NewCollector registers every metric on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolgate_session_transitions_total",
			Help: "Session phase changes.",
		}, []string{"from", "to"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolgate_pages_served_total",
			Help: "Pages served by paginated readers.",
		}, []string{"collection", "direction", "source"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolgate_fetch_rejected_total",
			Help: "Page requests rejected because a fetch was already in flight.",
		}, []string{"collection"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolgate_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schoolgate_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(c.transitions, c.pages, c.rejected, c.httpRequests, c.httpLatency)
	return c
}

func (c *Collector) SessionTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) PageFetched(collection, direction string, fromCache bool) {
	source := "store"
	if fromCache {
		source = "cache"
	}
	c.pages.WithLabelValues(collection, direction, source).Inc()
}

func (c *Collector) FetchRejected(collection string) {
	c.rejected.WithLabelValues(collection).Inc()
}

func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the prometheus exposition format for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
