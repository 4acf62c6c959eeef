package observability

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	commandOutcomes  *prometheus.CounterVec
	commandLatency   *prometheus.HistogramVec
	commandsClaimed  prometheus.Counter
	operationsClosed *prometheus.CounterVec

	tripleStoreQueries *prometheus.CounterVec
	tripleStoreLatency *prometheus.HistogramVec
	graphInsertRetries *prometheus.CounterVec

	paranetSyncItems *prometheus.CounterVec

	busPublished *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once. It returns nil when metrics are disabled
// and force is false.
func Init(log *logger.Logger, force bool) *Metrics {
	if !force && !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// New builds a Metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	latency := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}
	return &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otnode_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "otnode_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: latency,
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "otnode_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		commandOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otnode_command_outcomes_total",
			Help: "Command executions by command name and outcome.",
		}, []string{"command", "outcome"}),
		commandLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "otnode_command_duration_seconds",
			Help:    "Command handler latency in seconds.",
			Buckets: latency,
		}, []string{"command"}),
		commandsClaimed: f.NewCounter(prometheus.CounterOpts{
			Name: "otnode_commands_claimed_total",
			Help: "Commands claimed by executor workers.",
		}),
		operationsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otnode_operations_terminal_total",
			Help: "Operations that reached a terminal status.",
		}, []string{"type", "status"}),
		tripleStoreQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otnode_triple_store_queries_total",
			Help: "SPARQL requests by repository, kind and result.",
		}, []string{"repository", "kind", "result"}),
		tripleStoreLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "otnode_triple_store_query_duration_seconds",
			Help:    "SPARQL request latency in seconds.",
			Buckets: latency,
		}, []string{"repository", "kind"}),
		graphInsertRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otnode_graph_insert_retries_total",
			Help: "Named-graph insert attempts that had to be repeated.",
		}, []string{"repository"}),
		paranetSyncItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otnode_paranet_sync_items_total",
			Help: "Paranet sync attempts by result.",
		}, []string{"paranet", "result"}),
		busPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "otnode_bus_events_total",
			Help: "Operation change events published to the bus.",
		}, []string{"result"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ObserveCommand(name, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.commandOutcomes.WithLabelValues(name, outcome).Inc()
	m.commandLatency.WithLabelValues(name).Observe(dur.Seconds())
}

func (m *Metrics) CommandsClaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.commandsClaimed.Add(float64(n))
}

func (m *Metrics) OperationTerminal(opType, status string) {
	if m == nil {
		return
	}
	m.operationsClosed.WithLabelValues(opType, status).Inc()
}

func (m *Metrics) ObserveTripleStore(repository, kind, result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.tripleStoreQueries.WithLabelValues(repository, kind, result).Inc()
	m.tripleStoreLatency.WithLabelValues(repository, kind).Observe(dur.Seconds())
}

func (m *Metrics) GraphInsertRetry(repository string) {
	if m == nil {
		return
	}
	m.graphInsertRetries.WithLabelValues(repository).Inc()
}

func (m *Metrics) ParanetSync(paranet, result string) {
	if m == nil {
		return
	}
	m.paranetSyncItems.WithLabelValues(paranet, result).Inc()
}

func (m *Metrics) BusPublished(result string) {
	if m == nil {
		return
	}
	m.busPublished.WithLabelValues(result).Inc()
}
