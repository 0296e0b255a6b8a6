package stats

import (
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livechat"

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater keeps one gauge per registered metric in a private registry
// and applies updates from a single goroutine.
type StatsUpdater struct {
	registry   *prometheus.Registry
	gaugesLock sync.RWMutex
	gauges     map[string]prometheus.Gauge
	updateChan chan *metricsUpdateReq
	done       chan struct{}
}

type metricsUpdateReq struct {
	name  string
	value float64
}

// NewStatsUpdater creates a new stats updater instance and serves its
// registry on GET /metrics.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		registry:   prometheus.NewRegistry(),
		gauges:     make(map[string]prometheus.Gauge),
		updateChan: make(chan *metricsUpdateReq, 512),
		done:       make(chan struct{}),
	}

	mux.Handle("GET /metrics", promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{}))
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started.",
		}, func() float64 {
			return time.Since(startTime).Seconds()
		}),
	)
}

// metricName turns a CamelCase metric name into a snake_case one,
// NumActiveAgents becoming num_active_agents.
func metricName(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (su *StatsUpdater) updateMetrics() {
	defer close(su.done)

	for req := range su.updateChan {
		su.gaugesLock.RLock()
		g, ok := su.gauges[req.name]
		su.gaugesLock.RUnlock()
		if !ok {
			panic("metric not found: " + req.name)
		}

		g.Add(req.value)
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.updateChan <- &metricsUpdateReq{name: name, value: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.updateChan <- &metricsUpdateReq{name: name, value: -1}
}

// RegisterMetric adds a gauge for name. Registering the same name twice is
// a no-op.
func (su *StatsUpdater) RegisterMetric(name string) {
	su.gaugesLock.Lock()
	defer su.gaugesLock.Unlock()

	if _, ok := su.gauges[name]; ok {
		return
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      metricName(name),
		Help:      "Current value of " + name + ".",
	})
	su.registry.MustRegister(g)
	su.gauges[name] = g
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

// Stop drains pending updates and waits for them to be applied.
func (su *StatsUpdater) Stop() {
	close(su.updateChan)
	<-su.done
}
