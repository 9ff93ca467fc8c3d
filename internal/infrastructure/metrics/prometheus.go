// Package metrics exposes the engine's Prometheus series:
//   - active_orders            open positions
//   - order_latency_seconds    time to place the three order legs
//   - order_retry_total        failed placement attempts
//   - current_pnl              unrealized PnL across open positions
//   - current_drawdown         fraction below peak equity
package metrics

import (
	"net/http"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	registry *prometheus.Registry

	activeOrders prometheus.Gauge
	orderLatency prometheus.Histogram
	orderRetries prometheus.Counter
	currentPnL   prometheus.Gauge
	drawdown     prometheus.Gauge
}

// NewRecorder registers the series on a private registry along with the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		activeOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_orders",
			Help: "Number of active positions",
		}),
		orderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_latency_seconds",
			Help:    "Latency of order placement",
			Buckets: prometheus.DefBuckets,
		}),
		orderRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_retry_total",
			Help: "Total order placement retries",
		}),
		currentPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "current_pnl",
			Help: "Current unrealized PnL",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "current_drawdown",
			Help: "Current drawdown from peak equity",
		}),
	}

	r.registry.MustRegister(
		r.activeOrders,
		r.orderLatency,
		r.orderRetries,
		r.currentPnL,
		r.drawdown,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) SetActivePositions(n int)            { r.activeOrders.Set(float64(n)) }
func (r *Recorder) ObserveOrderLatency(d time.Duration) { r.orderLatency.Observe(d.Seconds()) }
func (r *Recorder) IncOrderRetry()                      { r.orderRetries.Inc() }
func (r *Recorder) SetUnrealizedPnL(v float64)          { r.currentPnL.Set(v) }
func (r *Recorder) SetDrawdown(v float64)               { r.drawdown.Set(v) }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

var _ domain.MetricsRecorder = (*Recorder)(nil)
