// Package metrics exposes device state as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/state"
)

// SnapshotSource provides the current display state of every device.
type SnapshotSource interface {
	Snapshot() []state.DeviceStatus
}

// Collector reports per-device gauges from a snapshot and counts engine
// events it observes.
type Collector struct {
	source SnapshotSource

	statusDesc  *prometheus.Desc
	streakDesc  *prometheus.Desc
	devicesDesc *prometheus.Desc

	changes *prometheus.CounterVec
	skipped prometheus.Counter
	cycles  prometheus.Counter
}

// NewCollector creates a collector reading from source, which may be nil
// until SetSource is called.
func NewCollector(source SnapshotSource) *Collector {
	return &Collector{
		source: source,
		statusDesc: prometheus.NewDesc(
			"pingalert_device_status",
			"Current status of each device, 1 for the active status.",
			[]string{"ip", "name", "status"}, nil,
		),
		streakDesc: prometheus.NewDesc(
			"pingalert_device_success_streak",
			"Consecutive successful probes per device.",
			[]string{"ip", "name"}, nil,
		),
		devicesDesc: prometheus.NewDesc(
			"pingalert_devices",
			"Number of devices per status.",
			[]string{"status"}, nil,
		),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pingalert_status_changes_total",
			Help: "Device status changes by new status.",
		}, []string{"to"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pingalert_probes_skipped_total",
			Help: "Probes not launched because the previous probe was still outstanding.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pingalert_cycles_total",
			Help: "Monitoring cycles launched.",
		}),
	}
}

// SetSource replaces the snapshot source. Call it before registering c.
func (c *Collector) SetSource(source SnapshotSource) {
	c.source = source
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.statusDesc
	ch <- c.streakDesc
	ch <- c.devicesDesc
	c.changes.Describe(ch)
	c.skipped.Describe(ch)
	c.cycles.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counts := make(map[state.Status]int, len(state.Statuses))
	for _, s := range state.Statuses {
		counts[s] = 0
	}
	var snapshot []state.DeviceStatus
	if c.source != nil {
		snapshot = c.source.Snapshot()
	}
	for _, dev := range snapshot {
		counts[dev.Status]++
		for _, s := range state.Statuses {
			v := 0.0
			if dev.Status == s {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.statusDesc, prometheus.GaugeValue, v, dev.Device.IP, dev.Device.Name, string(s))
		}
		ch <- prometheus.MustNewConstMetric(c.streakDesc, prometheus.GaugeValue, float64(dev.SuccessStreak), dev.Device.IP, dev.Device.Name)
	}
	for _, s := range state.Statuses {
		ch <- prometheus.MustNewConstMetric(c.devicesDesc, prometheus.GaugeValue, float64(counts[s]), string(s))
	}
	c.changes.Collect(ch)
	c.skipped.Collect(ch)
	c.cycles.Collect(ch)
}

func (c *Collector) OnStatusChanged(device config.Device, from, to state.Status) {
	c.changes.WithLabelValues(string(to)).Inc()
}

func (c *Collector) OnCycle(launched, skipped int) {
	c.cycles.Inc()
	c.skipped.Add(float64(skipped))
}

// Handler returns a /metrics handler for a registry holding c.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// Serve starts an HTTP server and blocks until context cancellation.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Shutdown(context.Background())
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		return err
	}
}
