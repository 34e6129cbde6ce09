// Package metrics exposes assistant activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"luna/internal/audio"
	"luna/internal/events"
)

const namespace = "luna"

type Collector struct {
	reg *prometheus.Registry

	events       *prometheus.CounterVec
	plans        *prometheus.CounterVec
	planDuration prometheus.Histogram
	steps        *prometheus.CounterVec
	retries      prometheus.Counter
	errors       *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events published on the bus, by type.",
		}, []string{"type"}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Finished plan executions, by outcome.",
		}, []string{"success"}),
		planDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_duration_seconds",
			Help:      "Wall time of plan executions.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Finished step attempts, by action and outcome.",
		}, []string{"action", "success"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Step retries after recoverable failures.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors reported on the bus, by code.",
		}, []string{"code"}),
	}
	c.reg.MustRegister(c.events, c.plans, c.planDuration, c.steps, c.retries, c.errors)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Attach counts every envelope on the bus until the returned func is
// called.
func (c *Collector) Attach(b *events.Bus) func() {
	return b.Subscribe(nil, c.observe)
}

func (c *Collector) observe(env events.Envelope) {
	c.events.WithLabelValues(env.Event.Type()).Inc()

	switch ev := env.Event.(type) {
	case events.PlanCompleted:
		c.plans.WithLabelValues(strconv.FormatBool(ev.Success)).Inc()
		c.planDuration.Observe(float64(ev.TotalDurationMs) / 1000)
	case events.ActionCompleted:
		c.steps.WithLabelValues(ev.Action, strconv.FormatBool(ev.Success)).Inc()
	case events.ActionRetry:
		c.retries.Inc()
	case events.Error:
		c.errors.WithLabelValues(strconv.Itoa(ev.ErrorCode)).Inc()
	}
}

// WatchCapture exports capture counters and ring fill, read on scrape.
func (c *Collector) WatchCapture(stats func() audio.CaptureStats) {
	c.reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "frames_captured_total",
			Help:      "Frames delivered by the capture device.",
		}, func() float64 { return float64(stats().FramesCaptured) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because the consumer fell behind.",
		}, func() float64 { return float64(stats().FramesDropped) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "ring_fill_ratio",
			Help:      "Fraction of the capture ring holding audio.",
		}, func() float64 { return stats().RingFillRatio }),
	)
}

// WatchBus exports the number of envelopes the bus dropped.
func (c *Collector) WatchBus(b *events.Bus) {
	c.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_dropped_total",
		Help:      "Envelopes dropped by a full bus queue.",
	}, func() float64 { return float64(b.Dropped()) }))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info("Metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
