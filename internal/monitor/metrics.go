package monitor

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cabin-dispatch/internal/dispatch"
	"github.com/cabin-dispatch/internal/messaging"
	"github.com/cabin-dispatch/internal/notify"
)

// Metrics holds the dispatcher's prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	Instructions     *prometheus.CounterVec
	EmergencyActive  prometheus.Gauge
	MessagesSent     *prometheus.CounterVec
	PublishErrors    prometheus.Counter
	DispatchDuration prometheus.Histogram
	WSClients        prometheus.Gauge
	Goroutines       prometheus.Gauge
	MemoryUsage      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Instructions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cabin_instructions_total",
				Help: "Processed instructions by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		EmergencyActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cabin_emergency_active",
			Help: "1 while the emergency state is active",
		}),
		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cabin_messages_published_total",
				Help: "Messages published to the pages by type",
			},
			[]string{"type"},
		),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cabin_publish_errors_total",
			Help: "Failed publishes",
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cabin_dispatch_duration_seconds",
			Help:    "Time spent dispatching one instruction",
			Buckets: prometheus.DefBuckets,
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cabin_ws_clients",
			Help: "Connected websocket clients",
		}),
		Goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cabin_goroutines",
			Help: "Current goroutine count",
		}),
		MemoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cabin_memory_usage_bytes",
			Help: "Allocated heap bytes",
		}),
	}

	m.registry.MustRegister(
		m.Instructions,
		m.EmergencyActive,
		m.MessagesSent,
		m.PublishErrors,
		m.DispatchDuration,
		m.WSClients,
		m.Goroutines,
		m.MemoryUsage,
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe records one processed instruction
func (m *Metrics) Observe(ctx context.Context, ev dispatch.Event) {
	m.Instructions.WithLabelValues(ev.Source, string(ev.Outcome)).Inc()
	m.DispatchDuration.Observe(ev.Duration.Seconds())

	switch ev.Outcome {
	case dispatch.OutcomeEmergencyEntered:
		m.EmergencyActive.Set(1)
	case dispatch.OutcomeEmergencyReleased:
		m.EmergencyActive.Set(0)
	}
}

// ClientConnected and ClientDisconnected track websocket clients
func (m *Metrics) ClientConnected() {
	m.WSClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	m.WSClients.Dec()
}

// StartRuntimeMonitor samples goroutines and heap usage until ctx is done
func (m *Metrics) StartRuntimeMonitor(ctx context.Context, interval time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			m.sampleRuntime(log)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *Metrics) sampleRuntime(log logrus.FieldLogger) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	goroutines := runtime.NumGoroutine()

	m.Goroutines.Set(float64(goroutines))
	m.MemoryUsage.Set(float64(memStats.Alloc))

	log.Debugf("Goroutines: %d, memory: %.2f MB", goroutines, float64(memStats.Alloc)/1024/1024)
}

// Publisher is the publish side of a broker
type Publisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// CountingPublisher counts every publish by message type
type CountingPublisher struct {
	next    Publisher
	metrics *Metrics
}

// NewCountingPublisher wraps next
func NewCountingPublisher(next Publisher, metrics *Metrics) *CountingPublisher {
	return &CountingPublisher{next: next, metrics: metrics}
}

// Publish forwards to the wrapped publisher
func (p *CountingPublisher) Publish(ctx context.Context, channel string, payload interface{}) error {
	if err := p.next.Publish(ctx, channel, payload); err != nil {
		p.metrics.PublishErrors.Inc()
		return err
	}
	p.metrics.MessagesSent.WithLabelValues(messageType(payload)).Inc()
	return nil
}

func messageType(payload interface{}) string {
	switch v := payload.(type) {
	case messaging.Message:
		return v.Type
	case notify.Event:
		return "overlay_" + v.Kind
	default:
		return "raw"
	}
}
