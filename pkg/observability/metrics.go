package observability

import (
	"context"

	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes admission and transfer counters for Prometheus.
type Metrics struct {
	Sessions      *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	SpawnErrors   *prometheus.CounterVec
	BytesSent     prometheus.Counter
	FramesDropped prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enginegate_session_events_total",
				Help: "Session lifecycle transitions by event type",
			},
			[]string{"event"},
		),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enginegate_queue_depth",
			Help: "Sessions waiting or running in the admission queue",
		}),
		SpawnErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enginegate_spawn_errors_total",
				Help: "Engine launch failures by process error code",
			},
			[]string{"code"},
		),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enginegate_bytes_sent_total",
			Help: "Bytes written to engine sockets",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enginegate_frames_dropped_total",
			Help: "Outbound messages dropped for exceeding the frame size",
		}),
	}
	reg.MustRegister(m.Sessions, m.QueueDepth, m.SpawnErrors, m.BytesSent, m.FramesDropped)
	return m
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionEvent: func(_ context.Context, e *domain.SessionEvent) {
			m.Sessions.WithLabelValues(string(e.Type)).Inc()
			m.QueueDepth.Set(float64(e.QueueDepth))
		},
		OnTransfer: func(_ context.Context, e *domain.TransferEvent) {
			switch e.Type {
			case domain.EventBytesSent:
				m.BytesSent.Add(float64(e.Bytes))
			case domain.EventFrameDropped:
				m.FramesDropped.Inc()
			}
		},
		OnSpawnError: func(_ context.Context, e *domain.SpawnErrorEvent) {
			m.SpawnErrors.WithLabelValues(e.Err.Code.String()).Inc()
		},
	}
}

// Combine fans every event out to each set of hooks, in order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionEvent: func(ctx context.Context, e *domain.SessionEvent) {
			for _, h := range hooks {
				if h.OnSessionEvent != nil {
					h.OnSessionEvent(ctx, e)
				}
			}
		},
		OnTransfer: func(ctx context.Context, e *domain.TransferEvent) {
			for _, h := range hooks {
				if h.OnTransfer != nil {
					h.OnTransfer(ctx, e)
				}
			}
		},
		OnSpawnError: func(ctx context.Context, e *domain.SpawnErrorEvent) {
			for _, h := range hooks {
				if h.OnSpawnError != nil {
					h.OnSpawnError(ctx, e)
				}
			}
		},
	}
}
