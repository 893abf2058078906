package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"vusd/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured engine events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vusd",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of engine events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// CountingEmitter forwards events to next while counting them by type. A nil
// next still counts.
func (m *eventMetrics) CountingEmitter(next events.Emitter) events.Emitter {
	return events.EmitterFunc(func(evt events.Event) {
		if evt == nil {
			return
		}
		if m != nil {
			m.emitted.WithLabelValues(evt.EventType()).Inc()
		}
		if next != nil {
			next.Emit(evt)
		}
	})
}
