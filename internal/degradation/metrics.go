package degradation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	degradationEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_degradation_events_total",
			Help: "Total number of degradation events by level and reason",
		},
		[]string{"level", "reason"},
	)

	currentDegradationLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prosearch_degradation_level",
			Help: "Current degradation level (0=none, 1=minor, 2=severe)",
		},
	)

	dependencyHealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prosearch_dependency_health",
			Help: "Dependency health status (1=healthy, 0=unhealthy)",
		},
		[]string{"dependency", "type"},
	)

	modeDowngradeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_mode_downgrade_total",
			Help: "Total number of mode downgrades by original mode and target mode",
		},
		[]string{"from_mode", "to_mode", "reason"},
	)
)

// RecordCircuitBreakerHealth updates dependency health based on circuit breaker state
func RecordCircuitBreakerHealth(dependency string, isOpen bool) {
	value := 1.0
	if isOpen {
		value = 0.0
	}
	dependencyHealthStatus.WithLabelValues(dependency, "circuit_breaker").Set(value)
}

// RecordModeDowngrade records when a request mode is downgraded
func RecordModeDowngrade(fromMode, toMode, reason string) {
	modeDowngradeEvents.WithLabelValues(fromMode, toMode, reason).Inc()
}
