package degradation

import (
	"context"

	"go.uber.org/zap"
)

// DegradationStrategy decides how degraded the system currently is.
type DegradationStrategy interface {
	ShouldDegrade(ctx context.Context) (bool, DegradationLevel, error)
	RecordDegradation(level DegradationLevel, reason string)
}

// DegradationLevel represents the severity of degradation
type DegradationLevel int

const (
	LevelNone   DegradationLevel = iota
	LevelMinor                   // search backend unhealthy
	LevelSevere                  // language agents unhealthy
)

func (d DegradationLevel) String() string {
	switch d {
	case LevelNone:
		return "none"
	case LevelMinor:
		return "minor"
	case LevelSevere:
		return "severe"
	default:
		return "unknown"
	}
}

// Breaker is the view of a circuit breaker the strategy needs.
type Breaker interface {
	Name() string
	IsOpen() bool
}

// BreakerStrategy derives the degradation level from circuit breaker states.
// Any open critical breaker is severe; any open optional breaker is minor.
type BreakerStrategy struct {
	critical []Breaker
	optional []Breaker
	logger   *zap.Logger
}

// NewBreakerStrategy builds a strategy; nil breakers are ignored.
func NewBreakerStrategy(logger *zap.Logger, critical, optional []Breaker) *BreakerStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerStrategy{critical: compact(critical), optional: compact(optional), logger: logger}
}

func compact(in []Breaker) []Breaker {
	out := make([]Breaker, 0, len(in))
	for _, b := range in {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

func (s *BreakerStrategy) ShouldDegrade(ctx context.Context) (bool, DegradationLevel, error) {
	level := LevelNone
	for _, b := range s.optional {
		open := b.IsOpen()
		RecordCircuitBreakerHealth(b.Name(), open)
		if open {
			level = LevelMinor
		}
	}
	for _, b := range s.critical {
		open := b.IsOpen()
		RecordCircuitBreakerHealth(b.Name(), open)
		if open {
			level = LevelSevere
		}
	}
	currentDegradationLevel.Set(float64(level))
	return level > LevelNone, level, nil
}

func (s *BreakerStrategy) RecordDegradation(level DegradationLevel, reason string) {
	degradationEventsTotal.WithLabelValues(level.String(), reason).Inc()
	s.logger.Debug("Degradation recorded",
		zap.String("level", level.String()),
		zap.String("reason", reason),
	)
}
