package degradation

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ExecutionMode is how a request is answered.
type ExecutionMode string

const (
	ModeBasic ExecutionMode = "basic"
	ModePro   ExecutionMode = "pro"
)

// ModeDowngradeReason explains why mode was downgraded
type ModeDowngradeReason string

const (
	ReasonCircuitBreakerOpen ModeDowngradeReason = "circuit_breaker_open"
)

// ModeManager handles mode selection and degradation decisions
type ModeManager struct {
	strategy DegradationStrategy
	logger   *zap.Logger
}

// NewModeManager creates a new mode manager with degradation strategy
func NewModeManager(strategy DegradationStrategy, logger *zap.Logger) *ModeManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModeManager{strategy: strategy, logger: logger}
}

// DetermineFinalMode downgrades pro requests to basic while the language agents are
// unavailable. A pro run would only fail over after spending a planning round trip.
func (mm *ModeManager) DetermineFinalMode(ctx context.Context, originalMode ExecutionMode) (ExecutionMode, *ModeDowngradeReason, error) {
	if mm == nil || mm.strategy == nil {
		return originalMode, nil, nil
	}
	shouldDegrade, level, err := mm.strategy.ShouldDegrade(ctx)
	if err != nil {
		return originalMode, nil, fmt.Errorf("failed to check degradation: %w", err)
	}
	if !shouldDegrade {
		return originalMode, nil, nil
	}

	finalMode, reason := calculateDowngradedMode(originalMode, level)
	if finalMode == originalMode {
		return originalMode, nil, nil
	}

	mm.logger.Info("Mode downgraded due to system degradation",
		zap.String("original_mode", string(originalMode)),
		zap.String("final_mode", string(finalMode)),
		zap.String("degradation_level", level.String()),
		zap.String("reason", string(reason)),
	)
	RecordModeDowngrade(string(originalMode), string(finalMode), string(reason))
	mm.strategy.RecordDegradation(level, fmt.Sprintf("mode_downgrade_%s_to_%s", originalMode, finalMode))
	return finalMode, &reason, nil
}

func calculateDowngradedMode(originalMode ExecutionMode, level DegradationLevel) (ExecutionMode, ModeDowngradeReason) {
	if level >= LevelSevere && originalMode == ModePro {
		return ModeBasic, ReasonCircuitBreakerOpen
	}
	return originalMode, ""
}
