package circuitbreaker

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CircuitBreakerConfig represents configuration for a circuit breaker
type CircuitBreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// GetHTTPConfig returns HTTP circuit breaker defaults, overridable via CB_HTTP_* variables.
func GetHTTPConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32("CB_HTTP_MAX_REQUESTS", 5),
		Interval:         getEnvDuration("CB_HTTP_INTERVAL", 30*time.Second),
		Timeout:          getEnvDuration("CB_HTTP_TIMEOUT", 15*time.Second),
		FailureThreshold: getEnvUint32("CB_HTTP_FAILURE_THRESHOLD", 3),
		SuccessThreshold: getEnvUint32("CB_HTTP_SUCCESS_THRESHOLD", 2),
	}
}

// GetServiceConfig returns the HTTP defaults with per-service overrides,
// e.g. CB_LLM_FAILURE_THRESHOLD for service "llm".
func GetServiceConfig(service string) CircuitBreakerConfig {
	base := GetHTTPConfig()
	prefix := "CB_" + strings.ToUpper(strings.ReplaceAll(service, "-", "_")) + "_"
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32(prefix+"MAX_REQUESTS", base.MaxRequests),
		Interval:         getEnvDuration(prefix+"INTERVAL", base.Interval),
		Timeout:          getEnvDuration(prefix+"TIMEOUT", base.Timeout),
		FailureThreshold: getEnvUint32(prefix+"FAILURE_THRESHOLD", base.FailureThreshold),
		SuccessThreshold: getEnvUint32(prefix+"SUCCESS_THRESHOLD", base.SuccessThreshold),
	}
}

// ToConfig converts CircuitBreakerConfig to circuit breaker Config
func (cbc CircuitBreakerConfig) ToConfig() Config {
	return Config{
		MaxRequests:      cbc.MaxRequests,
		Interval:         cbc.Interval,
		Timeout:          cbc.Timeout,
		FailureThreshold: cbc.FailureThreshold,
		SuccessThreshold: cbc.SuccessThreshold,
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
