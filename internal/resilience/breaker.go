package resilience

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerConfig controls when the upstream circuit opens.
type BreakerConfig struct {
	Name string
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32
	// ResetTimeout is how long the circuit stays open before a probe is allowed.
	ResetTimeout time.Duration
}

// NewBreaker builds a circuit breaker that trips on consecutive transient
// failures. Other errors pass through without counting against the circuit,
// so a rejected filter cannot block healthy requests. A FailureThreshold of
// zero disables tripping.
func NewBreaker[T any](cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	log := zap.L().With(zap.String("component", "resilience.breaker"), zap.String("breaker", cfg.Name))

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.FailureThreshold > 0 && counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}
