package resilience

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes a circuit breaker guarding one outbound target.
type BreakerConfig struct {
	Target       string
	MinRequests  uint32
	FailureRatio float64
	OpenFor      time.Duration
	Logger       *zerolog.Logger
}

// NewBreaker returns a breaker that opens once at least MinRequests calls were
// observed in the current window and the failure ratio reaches FailureRatio.
func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[*http.Response] {
	minReq := cfg.MinRequests
	if minReq == 0 {
		minReq = 5
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	openFor := cfg.OpenFor
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	target := cfg.Target
	if target == "" {
		target = "default"
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	BreakerState.WithLabelValues(target).Set(0)
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        target,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < minReq {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			BreakerState.WithLabelValues(name).Set(stateValue(to))
			BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			if to == gobreaker.StateOpen {
				BreakerOpenedTotal.WithLabelValues(name).Inc()
			}
			logger.Warn().Str("target", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker_state_change")
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
