package services

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerService keeps one breaker per provider adapter; a flaky
// vendor trips only its own breaker.
type CircuitBreakerService struct {
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewCircuitBreakerService(providers []string, timeout time.Duration, logger *logrus.Logger) *CircuitBreakerService {
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(providers))
	for _, name := range providers {
		settings := gobreaker.Settings{
			Name:    name,
			Timeout: timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"component": "circuit_breaker",
					"provider":  name,
					"from":      from.String(),
					"to":        to.String(),
				}).Info("Circuit breaker state changed")
			},
		}
		breakers[name] = gobreaker.NewCircuitBreaker(settings)
	}

	return &CircuitBreakerService{
		breakers: breakers,
		logger:   logger,
	}
}

// Execute wraps a provider call with circuit breaker protection
func (cb *CircuitBreakerService) Execute(provider string, fn func() (interface{}, error)) (interface{}, error) {
	breaker, exists := cb.breakers[provider]
	if !exists {
		cb.logger.WithFields(logrus.Fields{
			"component": "circuit_breaker",
			"provider":  provider,
		}).Warn("No circuit breaker found for provider, executing without protection")
		return fn()
	}

	return breaker.Execute(fn)
}

// GetState returns the current state of a provider's circuit breaker
func (cb *CircuitBreakerService) GetState(provider string) gobreaker.State {
	if breaker, exists := cb.breakers[provider]; exists {
		return breaker.State()
	}
	return gobreaker.StateClosed
}
