// Package breaker guards outbound calls to the imagery catalog and the event
// sources with a circuit breaker that reports its state to Prometheus.
package breaker

import (
	"context"
	"errors"
	"log/slog"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mr1hm/go-hazard-tasks/internal/config"
	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/metrics"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
	log  *slog.Logger
}

func New(name string, cfg config.CircuitBreakerConfig) *Breaker {
	log := logging.Component("breaker").With("name", name)

	metrics.SetCircuitBreakerState(name, 0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.FailureRatio {
				log.Warn("opening circuit", "failures", counts.TotalFailures, "failure_ratio", ratio)
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state transition", "from", from.String(), "to", to.String())
			metrics.SetCircuitBreakerState(name, stateValue(to))
			metrics.CircuitBreakerTransition(name, from.String(), to.String())
		},
		IsSuccessful: func(err error) bool {
			// Unknown ids, bad input and caller cancellations say nothing
			// about the remote service's health.
			return err == nil ||
				errors.Is(err, models.ErrEventNotFound) ||
				errors.Is(err, models.ErrMissingInput) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &Breaker{name: name, cb: cb, log: log}
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Do runs fn through the breaker. Rejections because the circuit is open
// are reported as models.ErrCatalogUnavailable.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T

	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequest(b.name, "rejected")
			b.log.Warn("request rejected", "error", err)
			return zero, errors.Join(models.ErrCatalogUnavailable, err)
		}
		metrics.CircuitBreakerRequest(b.name, "failure")
		return zero, err
	}

	metrics.CircuitBreakerRequest(b.name, "success")
	typed, ok := result.(T)
	if !ok && result != nil {
		return zero, errors.New("circuit breaker: unexpected result type")
	}
	return typed, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
