package breaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mr1hm/go-hazard-tasks/internal/config"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

func testConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

func TestDo_PassesResultThrough(t *testing.T) {
	b := New("test-pass", testConfig())

	got, err := Do(b, func() ([]string, error) {
		return []string{"a", "b"}, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 results, got %v", got)
	}
}

func TestDo_NilResult(t *testing.T) {
	b := New("test-nil", testConfig())

	got, err := Do(b, func() ([]string, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestDo_OpensAfterFailures(t *testing.T) {
	b := New("test-open", testConfig())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := Do(b, func() (int, error) { return 0, boom })
		if !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}

	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open circuit, got %s", b.State())
	}

	called := false
	_, err := Do(b, func() (int, error) {
		called = true
		return 1, nil
	})
	if called {
		t.Error("expected fn not to run while open")
	}
	if !errors.Is(err, models.ErrCatalogUnavailable) {
		t.Errorf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestDo_NotFoundDoesNotTrip(t *testing.T) {
	b := New("test-notfound", testConfig())

	for i := 0; i < 5; i++ {
		_, err := Do(b, func() (int, error) {
			return 0, fmt.Errorf("%w: us0000", models.ErrEventNotFound)
		})
		if !errors.Is(err, models.ErrEventNotFound) {
			t.Fatalf("expected ErrEventNotFound, got %v", err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("expected closed circuit, got %s", b.State())
	}

	_, err := Do(b, func() (int, error) { return 0, context.Canceled })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
