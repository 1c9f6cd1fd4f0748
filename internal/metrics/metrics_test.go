package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second Register failed: %v", err)
	}
}

func TestTaskRequested(t *testing.T) {
	before := testutil.ToFloat64(tasksTotal.WithLabelValues("interferogram", "created"))
	TaskRequested("interferogram", "created")
	after := testutil.ToFloat64(tasksTotal.WithLabelValues("interferogram", "created"))

	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestDispatchFinished_Outcome(t *testing.T) {
	okBefore := testutil.ToFloat64(dispatchTotal.WithLabelValues(OutcomeSuccess))
	errBefore := testutil.ToFloat64(dispatchTotal.WithLabelValues(OutcomeError))

	DispatchFinished(nil)
	DispatchFinished(errors.New("engine failed"))
	DispatchFinished(errors.New("engine failed"))

	if got := testutil.ToFloat64(dispatchTotal.WithLabelValues(OutcomeSuccess)) - okBefore; got != 1 {
		t.Errorf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(dispatchTotal.WithLabelValues(OutcomeError)) - errBefore; got != 2 {
		t.Errorf("expected 2 errors, got %v", got)
	}
}

func TestObserveResolution_NegativeDuration(t *testing.T) {
	// Must not panic on clock skew.
	ObserveResolution(-time.Second, nil)
}

func TestStreamSubscribers(t *testing.T) {
	before := testutil.ToFloat64(streamSubscribers)
	StreamSubscribed()
	StreamSubscribed()
	StreamUnsubscribed()

	if got := testutil.ToFloat64(streamSubscribers) - before; got != 1 {
		t.Errorf("expected 1 open stream, got %v", got)
	}
}

func TestStreamEventDropped(t *testing.T) {
	before := testutil.ToFloat64(streamEventsDropped)
	StreamEventDropped()

	if got := testutil.ToFloat64(streamEventsDropped) - before; got != 1 {
		t.Errorf("expected 1 dropped event, got %v", got)
	}
}
