package resilience

import (
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestNewBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewBreaker[int](BreakerConfig{Name: "test", FailureThreshold: 2, ResetTimeout: time.Hour})
	fail := func() (int, error) { return 0, NewTransientError(errors.New("boom"), 503) }

	for range 2 {
		if _, err := cb.Execute(fail); err == nil {
			t.Fatal("expected error")
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	_, err := cb.Execute(func() (int, error) { return 1, nil })
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
}

func TestNewBreaker_ZeroThresholdNeverTrips(t *testing.T) {
	cb := NewBreaker[int](BreakerConfig{Name: "test"})
	for range 20 {
		_, _ = cb.Execute(func() (int, error) { return 0, NewTransientError(errors.New("boom"), 503) })
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestNewBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	cb := NewBreaker[int](BreakerConfig{Name: "test", FailureThreshold: 2, ResetTimeout: time.Hour})
	bad := errors.New("unexpected status: 400 Bad Request")

	for range 5 {
		if _, err := cb.Execute(func() (int, error) { return 0, bad }); !errors.Is(err, bad) {
			t.Fatalf("expected the call's own error, got %v", err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed state, got %s", cb.State())
	}

	v, err := cb.Execute(func() (int, error) { return 1, nil })
	if err != nil || v != 1 {
		t.Errorf("expected healthy call to pass, got %d, %v", v, err)
	}
}
