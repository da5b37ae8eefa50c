package breaker

import (
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

// fakeClock lets tests step past the reset timeout without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, reset time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)}
	b := New("test", maxFailures, reset)
	b.now = clk.now
	return b, clk
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := New("spot", 3, 100*time.Millisecond)
	if b.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", b.CurrentState())
	}
	if b.Name() != "spot" {
		t.Errorf("name = %q", b.Name())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if b.CurrentState() != StateOpen {
		t.Errorf("expected Open after 3 failures, got %v", b.CurrentState())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)
	b.Execute(func() error { return errFail })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errFail })
	if b.CurrentState() != StateClosed {
		t.Errorf("non-consecutive failures must not trip, got %v", b.CurrentState())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clk := newTestBreaker(2, 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		b.Execute(func() error { return errFail })
	}
	if b.CurrentState() != StateOpen {
		t.Fatal("expected Open")
	}

	clk.advance(60 * time.Millisecond)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if b.CurrentState() != StateClosed {
		t.Errorf("expected Closed after successful probe, got %v", b.CurrentState())
	}
}

func TestBreaker_HalfOpenFailure(t *testing.T) {
	b, clk := newTestBreaker(2, 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		b.Execute(func() error { return errFail })
	}

	clk.advance(60 * time.Millisecond)
	b.Execute(func() error { return errFail })

	if b.CurrentState() != StateOpen {
		t.Errorf("expected Open after failed probe, got %v", b.CurrentState())
	}
}

func TestBreaker_TripsFilter(t *testing.T) {
	errRejected := errors.New("rejected")
	b, _ := newTestBreaker(1, time.Second)
	b.Trips = func(err error) bool { return !errors.Is(err, errRejected) }

	if err := b.Execute(func() error { return errRejected }); err != errRejected {
		t.Fatalf("expected passthrough error, got %v", err)
	}
	if b.CurrentState() != StateClosed {
		t.Fatalf("non-tripping error opened the breaker")
	}

	b.Execute(func() error { return errFail })
	if b.CurrentState() != StateOpen {
		t.Fatalf("tripping error should open the breaker")
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	b, clk := newTestBreaker(1, time.Second)
	var got []string
	b.OnStateChange = func(name string, from, to State) {
		got = append(got, name+":"+from.String()+"->"+to.String())
	}

	b.Execute(func() error { return errFail })
	clk.advance(2 * time.Second)
	b.Execute(func() error { return nil })

	want := []string{"test:closed->open", "test:open->half-open", "test:half-open->closed"}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}
