package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownMonotonicAndExpiresOnce(t *testing.T) {
	qs := []QuestionRef{{ID: "q1", OptionCount: 4}}
	s := New(qs, time.Now().Add(60*time.Millisecond))

	c := NewCountdown(s, 5*time.Millisecond)

	var expired int32
	var ticks []time.Duration
	c.OnTick = func(remaining time.Duration) {
		ticks = append(ticks, remaining)
	}
	c.OnExpire = func() {
		atomic.AddInt32(&expired, 1)
	}

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not stop after expiry")
	}

	if n := atomic.LoadInt32(&expired); n != 1 {
		t.Fatalf("OnExpire fired %d times, want exactly 1", n)
	}
	if len(ticks) == 0 {
		t.Fatal("no ticks observed")
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] > ticks[i-1] {
			t.Fatalf("remaining time increased: tick %d %v → tick %d %v", i-1, ticks[i-1], i, ticks[i])
		}
	}
	if last := ticks[len(ticks)-1]; last != 0 {
		t.Fatalf("final tick remaining = %v, want 0", last)
	}
}

func TestCountdownStopsOnCancel(t *testing.T) {
	qs := []QuestionRef{{ID: "q1", OptionCount: 4}}
	s := New(qs, time.Now().Add(time.Hour))

	c := NewCountdown(s, 5*time.Millisecond)
	var expired int32
	c.OnExpire = func() { atomic.AddInt32(&expired, 1) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown did not stop on cancel")
	}
	if atomic.LoadInt32(&expired) != 0 {
		t.Error("OnExpire fired after cancellation")
	}
}

func TestCountdownStopsOnTerminalPhase(t *testing.T) {
	qs := []QuestionRef{{ID: "q1", OptionCount: 4}}
	s := New(qs, time.Now().Add(time.Hour))

	c := NewCountdown(s, 5*time.Millisecond)
	var expired int32
	c.OnExpire = func() { atomic.AddInt32(&expired, 1) }

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	s.BeginSubmit()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown did not stop after submit began")
	}
	if atomic.LoadInt32(&expired) != 0 {
		t.Error("OnExpire fired for a submitting session")
	}
}

func TestCountdownRecomputesFromDeadline(t *testing.T) {
	qs := []QuestionRef{{ID: "q1", OptionCount: 4}}
	deadline := time.Now().Add(time.Hour)
	s := New(qs, deadline)

	c := NewCountdown(s, 5*time.Millisecond)
	// Simulate a suspended interval resuming late: time jumped past the
	// deadline. Remaining must come from the deadline, not tick counting.
	c.now = func() time.Time { return deadline.Add(3 * time.Second) }

	var expired int32
	c.OnExpire = func() { atomic.AddInt32(&expired, 1) }

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown did not expire on first corrected tick")
	}
	if atomic.LoadInt32(&expired) != 1 {
		t.Fatal("expected exactly one expiry after late resume")
	}
}
