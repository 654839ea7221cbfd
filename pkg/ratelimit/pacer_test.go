package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewPacer_Disabled(t *testing.T) {
	for _, rps := range []float64{0, -1} {
		if p := NewPacer(rps, 1); p != nil {
			t.Errorf("NewPacer(%v) = %v, want nil", rps, p)
		}
	}

	var p *Pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("nil Pacer Wait() error = %v", err)
	}
}

func TestPacer_SpacesRequests(t *testing.T) {
	p := NewPacer(20, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// First token is free, the next two cost 50ms each.
	if elapsed < 80*time.Millisecond {
		t.Errorf("3 waits at 20 rps took %v, want >= ~100ms", elapsed)
	}
}

func TestPacer_ContextCancelled(t *testing.T) {
	p := NewPacer(0.1, 1)
	ctx, cancel := context.WithCancel(context.Background())

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Error("Wait() on cancelled context = nil, want error")
	}
}
