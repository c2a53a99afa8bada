package sync

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGuardRunSingleFlight(t *testing.T) {
	g := NewGuardSet()

	var calls atomic.Int32
	release := make(chan struct{})
	wantErr := errors.New("boom")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.Run("k", func() error {
				calls.Add(1)
				<-release
				return wantErr
			})
		}(i)
	}

	// Wait for the first call to be registered, then let it finish.
	deadline := time.Now().Add(time.Second)
	for !g.Has("k") {
		if time.Now().After(deadline) {
			t.Fatal("guard key never registered")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fn invoked %d times, want 1", got)
	}
	for i, err := range results {
		if !errors.Is(err, wantErr) {
			t.Errorf("call %d returned %v, want %v", i, err, wantErr)
		}
	}
	if g.Has("k") {
		t.Error("key still in flight after settle")
	}
}

func TestGuardRunReleasesOnSuccess(t *testing.T) {
	g := NewGuardSet()

	if err := g.Run("k", func() error { return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if g.Has("k") {
		t.Error("key still in flight after success")
	}

	// A second run with the same key must invoke fn again.
	var called bool
	if err := g.Run("k", func() error { called = true; return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !called {
		t.Error("fn not invoked after key was released")
	}
}

func TestGuardDifferentKeysInterleave(t *testing.T) {
	g := NewGuardSet()

	blockA := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = g.Run("a", func() error { <-blockA; return nil })
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !g.Has("a") {
		if time.Now().After(deadline) {
			t.Fatal("key a never registered")
		}
		time.Sleep(time.Millisecond)
	}

	// A different key must not be blocked by a's in-flight call.
	ran := false
	if err := g.Run("b", func() error { ran = true; return nil }); err != nil {
		t.Fatalf("Run(b): %v", err)
	}
	if !ran {
		t.Error("key b did not run while a was in flight")
	}

	close(blockA)
	<-done
}

func TestGuardTTLEviction(t *testing.T) {
	g := NewGuardSet()
	g.ttl = 20 * time.Millisecond

	started := make(chan struct{})
	release := make(chan struct{})
	go g.Run("k", func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	// After the TTL the key is evicted even though fn has not settled.
	deadline := time.Now().Add(time.Second)
	for g.Has("k") {
		if time.Now().After(deadline) {
			t.Fatal("key not evicted after TTL")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
}
