package waiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// settable is a test value guarded for concurrent access.
type settable struct {
	mu  sync.Mutex
	val string
	set bool
}

func (s *settable) get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val, s.set
}

func (s *settable) put(v string) {
	s.mu.Lock()
	s.val = v
	s.set = true
	s.mu.Unlock()
}

func (s *settable) clear() {
	s.mu.Lock()
	s.val = ""
	s.set = false
	s.mu.Unlock()
}

func TestGetIfReady(t *testing.T) {
	var s settable
	w := New(s.get)

	if _, ok := w.GetIfReady(); ok {
		t.Error("GetIfReady() reported ready before value was set")
	}

	s.put("value")

	v, ok := w.GetIfReady()
	if !ok || v != "value" {
		t.Errorf("GetIfReady() = (%q, %v), want (\"value\", true)", v, ok)
	}
}

func TestAwaitReturnsImmediatelyWhenReady(t *testing.T) {
	var s settable
	s.put("ready")
	w := New(s.get)

	// No Broadcast ever fires; Await must still observe the value.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := w.Await(ctx)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if v != "ready" {
		t.Errorf("Await() = %q, want %q", v, "ready")
	}
}

func TestAwaitBlocksUntilBroadcast(t *testing.T) {
	var s settable
	w := New(s.get)

	done := make(chan string, 1)
	go func() {
		v, err := w.Await(context.Background())
		if err != nil {
			t.Errorf("Await() error: %v", err)
		}
		done <- v
	}()

	select {
	case v := <-done:
		t.Fatalf("Await() returned %q before value was available", v)
	case <-time.After(50 * time.Millisecond):
	}

	s.put("late")
	w.Broadcast()

	select {
	case v := <-done:
		if v != "late" {
			t.Errorf("Await() = %q, want %q", v, "late")
		}
	case <-time.After(time.Second):
		t.Fatal("Await() did not resolve after Broadcast")
	}
}

func TestAwaitReblocksOnEmptySignal(t *testing.T) {
	var s settable
	w := New(s.get)

	done := make(chan string, 1)
	go func() {
		v, _ := w.Await(context.Background())
		done <- v
	}()

	// A signal without a value must not resolve the waiter.
	w.Broadcast()

	select {
	case v := <-done:
		t.Fatalf("Await() resolved to %q on an empty signal", v)
	case <-time.After(50 * time.Millisecond):
	}

	s.put("eventually")
	w.Broadcast()

	select {
	case v := <-done:
		if v != "eventually" {
			t.Errorf("Await() = %q, want %q", v, "eventually")
		}
	case <-time.After(time.Second):
		t.Fatal("Await() did not resolve after value appeared")
	}
}

func TestManyConcurrentAwaiters(t *testing.T) {
	var s settable
	w := New(s.get)

	const n = 32
	var resolved atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := w.Await(context.Background())
			if err == nil && v == "shared" {
				resolved.Add(1)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	s.put("shared")
	w.Broadcast()
	wg.Wait()

	if got := resolved.Load(); got != n {
		t.Errorf("%d of %d awaiters resolved", got, n)
	}
}

func TestAwaitContextCancellation(t *testing.T) {
	var s settable
	w := New(s.get)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := w.Await(ctx)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Await() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Await() did not return after context cancellation")
	}
}

func TestValueClearedReblocks(t *testing.T) {
	var s settable
	s.put("first")
	w := New(s.get)

	if v, ok := w.GetIfReady(); !ok || v != "first" {
		t.Fatalf("GetIfReady() = (%q, %v)", v, ok)
	}

	// Discard the value: new awaiters must block again.
	s.clear()
	w.Broadcast()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := w.Await(ctx); err != context.DeadlineExceeded {
		t.Errorf("Await() after clear = %v, want context.DeadlineExceeded", err)
	}
}
