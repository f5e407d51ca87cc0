package callgroup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeduplication(t *testing.T) {
	var g Group[int, string]
	var calls atomic.Int32
	started := make(chan struct{})

	fn := func() (string, error) {
		calls.Add(1)
		close(started)
		time.Sleep(50 * time.Millisecond)
		return "footer", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]Result[string], n)

	// First caller starts the work.
	wg.Go(func() {
		results[0] = <-g.DoChan(1, fn)
	})

	// Wait for fn to start, then pile on.
	<-started
	for i := 1; i < n; i++ {
		wg.Go(func() {
			results[i] = <-g.DoChan(1, fn)
		})
	}

	wg.Wait()

	for i, r := range results {
		if r.Err != nil {
			t.Errorf("caller %d got error: %v", i, r.Err)
		}
		if r.Val != "footer" {
			t.Errorf("caller %d got %q, want %q", i, r.Val, "footer")
		}
		if !r.Shared {
			t.Errorf("caller %d: Shared = false, want true", i)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
}

func TestIndependentKeys(t *testing.T) {
	var g Group[int, int]
	var calls atomic.Int32

	var wg sync.WaitGroup
	for _, key := range []int{1, 2, 3} {
		wg.Go(func() {
			r := <-g.DoChan(key, func() (int, error) {
				calls.Add(1)
				return key * 10, nil
			})
			if r.Val != key*10 {
				t.Errorf("key %d got %d", key, r.Val)
			}
		})
	}

	wg.Wait()

	if got := calls.Load(); got != 3 {
		t.Errorf("fn called %d times, want 3", got)
	}
}

func TestErrorPropagation(t *testing.T) {
	var g Group[int, int]
	sentinel := errors.New("failed")
	started := make(chan struct{})

	ch1 := g.DoChan(1, func() (int, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return 0, sentinel
	})
	<-started

	ch2 := g.DoChan(1, func() (int, error) {
		t.Error("should not execute")
		return 0, nil
	})

	r1 := <-ch1
	r2 := <-ch2

	if !errors.Is(r1.Err, sentinel) {
		t.Errorf("caller 1: got %v, want %v", r1.Err, sentinel)
	}
	if !errors.Is(r2.Err, sentinel) {
		t.Errorf("caller 2: got %v, want %v", r2.Err, sentinel)
	}
}

func TestFailureNotRemembered(t *testing.T) {
	var g Group[string, int]
	var calls atomic.Int32

	r := <-g.DoChan("k", func() (int, error) {
		calls.Add(1)
		return 0, errors.New("boom")
	})
	if r.Err == nil {
		t.Fatal("expected error")
	}

	r = <-g.DoChan("k", func() (int, error) {
		calls.Add(1)
		return 7, nil
	})
	if r.Err != nil || r.Val != 7 {
		t.Fatalf("retry: got (%d, %v), want (7, nil)", r.Val, r.Err)
	}
	if r.Shared {
		t.Error("single caller should not be marked shared")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fn called %d times, want 2", got)
	}
}

func TestAbandonedWaiter(t *testing.T) {
	var g Group[int, int]
	release := make(chan struct{})
	started := make(chan struct{})

	ch1 := g.DoChan(1, func() (int, error) {
		close(started)
		<-release
		return 42, nil
	})
	<-started

	// Second caller joins, then walks away without reading.
	_ = g.DoChan(1, func() (int, error) { return 0, nil })

	if !g.InFlight(1) {
		t.Fatal("expected call in flight")
	}
	close(release)

	if r := <-ch1; r.Val != 42 {
		t.Errorf("got %d, want 42", r.Val)
	}

	deadline := time.Now().Add(time.Second)
	for g.InFlight(1) {
		if time.Now().After(deadline) {
			t.Fatal("key not forgotten after completion")
		}
		time.Sleep(time.Millisecond)
	}
}
