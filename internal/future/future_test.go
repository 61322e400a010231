package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFuture_SettlesOnce(t *testing.T) {
	f := New[string]()
	if f.Settled() {
		t.Fatal("new future should not be settled")
	}

	if !f.Resolve("a") {
		t.Fatal("first Resolve should settle")
	}
	if f.Resolve("b") {
		t.Error("second Resolve should be ignored")
	}
	if f.Reject(errors.New("late")) {
		t.Error("Reject after Resolve should be ignored")
	}

	v, err := f.Await(context.Background())
	if err != nil || v != "a" {
		t.Errorf("Await = (%q, %v), want (a, nil)", v, err)
	}
}

func TestFuture_ManyWaiters(t *testing.T) {
	f := New[int]()

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _ := f.Await(context.Background())
			results[i] = v
		}(i)
	}

	f.Resolve(42)
	wg.Wait()

	for i, v := range results {
		if v != 42 {
			t.Errorf("waiter %d got %d, want 42", i, v)
		}
	}
}

func TestFuture_AwaitCancelled(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await err = %v, want deadline exceeded", err)
	}

	// the future is still usable after an abandoned wait
	f.Resolve(1)
	if v, err := f.Await(context.Background()); err != nil || v != 1 {
		t.Errorf("Await = (%d, %v), want (1, nil)", v, err)
	}
}
