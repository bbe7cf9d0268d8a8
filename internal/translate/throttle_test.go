package translate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestThrottleSpacesRequests(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	backend := BackendFunc(func(ctx context.Context, text, history string) (string, error) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return text, nil
	})

	th := NewThrottle(backend, 30*time.Millisecond)
	for i := 0; i < 3; i++ {
		if _, err := th.Translate(context.Background(), "x", ""); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 25*time.Millisecond {
			t.Fatalf("gap %d = %v, want at least ~30ms", i, gap)
		}
	}
}

func TestThrottleHonorsContext(t *testing.T) {
	called := false
	backend := BackendFunc(func(ctx context.Context, text, history string) (string, error) {
		called = true
		return "", nil
	})
	th := NewThrottle(backend, time.Hour)
	if _, err := th.Translate(context.Background(), "first", ""); err != nil {
		t.Fatal(err)
	}
	called = false

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := th.Translate(ctx, "second", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Fatal("backend called after context expired")
	}
}

func TestThrottleDisabled(t *testing.T) {
	th := NewThrottle(BackendFunc(func(ctx context.Context, text, history string) (string, error) {
		return "ok", nil
	}), 0)
	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := th.Translate(context.Background(), "x", ""); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > time.Second {
		t.Fatal("disabled throttle should not wait")
	}
}

func TestThrottleCanceledWaiterReleasesSlot(t *testing.T) {
	const interval = 200 * time.Millisecond
	th := NewThrottle(nil, interval)
	if err := th.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	gaveUp := make(chan error, 1)
	go func() { gaveUp <- th.Wait(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-gaveUp; !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled Wait = %v", err)
	}

	if err := th.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := time.Since(start); got > interval+interval/2 {
		t.Fatalf("next request waited %v, canceled caller kept its slot", got)
	}
}

func TestThrottleCanceledWaiterAheadInQueue(t *testing.T) {
	const interval = 200 * time.Millisecond
	th := NewThrottle(nil, interval)
	if err := th.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	gaveUp := make(chan error, 1)
	go func() { gaveUp <- th.Wait(ctx) }()
	time.Sleep(10 * time.Millisecond)

	released := make(chan time.Duration, 1)
	go func() {
		th.Wait(context.Background())
		released <- time.Since(start)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-gaveUp

	select {
	case got := <-released:
		if got < interval-20*time.Millisecond || got > interval+interval/2 {
			t.Fatalf("queued request released after %v, want about %v", got, interval)
		}
	case <-time.After(3 * interval):
		t.Fatal("queued request never released")
	}
}

func TestThrottleFIFO(t *testing.T) {
	th := NewThrottle(nil, 20*time.Millisecond)
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			th.Wait(context.Background())
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()
	for i, got := range order {
		if got != i {
			t.Fatalf("release order = %v", order)
		}
	}
}
