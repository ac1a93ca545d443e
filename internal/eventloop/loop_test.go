package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l, cancel
}

func TestLoop_PostRunsInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("call: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("expected in-order callbacks, got %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 callbacks, got %d", len(got))
	}
}

func TestLoop_ScheduleFires(t *testing.T) {
	l, _ := startLoop(t)

	fired := make(chan struct{})
	l.Schedule(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
}

func TestLoop_CancelPreventsCallback(t *testing.T) {
	l, _ := startLoop(t)

	var calls atomic.Int32
	token := l.Schedule(20*time.Millisecond, func() { calls.Add(1) })
	if !l.Cancel(token) {
		t.Fatalf("expected pending timer to cancel")
	}
	if l.Cancel(token) {
		t.Fatalf("expected second cancel to report false")
	}

	time.Sleep(60 * time.Millisecond)
	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected cancelled timer not to run, ran %d times", calls.Load())
	}
}

func TestLoop_PanicIsRecovered(t *testing.T) {
	l, _ := startLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	if err := l.Call(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("call: %v", err)
	}
	if !ran {
		t.Fatalf("expected loop to keep running after a panic")
	}
}
