package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAdd_InvalidSpec(t *testing.T) {
	s := New(context.Background(), nil, nil)
	if err := s.Add("scan", "not a spec", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error")
	}
	if err := s.RunOnce("scan"); err == nil {
		t.Error("invalid job should not be registered")
	}
}

func TestRunOnce(t *testing.T) {
	s := New(context.Background(), time.UTC, nil)
	boom := errors.New("boom")
	var calls atomic.Int32
	if err := s.Add("digest", "0 6 * * *", func(context.Context) error {
		calls.Add(1)
		return boom
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.RunOnce("digest"); !errors.Is(err, boom) {
		t.Errorf("got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestScheduledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, time.UTC, nil)

	ran := make(chan struct{}, 10)
	if err := s.Add("scan", "@every 1s", func(ctx context.Context) error {
		if ctx.Err() != nil {
			t.Error("job got a cancelled context")
		}
		ran <- struct{}{}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}
}

func TestScheduledRun_SkipsOverlap(t *testing.T) {
	s := New(context.Background(), time.UTC, nil)
	release := make(chan struct{})
	var calls atomic.Int32
	j := &job{name: "slow", fn: func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}}

	done := make(chan struct{})
	go func() {
		s.run(j, true)
		close(done)
	}()
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	s.run(j, true) // overlapping tick returns immediately
	close(release)
	<-done

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(ctx, nil, nil)
	s.Add("scan", "@hourly", func(context.Context) error {
		t.Error("job ran after cancel")
		return nil
	})
	if err := s.RunOnce("scan"); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
}
