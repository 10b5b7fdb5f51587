package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hintnav/go-hint/internal/nav"
)

// mockOutput records spoken text and can simulate slow or failing playback
type mockOutput struct {
	mu       sync.Mutex
	spoken   []string
	stops    int
	delay    time.Duration
	err      error
	speaking bool
}

func (m *mockOutput) Speak(ctx context.Context, text string) error {
	m.mu.Lock()
	m.speaking = true
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.mu.Lock()
			m.speaking = false
			m.mu.Unlock()
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaking = false

	if m.err != nil {
		return m.err
	}
	m.spoken = append(m.spoken, text)
	return nil
}

func (m *mockOutput) Speaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

func (m *mockOutput) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *mockOutput) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.spoken))
	copy(out, m.spoken)
	return out
}

func (m *mockOutput) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestScheduler_FIFOOrder(t *testing.T) {
	out := &mockOutput{}
	s := NewScheduler(out, DefaultSchedulerConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Enqueue(nav.Event{Kind: nav.EventRouteStart, Text: "one"})
	s.Enqueue(nav.Event{Kind: nav.EventStepAdvance, Text: "two"})
	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "three"})

	waitFor(t, func() bool { return len(out.Spoken()) == 3 })

	spoken := out.Spoken()
	want := []string{"one", "two", "three"}
	for i, w := range want {
		if spoken[i] != w {
			t.Errorf("spoken[%d] = %q, want %q", i, spoken[i], w)
		}
	}
}

func TestScheduler_NoOverlap(t *testing.T) {
	// Slow playback: the dispatch loop must wait for each utterance to
	// complete before starting the next, so at no instant are two playing.
	out := &mockOutput{delay: 20 * time.Millisecond}
	s := NewScheduler(out, DefaultSchedulerConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	start := time.Now()
	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "a"})
	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "b"})

	waitFor(t, func() bool { return len(out.Spoken()) == 2 })

	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("two 20ms utterances finished in %v, playback overlapped", elapsed)
	}
}

func TestScheduler_UrgentBypassesQueue(t *testing.T) {
	out := &mockOutput{delay: 10 * time.Millisecond}
	s := NewScheduler(out, DefaultSchedulerConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// Fill the queue, then fire an arrival: the queued status events are
	// discarded and the arrival interrupts playback.
	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "status 1"})
	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "status 2"})
	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "status 3"})
	s.Enqueue(nav.Event{Kind: nav.EventArrival, Text: "arrived"})

	waitFor(t, func() bool {
		for _, text := range out.Spoken() {
			if text == "arrived" {
				return true
			}
		}
		return false
	})

	if out.Stops() == 0 {
		t.Error("urgent event should stop the in-flight utterance")
	}

	spoken := out.Spoken()
	for _, text := range spoken[:len(spoken)-1] {
		if text == "status 3" {
			t.Error("queued status should have been drained by the urgent event")
		}
	}
}

func TestScheduler_ErrorEventIsUrgent(t *testing.T) {
	if !(nav.Event{Kind: nav.EventError}).Urgent() {
		t.Error("error events must bypass the queue")
	}
	if (nav.Event{Kind: nav.EventStatus}).Urgent() {
		t.Error("status events must not bypass the queue")
	}
}

func TestScheduler_SpeakErrorDropsEvent(t *testing.T) {
	out := &mockOutput{err: errors.New("device busy")}
	s := NewScheduler(out, DefaultSchedulerConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "doomed"})

	waitFor(t, func() bool { return s.GetStats().SpeakErrors == 1 })

	if got := s.GetStats().Dispatched; got != 0 {
		t.Errorf("dispatched = %d, want 0", got)
	}
}

func TestScheduler_CancelAll(t *testing.T) {
	out := &mockOutput{delay: 50 * time.Millisecond}
	s := NewScheduler(out, DefaultSchedulerConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "a"})
	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "b"})
	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "c"})

	time.Sleep(10 * time.Millisecond)
	s.CancelAll()

	if out.Stops() == 0 {
		t.Error("CancelAll should stop the in-flight utterance")
	}

	stats := s.GetStats()
	if stats.Pending != 0 {
		t.Errorf("pending = %d after CancelAll, want 0", stats.Pending)
	}
}

func TestScheduler_QueueFullDrops(t *testing.T) {
	out := &mockOutput{delay: time.Second}
	s := NewScheduler(out, SchedulerConfig{QueueSize: 1}, nil)

	// No Run loop: the queue fills immediately
	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "kept"})
	s.Enqueue(nav.Event{Kind: nav.EventStatus, Text: "dropped"})

	if got := s.GetStats().Dropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestLogOutput(t *testing.T) {
	out := NewLogOutput(nil)

	if err := out.Speak(context.Background(), "hello"); err != nil {
		t.Errorf("Speak() error = %v", err)
	}
	if out.Speaking() {
		t.Error("log output never reports speaking")
	}
}
