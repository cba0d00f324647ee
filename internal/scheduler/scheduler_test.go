package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobmatch/internal/worker"
)

// --- Fakes ---

type callLog struct {
	mu    sync.Mutex
	order []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.order = append(l.order, s)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

type fakeIngestor struct {
	log *callLog
	err error
}

func (f *fakeIngestor) Ingest(context.Context) (int, error) {
	f.log.add("ingest")
	return 0, f.err
}

type fakeRunner struct {
	log *callLog
	err error
}

func (f *fakeRunner) ProcessQueue(context.Context) (worker.RunStats, error) {
	f.log.add("process")
	return worker.RunStats{}, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func at(hour int) time.Time {
	return time.Date(2026, 3, 2, hour, 15, 0, 0, time.Local)
}

// --- Tests ---

func TestWindowContains(t *testing.T) {
	tests := []struct {
		name   string
		window Window
		hour   int
		want   bool
	}{
		{"start inclusive", Window{7, 17}, 7, true},
		{"inside", Window{7, 17}, 12, true},
		{"end exclusive", Window{7, 17}, 17, false},
		{"before", Window{7, 17}, 6, false},
		{"equal bounds always open", Window{0, 0}, 3, true},
		{"wraps past midnight late", Window{22, 6}, 23, true},
		{"wraps past midnight early", Window{22, 6}, 5, true},
		{"wraps past midnight outside", Window{22, 6}, 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(at(tt.hour)); got != tt.want {
				t.Errorf("Contains(%d) = %v, want %v", tt.hour, got, tt.want)
			}
		})
	}
}

func TestRunOnce_IngestsThenProcesses(t *testing.T) {
	log := &callLog{}
	s := NewScheduler(&fakeIngestor{log: log}, &fakeRunner{log: log}, time.Hour, Window{}, discardLogger())

	s.RunOnce(context.Background())

	got := log.snapshot()
	if len(got) != 2 || got[0] != "ingest" || got[1] != "process" {
		t.Errorf("unexpected order %v", got)
	}
}

func TestRunOnce_ProcessesEvenWhenIngestFails(t *testing.T) {
	log := &callLog{}
	s := NewScheduler(&fakeIngestor{log: log, err: errors.New("boom")}, &fakeRunner{log: log}, time.Hour, Window{}, discardLogger())

	s.RunOnce(context.Background())

	if got := log.snapshot(); len(got) != 2 {
		t.Errorf("expected ingest and process, got %v", got)
	}
}

func TestRunOnce_NilIngestor(t *testing.T) {
	log := &callLog{}
	s := NewScheduler(nil, &fakeRunner{log: log}, time.Hour, Window{}, discardLogger())

	s.RunOnce(context.Background())

	if got := log.snapshot(); len(got) != 1 || got[0] != "process" {
		t.Errorf("expected process only, got %v", got)
	}
}

func TestRun_ImmediateCycleThenTicks(t *testing.T) {
	log := &callLog{}
	s := NewScheduler(nil, &fakeRunner{log: log}, time.Hour, Window{}, discardLogger())

	ticks := make(chan time.Time)
	s.after = func(time.Duration) <-chan time.Time { return ticks }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	ticks <- time.Now()
	ticks <- time.Now()
	waitFor(t, func() bool { return len(log.snapshot()) == 3 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := len(log.snapshot()); got != 3 {
		t.Errorf("expected 3 cycles (immediate + 2 ticks), got %d", got)
	}
}

func TestRun_SkipsOutsideWindow(t *testing.T) {
	log := &callLog{}
	s := NewScheduler(&fakeIngestor{log: log}, &fakeRunner{log: log}, time.Hour, Window{7, 17}, discardLogger())
	s.now = func() time.Time { return at(20) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if got := log.snapshot(); len(got) != 0 {
		t.Errorf("expected no work outside the window, got %v", got)
	}
}

func TestRun_CancelReturnsPromptly(t *testing.T) {
	log := &callLog{}
	s := NewScheduler(nil, &fakeRunner{log: log}, time.Hour, Window{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after cancel")
	}
}
