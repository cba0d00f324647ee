package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pct(n int) *int { return &n }

// scriptedComparator returns the scripted result for each call in order and
// repeats the last one when the script runs out.
type scriptedComparator struct {
	calls  int
	script []func() (model.Assessment, error)
}

func (s *scriptedComparator) Compare(_ context.Context, _ model.Posting, _ string) (model.Assessment, error) {
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++
	return s.script[i]()
}

func ok(n int) func() (model.Assessment, error) {
	return func() (model.Assessment, error) {
		return model.Assessment{MatchPercent: pct(n), ChanceCategory: model.ChanceHigh, Summary: "fit"}, nil
	}
}

func fail(err error) func() (model.Assessment, error) {
	return func() (model.Assessment, error) { return model.Assessment{}, err }
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

// newTestComparator returns a RetryComparator whose sleeps are recorded
// instead of slept.
func newTestComparator(inner model.Comparator, ctrl *ratelimit.Controller) (*RetryComparator, *[]time.Duration) {
	rc := NewRetryComparator(inner, ctrl, DefaultComparatorConfig(), nil, discardLogger())
	var slept []time.Duration
	rc.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	rc.jitter = func(lo, _ time.Duration) time.Duration { return lo }
	return rc, &slept
}

func testRecord() model.QueueRecord {
	return model.QueueRecord{ID: "rec-1", URL: "https://x/1", Title: "Engineer", Company: "Acme"}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{model.ErrRateLimited, ClassRateLimited},
		{&model.HTTPError{StatusCode: 429}, ClassRateLimited},
		{&model.HTTPError{StatusCode: 503}, ClassTransient},
		{model.ErrMalformedResponse, ClassTransient},
		{errors.New("connection reset"), ClassTransient},
		{context.DeadlineExceeded, ClassTransient},
		{context.Canceled, ClassCancelled},
	}
	for _, tc := range tests {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestCompareWithRetries_SuccessShortCircuits(t *testing.T) {
	ctrl := ratelimit.NewController()
	inner := &scriptedComparator{script: []func() (model.Assessment, error){ok(72)}}
	rc, slept := newTestComparator(inner, ctrl)

	a := rc.CompareWithRetries(context.Background(), testRecord(), "resume")

	if a.Percent() != 72 {
		t.Errorf("Percent() = %d, want 72", a.Percent())
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("expected no sleeps, got %v", *slept)
	}
}

func TestCompareWithRetries_TransientThenSuccess(t *testing.T) {
	ctrl := ratelimit.NewController()
	inner := &scriptedComparator{script: []func() (model.Assessment, error){
		fail(errors.New("timeout")),
		ok(55),
	}}
	rc, slept := newTestComparator(inner, ctrl)

	a := rc.CompareWithRetries(context.Background(), testRecord(), "resume")

	if a.Percent() != 55 {
		t.Errorf("Percent() = %d, want 55", a.Percent())
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 calls, got %d", inner.calls)
	}
	if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Errorf("expected a single 2s jitter sleep, got %v", *slept)
	}
}

func TestCompareWithRetries_FallbackOnExhaustion(t *testing.T) {
	ctrl := ratelimit.NewController()
	inner := &scriptedComparator{script: []func() (model.Assessment, error){
		fail(model.ErrMalformedResponse),
	}}
	rc, _ := newTestComparator(inner, ctrl)

	a := rc.CompareWithRetries(context.Background(), testRecord(), "resume")

	if !a.IsFallback() {
		t.Errorf("expected fallback assessment, got %+v", a)
	}
	// 1 initial + 2 retries
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestCompareWithRetries_MalformedReturnedImmediately(t *testing.T) {
	ctrl := ratelimit.NewController()
	inner := &scriptedComparator{script: []func() (model.Assessment, error){
		func() (model.Assessment, error) { return model.Assessment{Summary: "no percent"}, nil },
		ok(90),
	}}
	rc, _ := newTestComparator(inner, ctrl)

	a := rc.CompareWithRetries(context.Background(), testRecord(), "resume")

	if a.WellFormed() {
		t.Errorf("expected malformed assessment to be passed through, got %+v", a)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestCompareWithRetries_RateLimitEscalatesController(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	ctrl := ratelimit.NewController(ratelimit.WithClock(clock.Now))
	inner := &scriptedComparator{script: []func() (model.Assessment, error){
		fail(&model.HTTPError{StatusCode: 429}),
		fail(model.ErrRateLimited),
		ok(40),
	}}
	rc, slept := newTestComparator(inner, ctrl)

	a := rc.CompareWithRetries(context.Background(), testRecord(), "resume")

	if a.Percent() != 40 {
		t.Errorf("Percent() = %d, want 40", a.Percent())
	}
	want := []time.Duration{60 * time.Second, 120 * time.Second}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("sleeps = %v, want %v", *slept, want)
	}
	if got := ctrl.Multiplier(); got != 1 {
		t.Errorf("Multiplier() after success = %d, want 1", got)
	}
}

func TestCompareWithRetries_RateLimitedUntilExhausted(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	ctrl := ratelimit.NewController(ratelimit.WithClock(clock.Now))
	inner := &scriptedComparator{script: []func() (model.Assessment, error){
		fail(model.ErrRateLimited),
	}}
	rc, slept := newTestComparator(inner, ctrl)

	a := rc.CompareWithRetries(context.Background(), testRecord(), "resume")

	if !a.IsFallback() {
		t.Errorf("expected fallback, got %+v", a)
	}
	want := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second}
	if len(*slept) != 3 {
		t.Fatalf("sleeps = %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, (*slept)[i], want[i])
		}
	}
	if got := ctrl.Multiplier(); got != 8 {
		t.Errorf("Multiplier() = %d, want 8", got)
	}
}

func TestCompareWithRetries_CancelledContext(t *testing.T) {
	ctrl := ratelimit.NewController()
	inner := &scriptedComparator{script: []func() (model.Assessment, error){ok(80)}}
	rc, _ := newTestComparator(inner, ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := rc.CompareWithRetries(ctx, testRecord(), "resume")
	if !a.IsFallback() {
		t.Errorf("expected fallback on cancelled ctx, got %+v", a)
	}
	if inner.calls != 0 {
		t.Errorf("expected no calls, got %d", inner.calls)
	}
}

func TestCompareWithRetries_SleepInterruptedReturnsFallback(t *testing.T) {
	ctrl := ratelimit.NewController()
	inner := &scriptedComparator{script: []func() (model.Assessment, error){
		fail(model.ErrRateLimited),
	}}
	rc := NewRetryComparator(inner, ctrl, ComparatorConfig{MaxRetries: 2, BaseCooldown: time.Hour}, nil, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	a := rc.CompareWithRetries(ctx, testRecord(), "resume")
	if !a.IsFallback() {
		t.Errorf("expected fallback, got %+v", a)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call before the pause was interrupted, got %d", inner.calls)
	}
}
