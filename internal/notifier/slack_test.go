package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/amishk599/jobmatch/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assessment(pct int) model.Assessment {
	return model.Assessment{
		Suitable:           true,
		ResumeImprovements: []string{"Add metrics"},
		MatchPercent:       &pct,
		ChanceCategory:     model.ChanceHigh,
		Summary:            "Strong fit.",
	}
}

func TestSlackNotifier_BelowThreshold(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, DefaultMinMatch, srv.Client(), discardLogger())

	if err := n.Notify(context.Background(), assessment(39), "msg"); err != nil {
		t.Errorf("Notify() = %v, want nil", err)
	}
	if c := calls.Load(); c != 0 {
		t.Errorf("expected 0 HTTP calls, got %d", c)
	}
}

func TestSlackNotifier_AtThreshold(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, DefaultMinMatch, srv.Client(), discardLogger())
	if err := n.Notify(context.Background(), assessment(40), "hello *world*"); err != nil {
		t.Fatalf("Notify() = %v", err)
	}

	var payload slackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Text != "hello *world*" {
		t.Errorf("text = %q", payload.Text)
	}
	if len(payload.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(payload.Blocks))
	}
	if payload.Blocks[0].Type != "header" || payload.Blocks[0].Text.Text != "🎯 40% match" {
		t.Errorf("header = %+v", payload.Blocks[0])
	}
	if payload.Blocks[1].Fields[0].Text != "*Chance:*\n🟢 High" {
		t.Errorf("chance field = %q", payload.Blocks[1].Fields[0].Text)
	}
	if payload.Blocks[3].Type != "divider" {
		t.Errorf("block[3] type = %q, want divider", payload.Blocks[3].Type)
	}
}

func TestSlackNotifier_TruncatesLongMessage(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, 0, srv.Client(), discardLogger())
	if err := n.Notify(context.Background(), assessment(90), strings.Repeat("a", 5000)); err != nil {
		t.Fatalf("Notify() = %v", err)
	}

	var payload slackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !strings.HasSuffix(payload.Text, "…(truncated)") {
		t.Error("expected truncation marker")
	}
	if got := len([]rune(payload.Text)); got != MaxMessageChars+len([]rune(truncatedSuffix)) {
		t.Errorf("text length = %d", got)
	}
	if got := len([]rune(payload.Blocks[2].Text.Text)); got > maxSectionChars {
		t.Errorf("section text length %d exceeds Block Kit limit", got)
	}
}

func TestSlackNotifier_DeliveryFailureSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, 0, srv.Client(), discardLogger())
	if err := n.Notify(context.Background(), assessment(80), "msg"); err != nil {
		t.Errorf("Notify() = %v, want nil on delivery failure", err)
	}
}

func TestSlackNotifier_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, 0, srv.Client(), discardLogger())
	if err := n.Announce(context.Background(), "Queue processing started"); err != nil {
		t.Fatalf("expected nil after retry, got %v", err)
	}
	if c := calls.Load(); c != 2 {
		t.Errorf("expected 2 HTTP calls (initial + retry), got %d", c)
	}
}

func TestSlackNotifier_AnnounceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, 0, srv.Client(), discardLogger())
	if err := n.Announce(context.Background(), "Queue processing started"); err == nil {
		t.Error("expected error from Announce on 403")
	}
}

func TestSlackNotifier_AnnouncePayload(t *testing.T) {
	var payload slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, 0, srv.Client(), discardLogger())
	if err := n.Announce(context.Background(), "Queue processing finished"); err != nil {
		t.Fatalf("Announce() = %v", err)
	}
	if payload.Text != "Queue processing finished" || len(payload.Blocks) != 0 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestSendTestMessage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, DefaultMinMatch, srv.Client(), discardLogger())
	if err := SendTestMessage(context.Background(), n); err != nil {
		t.Fatalf("SendTestMessage() = %v", err)
	}
	if c := calls.Load(); c != 2 {
		t.Errorf("expected announcement and match, got %d calls", c)
	}
}
