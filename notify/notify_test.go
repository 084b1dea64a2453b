package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/kv"
	"github.com/xraph/odoosync/notify"
)

type captureNotifier struct {
	alerts []notify.Alert
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, a notify.Alert) error {
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func TestPolicy_ThresholdAndCooldown(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	n := &captureNotifier{}
	p := notify.NewPolicy(n, kv.NewMemory(),
		notify.WithThreshold(3),
		notify.WithCooldown(time.Hour),
		notify.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	tests := []struct {
		name    string
		advance time.Duration
		res     *odoosync.RunResult
		want    bool
	}{
		{"below threshold", 0, &odoosync.RunResult{Processed: 5, Failed: 2, MaxConsecutiveFailures: 2}, false},
		{"reaches threshold", 0, &odoosync.RunResult{Processed: 5, Failed: 3, MaxConsecutiveFailures: 3}, true},
		{"within cooldown", 30 * time.Minute, &odoosync.RunResult{Processed: 5, Failed: 5, MaxConsecutiveFailures: 5}, false},
		{"skipped run", 2 * time.Hour, &odoosync.RunResult{Skipped: true, MaxConsecutiveFailures: 9}, false},
		{"after cooldown", 0, &odoosync.RunResult{Processed: 4, Failed: 4, MaxConsecutiveFailures: 4}, true},
	}
	for _, tt := range tests {
		now = now.Add(tt.advance)
		sent, err := p.Observe(ctx, tt.res)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if sent != tt.want {
			t.Errorf("%s: sent = %v, want %v", tt.name, sent, tt.want)
		}
	}

	if len(n.alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(n.alerts))
	}
	if a := n.alerts[0]; a.MaxConsecutiveFailures != 3 || a.Threshold != 3 {
		t.Errorf("alert = %+v", a)
	}
}

func TestPolicy_FailedDeliveryDoesNotStartCooldown(t *testing.T) {
	t.Parallel()

	n := &captureNotifier{err: errors.New("smtp down")}
	p := notify.NewPolicy(n, kv.NewMemory(), notify.WithThreshold(1))
	res := &odoosync.RunResult{Processed: 1, Failed: 1, MaxConsecutiveFailures: 1}

	if _, err := p.Observe(context.Background(), res); err == nil {
		t.Fatal("expected delivery error")
	}
	n.err = nil
	sent, err := p.Observe(context.Background(), res)
	if err != nil || !sent {
		t.Errorf("retry after failed delivery: sent=%v err=%v", sent, err)
	}
}

func TestPolicy_SharedCooldown(t *testing.T) {
	t.Parallel()

	store := kv.NewMemory()
	a, b := &captureNotifier{}, &captureNotifier{}
	res := &odoosync.RunResult{MaxConsecutiveFailures: 10}

	_, _ = notify.NewPolicy(a, store).Observe(context.Background(), res)
	_, _ = notify.NewPolicy(b, store).Observe(context.Background(), res)

	if len(a.alerts)+len(b.alerts) != 1 {
		t.Errorf("policies sharing a store sent %d alerts, want 1", len(a.alerts)+len(b.alerts))
	}
}

func TestAlert_Summary(t *testing.T) {
	t.Parallel()
	s := notify.Alert{Processed: 10, Failed: 6, MaxConsecutiveFailures: 5, Threshold: 5}.Summary()
	if !strings.Contains(s, "5 consecutive") || !strings.Contains(s, "6 of 10") {
		t.Errorf("Summary() = %q", s)
	}
}

func TestWebhook_PostsJSON(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := notify.NewWebhook(srv.URL).Notify(context.Background(), notify.Alert{
		Processed: 3, Failed: 3, MaxConsecutiveFailures: 3, Threshold: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got["text"].(string), "3 consecutive") {
		t.Errorf("payload = %v", got)
	}
	if got["max_consecutive_failures"].(float64) != 3 {
		t.Errorf("payload = %v", got)
	}
}

func TestWebhook_BreakerOpensOnRepeatedFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := notify.NewWebhook(srv.URL)
	ctx := context.Background()
	for range 5 {
		if err := wh.Notify(ctx, notify.Alert{}); err == nil {
			t.Fatal("expected error")
		}
	}
	if hits.Load() != 3 {
		t.Errorf("endpoint hit %d times, want 3 before the breaker opened", hits.Load())
	}
	if wh.State() != gobreaker.StateOpen.String() {
		t.Errorf("state = %s", wh.State())
	}
}

func TestMulti(t *testing.T) {
	t.Parallel()
	a := &captureNotifier{}
	b := &captureNotifier{err: errors.New("down")}
	c := &captureNotifier{}

	err := notify.Multi{a, b, c}.Notify(context.Background(), notify.Alert{})
	if err == nil {
		t.Error("expected the failing notifier's error")
	}
	if len(a.alerts) != 1 || len(c.alerts) != 1 {
		t.Error("every notifier should be attempted")
	}
}
