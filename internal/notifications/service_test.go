package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"strmsync/internal/catalog"
	"strmsync/internal/config"
	"strmsync/internal/notifications"
	"strmsync/internal/progress"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		got.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, got
}

func newService(url string) notifications.Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	cfg.Notifications.RequestTimeout = 5
	return notifications.NewService(&cfg)
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyRunFailed(context.Background(), errors.New("boom")); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNotifyRunCompleted(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK)
	stats := progress.NewRunStats("run", false)
	stats.Update(catalog.CategoryMovie, func(c *progress.CategoryStats) {
		c.Created = 3
		c.Allowed = 3
		c.ExcludedPolicy = 2
	})
	stats.OrphansRemoved = 1

	if err := newService(server.URL).NotifyRunCompleted(context.Background(), stats); err != nil {
		t.Fatalf("NotifyRunCompleted returned error: %v", err)
	}
	if got.title != "strmsync - Sync Complete" {
		t.Fatalf("unexpected title %q", got.title)
	}
	if got.tags != "strmsync,sync,completed" {
		t.Fatalf("unexpected tags %q", got.tags)
	}
	for _, want := range []string{"Created: 3", "excluded: 2 policy / 0 errors", "orphans removed: 1"} {
		if !strings.Contains(got.body, want) {
			t.Fatalf("expected %q in body %q", want, got.body)
		}
	}
}

func TestNotifyRunCompletedWithErrors(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK)
	stats := progress.NewRunStats("run", true)
	stats.Update(catalog.CategoryTV, func(c *progress.CategoryStats) { c.ExcludedError = 1 })

	if err := newService(server.URL).NotifyRunCompleted(context.Background(), stats); err != nil {
		t.Fatalf("NotifyRunCompleted returned error: %v", err)
	}
	if got.title != "strmsync - Sync Complete (with errors) [dry run]" || got.priority != "low" {
		t.Fatalf("unexpected headers title=%q priority=%q", got.title, got.priority)
	}
}

func TestNotifyRunFailed(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK)
	if err := newService(server.URL).NotifyRunFailed(context.Background(), errors.New("cache locked")); err != nil {
		t.Fatalf("NotifyRunFailed returned error: %v", err)
	}
	if got.priority != "high" || got.body != "Sync failed: cache locked" {
		t.Fatalf("unexpected failure payload: %+v", got)
	}
}

func TestSendReportsHTTPErrors(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusForbidden)
	err := newService(server.URL).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
