package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"strmsync/internal/config"
	"strmsync/internal/progress"
)

const userAgent = "strmsync/0.1.0"

// Service defines the notification surface used by the pipeline.
type Service interface {
	NotifyRunCompleted(ctx context.Context, stats progress.RunStats) error
	NotifyRunFailed(ctx context.Context, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, stats progress.RunStats) error {
	total := stats.Total()
	duration := stats.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Playlist sync finished in %s\n", duration)
	fmt.Fprintf(&b, "Created: %d, up to date: %d, failed: %d\n", total.Created, total.UpToDate, total.Failed)
	fmt.Fprintf(&b, "Allowed: %d, excluded: %d policy / %d errors\n", total.Allowed, total.ExcludedPolicy, total.ExcludedError)
	fmt.Fprintf(&b, "Owned locally: %d, orphans removed: %d", total.Owned, stats.OrphansRemoved)

	title := "strmsync - Sync Complete"
	tags := []string{"strmsync", "sync", "completed"}
	priority := ""
	if total.Failed > 0 || total.ExcludedError > 0 || stats.CacheDegraded {
		title = "strmsync - Sync Complete (with errors)"
		tags = append(tags, "warning")
	}
	if stats.DryRun {
		title += " [dry run]"
		priority = "low"
	}
	return n.send(ctx, payload{title: title, message: b.String(), tags: tags, priority: priority})
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, err error) error {
	var builder strings.Builder
	builder.WriteString("Sync failed: ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "strmsync - Error",
		message:  builder.String(),
		tags:     []string{"strmsync", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "strmsync - Test",
		message:  "Notification system test",
		tags:     []string{"strmsync", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, progress.RunStats) error { return nil }
func (noopService) NotifyRunFailed(context.Context, error) error                { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
