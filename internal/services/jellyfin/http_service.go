package jellyfin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"strmsync/internal/config"
)

const defaultTimeout = 10 * time.Second

// HTTPDoer describes the HTTP client used by the refresher.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Refresher triggers a media server library scan.
type Refresher interface {
	Refresh(ctx context.Context) error
	Enabled() bool
}

type noopRefresher struct{}

func (noopRefresher) Refresh(context.Context) error { return nil }
func (noopRefresher) Enabled() bool                 { return false }

type httpRefresher struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

// NewConfiguredRefresher returns an HTTP refresher when [library_refresh]
// carries both a URL and an API key, and a no-op refresher otherwise.
func NewConfiguredRefresher(cfg *config.Config) Refresher {
	if cfg == nil {
		return noopRefresher{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.LibraryRefresh.URL), "/")
	apiKey := strings.TrimSpace(cfg.LibraryRefresh.APIKey)
	if baseURL == "" || apiKey == "" {
		return noopRefresher{}
	}
	return NewHTTPRefresher(baseURL, apiKey, &http.Client{Timeout: defaultTimeout})
}

// NewHTTPRefresher constructs an HTTP-backed refresher.
func NewHTTPRefresher(baseURL, apiKey string, client HTTPDoer) Refresher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &httpRefresher{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}
}

func (s *httpRefresher) Enabled() bool {
	return s != nil && s.baseURL != "" && s.apiKey != ""
}

func (s *httpRefresher) Refresh(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	refreshURL := fmt.Sprintf("%s/Library/Refresh", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, nil)
	if err != nil {
		return fmt.Errorf("build library refresh request: %w", err)
	}
	req.Header.Set("X-Emby-Token", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh library: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("library refresh returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
