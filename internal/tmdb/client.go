package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"strmsync/internal/config"
)

// Result represents a single TMDB search match.
type Result struct {
	ID               int64    `json:"id"`
	Title            string   `json:"title"`
	Name             string   `json:"name"`
	ReleaseDate      string   `json:"release_date"`
	FirstAirDate     string   `json:"first_air_date"`
	OriginalLanguage string   `json:"original_language"`
	OriginCountry    []string `json:"origin_country"`
	Popularity       float64  `json:"popularity"`
}

// Response models the TMDB paginated search response.
type Response struct {
	Page         int      `json:"page"`
	Results      []Result `json:"results"`
	TotalResults int      `json:"total_results"`
}

// ProductionCountry is one entry of a movie's production_countries list.
type ProductionCountry struct {
	ISO  string `json:"iso_3166_1"`
	Name string `json:"name"`
}

// MovieDetails carries the availability fields of /movie/{id}.
type MovieDetails struct {
	ID                  int64               `json:"id"`
	Title               string              `json:"title"`
	OriginalLanguage    string              `json:"original_language"`
	OriginCountry       []string            `json:"origin_country"`
	ProductionCountries []ProductionCountry `json:"production_countries"`
}

// Query identifies the title to look up.
type Query struct {
	Title string
	Year  int
	TV    bool
}

// Availability is what the filter needs to know about a title.
type Availability struct {
	ID        int64
	Title     string
	Countries []string
	Language  string
}

// Client provides access to the TMDB API.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a TMDB client.
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("tmdb base url required")
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   strings.TrimSpace(language),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NewFromConfig creates a client from the [tmdb] section.
func NewFromConfig(cfg config.TMDB, opts ...Option) (*Client, error) {
	base := []Option{WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)}
	return New(cfg.APIKey, cfg.BaseURL, cfg.Language, append(base, opts...)...)
}

// Lookup resolves a title's countries and original language. A search
// without results reports KindNotFound.
func (c *Client) Lookup(ctx context.Context, q Query) (Availability, error) {
	if q.TV {
		return c.lookupTV(ctx, q)
	}
	return c.lookupMovie(ctx, q)
}

func (c *Client) lookupMovie(ctx context.Context, q Query) (Availability, error) {
	resp, err := c.SearchMovie(ctx, q.Title, q.Year)
	if err != nil {
		return Availability{}, err
	}
	if len(resp.Results) == 0 && q.Year > 0 {
		// Playlist years are often off by one from TMDB's primary release.
		if resp, err = c.SearchMovie(ctx, q.Title, 0); err != nil {
			return Availability{}, err
		}
	}
	if len(resp.Results) == 0 {
		return Availability{}, &LookupError{Kind: KindNotFound, Op: "search movie", Err: fmt.Errorf("no results for %q", q.Title)}
	}
	best := resp.Results[0]
	details, err := c.GetMovieDetails(ctx, best.ID)
	if err != nil {
		return Availability{}, err
	}
	countries := make([]string, 0, len(details.OriginCountry)+len(details.ProductionCountries))
	countries = append(countries, details.OriginCountry...)
	for _, pc := range details.ProductionCountries {
		countries = append(countries, pc.ISO)
	}
	language := details.OriginalLanguage
	if language == "" {
		language = best.OriginalLanguage
	}
	return Availability{
		ID:        best.ID,
		Title:     firstNonEmpty(details.Title, best.Title),
		Countries: normalizeCountries(countries),
		Language:  strings.ToLower(language),
	}, nil
}

func (c *Client) lookupTV(ctx context.Context, q Query) (Availability, error) {
	resp, err := c.SearchTV(ctx, q.Title, 0)
	if err != nil {
		return Availability{}, err
	}
	if len(resp.Results) == 0 {
		return Availability{}, &LookupError{Kind: KindNotFound, Op: "search tv", Err: fmt.Errorf("no results for %q", q.Title)}
	}
	best := resp.Results[0]
	return Availability{
		ID:        best.ID,
		Title:     firstNonEmpty(best.Name, best.Title),
		Countries: normalizeCountries(best.OriginCountry),
		Language:  strings.ToLower(best.OriginalLanguage),
	}, nil
}

// SearchMovie performs a TMDB movie search, filtering by primary release
// year when year is positive.
func (c *Client) SearchMovie(ctx context.Context, query string, year int) (*Response, error) {
	params := url.Values{}
	if year > 0 {
		params.Set("primary_release_year", strconv.Itoa(year))
	}
	return c.search(ctx, "search movie", "/search/movie", query, params)
}

// SearchTV performs a TMDB TV search, filtering by first air year when year
// is positive.
func (c *Client) SearchTV(ctx context.Context, query string, year int) (*Response, error) {
	params := url.Values{}
	if year > 0 {
		params.Set("first_air_date_year", strconv.Itoa(year))
	}
	return c.search(ctx, "search tv", "/search/tv", query, params)
}

func (c *Client) search(ctx context.Context, op, path, query string, params url.Values) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	params.Set("query", query)
	var payload Response
	if err := c.getJSON(ctx, op, path, params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetMovieDetails fetches movie details by TMDB ID.
func (c *Client) GetMovieDetails(ctx context.Context, movieID int64) (*MovieDetails, error) {
	if movieID <= 0 {
		return nil, errors.New("movie id must be positive")
	}
	var payload MovieDetails
	if err := c.getJSON(ctx, "movie details", fmt.Sprintf("/movie/%d", movieID), url.Values{}, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &LookupError{Kind: KindTransient, Op: op, Latency: latency, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &LookupError{
			Kind:       kindForStatus(resp.StatusCode),
			Op:         op,
			StatusCode: resp.StatusCode,
			Latency:    latency,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &LookupError{Kind: KindUnknown, Op: op, Latency: latency, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func normalizeCountries(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
