// Package sources implements the rating providers: JSON APIs (OMDb, TMDB,
// CinemaScore) and scraped pages (Rotten Tomatoes, Letterboxd).
package sources

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

	"github.com/PuerkitoBio/goquery"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBodyBytes     = 4 << 20
)

// Option configures a source.
type Option func(*httpConfig)

type httpConfig struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *httpConfig) {
		if client != nil {
			c.client = client
		}
	}
}

// WithBaseURL points the source at a different endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *httpConfig) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpConfig) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

func newHTTPConfig(baseURL string, opts []Option) httpConfig {
	cfg := httpConfig{
		client:    &http.Client{Timeout: defaultTimeout},
		baseURL:   baseURL,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// get performs a GET and maps non-200 statuses and transport failures onto
// classified fetch errors. The caller closes the body.
func (c httpConfig) get(ctx context.Context, provider, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.Permanent(provider, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redact(urlErr.URL)
		}
		return nil, domain.ClassifyError(provider, fmt.Errorf("request %s (latency=%v): %w", redact(endpoint), time.Since(started), err))
	}
	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		return nil, domain.StatusError(provider, resp.StatusCode, retryAfter)
	}
	return resp, nil
}

func (c httpConfig) getJSON(ctx context.Context, provider, endpoint string, dst any) error {
	resp, err := c.get(ctx, provider, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		return &domain.ParseError{Provider: provider, Detail: "decode json", Err: err}
	}
	return nil
}

func (c httpConfig) getDocument(ctx context.Context, provider, endpoint string) (*goquery.Document, error) {
	resp, err := c.get(ctx, provider, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.ParseError{Provider: provider, Detail: "parse document", Err: err}
	}
	return doc, nil
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

// redact drops query parameters so API keys never reach logs.
func redact(endpoint string) string {
	if idx := strings.IndexByte(endpoint, '?'); idx >= 0 {
		return endpoint[:idx]
	}
	return endpoint
}

// parseYear reads the leading four-digit year of values like "2024",
// "2024-03-01" or "2019–2020". Zero means unknown.
func parseYear(value string) int {
	value = strings.TrimSpace(value)
	if len(value) < 4 {
		return 0
	}
	year, err := strconv.Atoi(value[:4])
	if err != nil || year < 1870 {
		return 0
	}
	return year
}

func parseDate(value string) time.Time {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func intPtr(v int) *int {
	return &v
}
