// Package fetch implements the safe-fetch primitive used by the poller,
// resolver and backfill crawler: bounded-size, per-call-timeout HTTP GETs
// with failure classification into reason codes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"actorwatch/internal/domain"
)

type Config struct {
	Timeout      time.Duration // upper bound; callers pass min(this, remaining budget)
	MaxBodyBytes int64
	MaxRedirects int
	UserAgent    string
}

type Client struct {
	httpClient   *http.Client
	maxBodyBytes int64
	userAgent    string
	logger       *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 4 << 20
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ActorWatch/1.0"
	}
	maxRedirects := cfg.MaxRedirects
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		maxBodyBytes: cfg.MaxBodyBytes,
		userAgent:    cfg.UserAgent,
		logger:       logger,
	}
}

// Get fetches a URL within the given timeout. A completed HTTP exchange
// returns a result without error regardless of status code; the caller
// classifies non-2xx statuses. Transport failures return an error.
func (c *Client) Get(ctx context.Context, rawURL string, timeout time.Duration) (*domain.FetchResult, error) {
	if !strings.HasPrefix(strings.ToLower(rawURL), "http://") &&
		!strings.HasPrefix(strings.ToLower(rawURL), "https://") {
		return nil, fmt.Errorf("unsupported scheme: %s", rawURL)
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml,application/rss+xml,*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	c.logger.Debug("fetched",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	return &domain.FetchResult{
		Status:   resp.StatusCode,
		Body:     body,
		Header:   resp.Header,
		FinalURL: finalURL,
	}, nil
}

// Classify maps a transport error or HTTP status to a reason code.
func Classify(err error, status int) string {
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return domain.ReasonDNSError
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return domain.ReasonTimeout
		}
		return domain.ReasonFetchFailed
	}
	switch {
	case status == http.StatusForbidden:
		return domain.ReasonHTTPForbidden
	case status >= 400:
		return fmt.Sprintf("http_%d", status)
	default:
		return ""
	}
}
