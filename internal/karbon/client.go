package karbon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/clearledger/karbonsync/internal/metrics"
)

// maxErrorBodySize bounds how much of an error response body is read back for
// diagnostics.
const maxErrorBodySize = 16 * 1024

// Config holds the transport client configuration. Both credential headers
// are required; Validate rejects a config missing either before any network
// call is made.
type Config struct {
	BaseURL           string
	AccessKey         string
	BearerToken       string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// Validate fails fast on a config that can never authenticate.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AccessKey) == "" || strings.TrimSpace(c.BearerToken) == "" {
		return ErrMissingCredentials
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("karbon: base URL is required")
	}
	return nil
}

// Page is one page of a list response: the decoded items, the opaque cursor
// to the next page (empty when exhausted), and the total count when the
// source reported one.
type Page struct {
	Items      []json.RawMessage
	NextLink   string
	TotalCount *int
}

// envelope matches the source API's list response shape.
type envelope struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
	Count    *int              `json:"@odata.count"`
}

// Client is the low-level HTTP client for the source API. All requests carry
// the two credential headers, run under a fixed timeout, and pass through a
// client-side rate limiter and a circuit breaker so a misbehaving upstream
// cannot stampede the engine.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  zerolog.Logger
}

// NewClient builds a client from a validated config.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:     "karbon-api",
		Interval: time.Minute,
		Timeout:  2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("source API circuit breaker state change")
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: breaker,
		logger:  logger,
	}, nil
}

// FetchPage retrieves one page of the given list endpoint. The endpoint may
// be a resource path ("Contacts") or an absolute next-link URL returned by a
// previous page. HTTP 404 is treated as "no data available": several source
// resources intentionally lack list endpoints.
func (c *Client) FetchPage(ctx context.Context, endpoint string, opts QueryOptions) (*Page, error) {
	requestURL, err := c.buildURL(endpoint, opts)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, requestURL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Page{}, nil
		}
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("karbon: failed to decode list response: %w", err)
	}

	return &Page{Items: env.Value, NextLink: env.NextLink, TotalCount: env.Count}, nil
}

// GetResource fetches the full current representation of a single resource
// by its external key. This is the resolution path for webhook events, whose
// payloads carry only a pointer to the resource.
func (c *Client) GetResource(ctx context.Context, endpoint, key string, opts QueryOptions) (json.RawMessage, error) {
	requestURL, err := c.buildURL(endpoint+"/"+url.PathEscape(key), opts)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, requestURL)
}

func (c *Client) buildURL(endpoint string, opts QueryOptions) (string, error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		// Opaque next-link cursor; the source already encoded the query.
		return endpoint, nil
	}

	base, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("karbon: invalid request URL: %w", err)
	}
	base.RawQuery = opts.Encode().Encode()
	return base.String(), nil
}

func (c *Client) get(ctx context.Context, requestURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("karbon: rate limiter wait: %w", err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if reqErr != nil {
			return nil, fmt.Errorf("karbon: failed to build request: %w", reqErr)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
		req.Header.Set("AccessKey", c.cfg.AccessKey)
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	})
	if err != nil {
		metrics.SourceRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("karbon: request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.SourceRequests.WithLabelValues(statusClass(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("karbon: failed to read response body: %w", readErr)
		}
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(readErrorBody(resp.Body))}
	}
}

func readErrorBody(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}
