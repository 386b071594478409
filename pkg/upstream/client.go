package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/metrics"
)

const (
	endpointCategories = "/categorias"
	endpointProducts   = "/produtos"
	endpointFuel       = "/combustiveis"
)

// Ordering selects how the upstream sorts results.
type Ordering int

const (
	OrderByPrice    Ordering = 0
	OrderByDistance Ordering = 1
)

// ErrUpstream wraps every failure to obtain a payload after all retries.
var ErrUpstream = errors.New("upstream: request failed")

// RequestError carries the diagnostics of an exhausted retry sequence.
// Status is the last HTTP status seen, 0 when the failure never reached the
// HTTP layer.
type RequestError struct {
	Endpoint string
	Status   int
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("upstream: %s failed after %d attempts (last status %d): %v",
		e.Endpoint, e.Attempts, e.Status, e.Err)
}

func (e *RequestError) Unwrap() error { return ErrUpstream }

// Config tunes the client. Zero values fall back to the documented contract:
// 30s per attempt, 2 retries, 1s base backoff.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Client fetches price data from the public API. Every blocking call takes a
// context; the per-attempt timeout comes from the underlying http.Client.
type Client struct {
	baseURL    string
	http       *http.Client
	maxRetries int
	backoff    time.Duration
	metrics    *metrics.Metrics
	log        logger.Logger
}

// NewClient builds a client against cfg. metrics may be nil.
func NewClient(cfg Config, m *metrics.Metrics, log logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		http:       &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		metrics:    m,
		log:        log,
	}
}

// ProductQuery selects product offers around a spatial key.
type ProductQuery struct {
	Geohash  string
	Term     string
	Category string
	RadiusKM int
	Ordering Ordering
}

// FuelQuery selects fuel station prices around a spatial key. Kind is the
// upstream fuel type code (1 to 4).
type FuelQuery struct {
	Geohash  string
	Kind     int
	RadiusKM int
	Ordering Ordering
}

// Categories fetches the category listing matching a term, together with the
// product offers the upstream returns alongside it.
func (c *Client) Categories(ctx context.Context, q ProductQuery) (*Payload, error) {
	return c.get(ctx, endpointCategories, productParams(q))
}

// Products fetches product offers.
func (c *Client) Products(ctx context.Context, q ProductQuery) (*Payload, error) {
	return c.get(ctx, endpointProducts, productParams(q))
}

// Fuel fetches fuel station prices.
func (c *Client) Fuel(ctx context.Context, q FuelQuery) (*Payload, error) {
	params := url.Values{}
	params.Set("local", q.Geohash)
	params.Set("tipo", strconv.Itoa(q.Kind))
	params.Set("raio", strconv.Itoa(q.RadiusKM))
	params.Set("ordem", strconv.Itoa(int(q.Ordering)))
	return c.get(ctx, endpointFuel, params)
}

func productParams(q ProductQuery) url.Values {
	params := url.Values{}
	params.Set("local", q.Geohash)
	if q.Term != "" {
		params.Set("termo", q.Term)
	}
	if q.Category != "" {
		params.Set("categoria", q.Category)
	}
	params.Set("raio", strconv.Itoa(q.RadiusKM))
	params.Set("ordem", strconv.Itoa(int(q.Ordering)))
	return params
}

// get runs the retry loop around one endpoint. An empty result list on a 2xx
// response is a valid answer and is never retried; only transport errors,
// timeouts, non-2xx statuses and undecodable bodies count as failures.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*Payload, error) {
	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			c.log.Warn("retrying upstream request",
				"endpoint", endpoint, "attempt", attempt+1, "delay", delay.String(), "error", lastErr)
			c.metrics.RecordUpstreamRetry()
			select {
			case <-ctx.Done():
				return nil, &RequestError{Endpoint: endpoint, Status: lastStatus, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		start := time.Now()
		payload, status, err := c.do(ctx, endpoint, params)
		c.metrics.RecordUpstreamRequest(endpoint, err == nil, time.Since(start))
		if err == nil {
			return payload, nil
		}
		lastErr, lastStatus = err, status
	}
	return nil, &RequestError{
		Endpoint: endpoint,
		Status:   lastStatus,
		Attempts: c.maxRetries + 1,
		Err:      lastErr,
	}
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values) (*Payload, int, error) {
	reqURL := c.baseURL + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode body: %w", err)
	}
	return &payload, resp.StatusCode, nil
}
