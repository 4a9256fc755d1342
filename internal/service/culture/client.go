package culture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/narravox/narravox/backend/internal/retry"
)

const serviceName = "culture"

var (
	// ErrUnauthorized means the API key was rejected under both auth schemes.
	ErrUnauthorized = errors.New("cultural api rejected credentials")
	// ErrUnavailable means the API could not be reached within the retry budget.
	ErrUnavailable = errors.New("cultural api unavailable")
	// ErrDisabled is returned when no API key was configured.
	ErrDisabled = errors.New("cultural api not configured")
	// ErrNoEntities is returned when there is nothing to look up.
	ErrNoEntities = errors.New("no entities provided")
)

// Observer receives one record per logical API call.
type Observer interface {
	ObserveUpstream(service, outcome string, attempts int, elapsed time.Duration)
}

// Config describes how to reach the cultural-affinity API.
type Config struct {
	APIKey  string
	BaseURL string
	Policy  retry.Policy
	// HTTPClient defaults to a client with Policy.AttemptTimeout as its timeout.
	HTTPClient *http.Client
}

// Client talks to the Qloo Insights and entity search endpoints.
type Client struct {
	apiKey   string
	baseURL  string
	policy   retry.Policy
	http     *http.Client
	log      zerolog.Logger
	observer Observer
}

// NewClient builds a client. An empty API key yields a client whose calls fail with ErrDisabled.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Policy.AttemptTimeout}
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		policy:  cfg.Policy,
		http:    httpClient,
		log:     log,
	}
}

// WithObserver attaches a metrics observer.
func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// get performs one logical GET with retries and returns the response body.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	endpoint := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	started := time.Now()
	var body []byte
	attempts, err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		data, err := c.fetch(ctx, endpoint)
		if err != nil {
			return err
		}
		body = data
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		c.log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Dur("wait", wait).Msg("cultural api call failed, retrying")
	})

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthorized):
		outcome = "unauthorized"
	case retry.IsContextError(err) && ctx.Err() != nil:
		outcome = "cancelled"
		err = fmt.Errorf("cultural api %s: %w", path, err)
	default:
		outcome = "unavailable"
		err = fmt.Errorf("%w: %w", ErrUnavailable, &retry.ExhaustedError{Attempts: attempts, Err: err})
	}
	if c.observer != nil {
		c.observer.ObserveUpstream(serviceName, outcome, attempts, time.Since(started))
	}
	return body, err
}

// fetch sends the request with X-API-Key and replays it once with a bearer token on 401.
func (c *Client) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	resp, err := c.send(ctx, endpoint, func(h http.Header) { h.Set("X-API-Key", c.apiKey) })
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		resp, err = c.send(ctx, endpoint, func(h http.Header) { h.Set("Authorization", "Bearer "+c.apiKey) })
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, retry.Permanent(ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &statusError{Code: resp.StatusCode, Body: truncate(string(data), 200)}
	default:
		return nil, retry.Permanent(&statusError{Code: resp.StatusCode, Body: truncate(string(data), 200)})
	}
}

func (c *Client) send(ctx context.Context, endpoint string, auth func(http.Header)) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	auth(req.Header)
	return c.http.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
