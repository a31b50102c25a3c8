// Package shopify implements the platform gateway against the Shopify Admin GraphQL API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"b2b-pricing/internal/adapter"
	"b2b-pricing/internal/model"
	"b2b-pricing/internal/transport"
)

// =============================================================================
// SHOPIFY ADMIN API CLIENT
// =============================================================================
//
// Every call is a POST to /admin/api/{version}/graphql.json authenticated with
// the app's offline access token.
//
// Rate limiting happens at two levels:
//   1. A client-side token bucket spaces requests out.
//   2. The API reports its leaky-bucket state in extensions.cost.throttleStatus;
//      when the bucket runs low the client pauses until it has refilled, and
//      THROTTLED errors and 429 responses are retried with backoff.
//
// Staged uploads and bulk result files live on storage hosts outside the
// Admin API and are fetched without the access token.
// =============================================================================

const (
	userAgent = "B2B-Pricing/1.0"

	defaultRPS        = 2
	defaultMaxRetries = 3
	maxBackoff        = 30 * time.Second

	// lowWatermark is the query-cost budget kept in reserve between calls.
	lowWatermark = 100
)

// Config configures a Client.
type Config struct {
	Shop              string // e.g. "acme.myshopify.com"
	AccessToken       string
	APIVersion        string // e.g. "2025-01"
	Field             model.SpecialPriceField
	RequestsPerSecond float64
	Fingerprint       string        // transport fingerprint, see transport.New
	Timeout           time.Duration // per request
	Endpoint          string        // overrides the GraphQL URL (tests)
}

// Client is the Shopify Admin GraphQL client. It implements adapter.Gateway.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	field      model.SpecialPriceField
	limiter    *rate.Limiter
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for one shop.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	field := cfg.Field
	if field == (model.SpecialPriceField{}) {
		field = model.DefaultSpecialPriceField
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", cfg.Shop, cfg.APIVersion)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport.New(cfg.Fingerprint, timeout),
		},
		endpoint:   endpoint,
		token:      cfg.AccessToken,
		field:      field,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		maxRetries: defaultMaxRetries,
		sleep:      sleepContext,
	}
}

var _ adapter.Gateway = (*Client)(nil)

// errRetryable marks a failure worth another attempt.
type errRetryable struct {
	err   error
	after time.Duration
}

func (e *errRetryable) Error() string { return e.err.Error() }
func (e *errRetryable) Unwrap() error { return e.err }

// graphql executes one query with retries and decodes data into out.
func (c *Client) graphql(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt)
			var re *errRetryable
			if errors.As(lastErr, &re) && re.after > 0 {
				wait = re.after
			}
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = c.attempt(ctx, payload, out)
		var re *errRetryable
		if lastErr == nil || !errors.As(lastErr, &re) {
			return lastErr
		}
	}

	var re *errRetryable
	if errors.As(lastErr, &re) {
		if errors.Is(re.err, model.ErrRateLimited) {
			return model.NewRateLimitError("Shopify")
		}
		return re.err
	}
	return lastErr
}

// attempt performs a single HTTP round trip.
func (c *Client) attempt(ctx context.Context, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &errRetryable{err: model.NewUpstreamError("Shopify", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, resp.Header, body)
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		for _, e := range envelope.Errors {
			if e.Extensions.Code == "THROTTLED" {
				return &errRetryable{err: model.ErrRateLimited, after: throttleWait(envelope.Extensions)}
			}
		}
		return model.NewUpstreamError("Shopify", errors.New(joinMessages(envelope.Errors)))
	}

	if wait := throttleWait(envelope.Extensions); wait > 0 {
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("parsing data: %w", err)
		}
	}
	return nil
}

// parseError converts HTTP failures to model.APIError.
func parseError(statusCode int, header http.Header, body []byte) error {
	var envelope struct {
		Errors any `json:"errors"`
	}
	json.Unmarshal(body, &envelope) // Best effort parse
	detail := fmt.Sprint(envelope.Errors)
	if envelope.Errors == nil {
		detail = strings.TrimSpace(string(body))
	}

	switch {
	case statusCode == 401:
		return model.NewUnauthorizedError("Shopify authentication failed")
	case statusCode == 403:
		return model.NewUnauthorizedError("Shopify access denied")
	case statusCode == 404:
		return model.NewNotFoundError("shop")
	case statusCode == 429:
		return &errRetryable{err: model.ErrRateLimited, after: retryAfter(header)}
	case statusCode >= 500:
		return &errRetryable{err: model.NewUpstreamError("Shopify", fmt.Errorf("status %d: %s", statusCode, detail))}
	default:
		return model.NewUpstreamError("Shopify", fmt.Errorf("status %d: %s", statusCode, detail))
	}
}

// throttleWait is how long to pause so the cost bucket is back above lowWatermark.
func throttleWait(ext *extensions) time.Duration {
	if ext == nil || ext.Cost == nil {
		return 0
	}
	ts := ext.Cost.ThrottleStatus
	if ts.RestoreRate <= 0 || ts.CurrentlyAvailable >= lowWatermark {
		return 0
	}
	need := (lowWatermark - ts.CurrentlyAvailable) / ts.RestoreRate
	return min(time.Duration(need*float64(time.Second)), maxBackoff)
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.ParseFloat(h.Get("Retry-After"), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs*float64(time.Second)), maxBackoff)
}

func backoff(attempt int) time.Duration {
	return min(time.Duration(1<<(attempt-1))*time.Second, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func joinMessages(errs []graphQLError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

func toUserErrors(in []userError) []model.UserError {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.UserError, len(in))
	for i, e := range in {
		out[i] = model.UserError{Field: e.Field, Message: e.Message}
	}
	return out
}

// userErrorsErr turns mutation user errors into a single error for calls that
// have no per-item result.
func userErrorsErr(op string, in []userError) error {
	if len(in) == 0 {
		return nil
	}
	msgs := make([]string, len(in))
	for i, e := range in {
		msgs[i] = e.Message
	}
	return model.NewValidationError(op, strings.Join(msgs, "; "))
}
