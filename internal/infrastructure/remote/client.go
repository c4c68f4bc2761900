// Package remote implements the attendance.Gateway against the membership
// backend's REST API. Every failure a caller could fix by waiting - network
// errors, timeouts, 5xx - is surfaced as a shared.TransportError so the
// registrar can fall back to the offline queue.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/attendance"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
	"github.com/dojo-hub/dojo-attendance-hub/pkg/circuitbreaker"
	"github.com/dojo-hub/dojo-attendance-hub/pkg/metrics"
	"github.com/dojo-hub/dojo-attendance-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL.
	BaseURL string

	// APIKey authenticates the kiosk. Sent as a bearer token.
	APIKey string

	// TenantID scopes every request to one academy.
	TenantID string

	// Timeout is the per-request timeout. A slow backend must read as
	// offline, not hang the front desk.
	Timeout time.Duration

	// Retry settings. Zero values fall back to the defaults below.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Circuit breaker settings. Zero values fall back to the defaults below.
	BreakerThreshold   int
	BreakerTimeout     time.Duration
	BreakerHalfOpenMax int

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:            baseURL,
		Timeout:            5 * time.Second,
		MaxRetries:         3,
		RetryBaseDelay:     200 * time.Millisecond,
		RetryMaxDelay:      2 * time.Second,
		BreakerThreshold:   3,
		BreakerTimeout:     30 * time.Second,
		BreakerHalfOpenMax: 1,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the membership backend API client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	mapper     *Mapper
}

var _ attendance.Gateway = (*Client)(nil)

// NewClient creates a new backend client.
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay == 0 {
		config.RetryBaseDelay = 200 * time.Millisecond
	}
	if config.RetryMaxDelay == 0 {
		config.RetryMaxDelay = 2 * time.Second
	}
	if config.BreakerThreshold == 0 {
		config.BreakerThreshold = 3
	}
	if config.BreakerTimeout == 0 {
		config.BreakerTimeout = 30 * time.Second
	}
	if config.BreakerHalfOpenMax == 0 {
		config.BreakerHalfOpenMax = 1
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With(slog.String("component", "remote"))

	breaker := circuitbreaker.New(
		"membership-api",
		circuitbreaker.WithFailureThreshold(config.BreakerThreshold),
		circuitbreaker.WithSuccessThreshold(2),
		circuitbreaker.WithTimeout(config.BreakerTimeout),
		circuitbreaker.WithMaxHalfOpenRequests(config.BreakerHalfOpenMax),
		// A typo'd code is a clean answer from the backend, not a failure.
		circuitbreaker.WithIsFailure(shared.IsTransport),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.UpdateRemoteUp(to == circuitbreaker.StateClosed)
		}),
	)

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		retrier: retry.New(
			retry.WithMaxAttempts(config.MaxRetries),
			retry.WithInitialDelay(config.RetryBaseDelay),
			retry.WithMaxDelay(config.RetryMaxDelay),
			retry.WithMultiplier(2.0),
			retry.WithJitter(0.2),
		),
		breaker:    breaker,
		mapper:     NewMapper(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GATEWAY OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FindMemberByCode resolves a kiosk code to exactly one member.
func (c *Client) FindMemberByCode(ctx context.Context, code member.MemberCode) (*member.Member, error) {
	endpoint := "/api/v1/members?code=" + url.QueryEscape(code.String())

	body, err := c.do(ctx, "find_member", http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp memberSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("remote: decode member search: %w", err)
	}

	switch len(resp.Members) {
	case 0:
		return nil, shared.ErrMemberNotFound
	case 1:
		return c.mapper.ToMember(resp.Members[0]), nil
	default:
		c.logger.Error("member code is not unique",
			slog.String("code", code.String()),
			slog.Int("matches", len(resp.Members)))
		return nil, shared.ErrAmbiguousCode
	}
}

// ListCheckIns returns the member's check-in records at or after since.
func (c *Client) ListCheckIns(ctx context.Context, memberID string, since time.Time) ([]attendance.CheckIn, error) {
	endpoint := "/api/v1/members/" + url.PathEscape(memberID) + "/check-ins"
	if !since.IsZero() {
		endpoint += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	body, err := c.do(ctx, "list_check_ins", http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp checkInListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("remote: decode check-in list: %w", err)
	}

	records := make([]attendance.CheckIn, 0, len(resp.CheckIns))
	for _, dto := range resp.CheckIns {
		records = append(records, c.mapper.ToCheckIn(dto))
	}
	return records, nil
}

// InsertCheckIn appends one attendance record.
func (c *Client) InsertCheckIn(ctx context.Context, rec attendance.CheckIn) error {
	payload, err := json.Marshal(c.mapper.FromCheckIn(rec))
	if err != nil {
		return fmt.Errorf("remote: encode check-in: %w", err)
	}

	_, err = c.do(ctx, "insert_check_in", http.MethodPost, "/api/v1/check-ins", payload)
	return err
}

// UpdateMember applies a partial update to a member.
func (c *Client) UpdateMember(ctx context.Context, memberID string, patch attendance.MemberPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	payload, err := json.Marshal(c.mapper.FromPatch(patch))
	if err != nil {
		return fmt.Errorf("remote: encode patch: %w", err)
	}

	endpoint := "/api/v1/members/" + url.PathEscape(memberID)
	_, err = c.do(ctx, "update_member", http.MethodPatch, endpoint, payload)
	return err
}

// Healthy reports whether the backend is currently reachable. It bypasses
// retries: the connectivity watcher wants an immediate answer.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpdateRemoteUp(false)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	up := resp.StatusCode == http.StatusOK
	metrics.UpdateRemoteUp(up)
	return up
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// do runs one logical API call through the circuit breaker and the retrier,
// returning the response body on 2xx.
func (c *Client) do(ctx context.Context, operation, method, endpoint string, payload []byte) ([]byte, error) {
	start := time.Now()

	var body []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			var attemptErr error
			body, attemptErr = c.attempt(ctx, method, endpoint, payload)
			return attemptErr
		})
	})

	metrics.RecordRemoteRequestLatency(operation, float64(time.Since(start).Milliseconds()))

	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return nil, shared.Transport(operation, err)
		}
		if shared.IsTransport(err) {
			c.logger.Warn("backend unreachable",
				slog.String("operation", operation),
				slog.String("error", err.Error()))
			return nil, err
		}
		return nil, err
	}

	return body, nil
}

// attempt performs a single HTTP round trip and classifies the outcome.
func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reader)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("remote: build request: %w", err))
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network error or timeout: retryable, and transport if retries
		// run out.
		return nil, retry.Retryable(shared.Transport(method+" "+endpoint, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Retryable(shared.Transport(method+" "+endpoint, err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(shared.ErrMemberNotFound)
	case resp.StatusCode == http.StatusConflict:
		// Replaying an already-applied mutation. Treat as success so the
		// coordinator removes the queue entry.
		return body, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, retry.Retryable(shared.Transport(
			method+" "+endpoint,
			fmt.Errorf("status %d: %s", resp.StatusCode, apiErrorMessage(body))))
	default:
		return nil, retry.Permanent(fmt.Errorf("remote: %s %s: status %d: %s",
			method, endpoint, resp.StatusCode, apiErrorMessage(body)))
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.TenantID != "" {
		req.Header.Set("X-Tenant-ID", c.config.TenantID)
	}
}

func apiErrorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
