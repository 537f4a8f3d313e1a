package controlplane

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
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBackendURL = "http://localhost:4003"
	DefaultTimeout    = 10 * time.Second

	secretHeader = "X-Worker-Secret"
)

// ErrConfigUnavailable is returned for every failed config fetch. Callers
// cannot tell a network failure from a rejected or malformed response.
var ErrConfigUnavailable = errors.New("agent config unavailable")

// Client talks to the control plane. It keeps no state between calls.
type Client struct {
	backendURL string
	secret     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(backendURL, secret string, opts ...ClientOption) *Client {
	if backendURL == "" {
		backendURL = DefaultBackendURL
	}

	c := &Client{
		backendURL: strings.TrimRight(backendURL, "/"),
		secret:     secret,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchConfig retrieves the decrypted configuration of an agent. It makes a
// single attempt.
func (c *Client) FetchConfig(ctx context.Context, agentID string) (AgentConfig, error) {
	ctx, span := tracer.Start(ctx, "fetch agent config", trace.WithAttributes(attribute.String("agent.id", agentID)))
	defer span.End()

	config, err := c.fetchConfig(ctx, agentID)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.ErrorContext(ctx, "failed to fetch agent config", "agent_id", agentID, "error", err)
		return AgentConfig{}, err
	}

	return config, nil
}

func (c *Client) fetchConfig(ctx context.Context, agentID string) (AgentConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.do(ctx, http.MethodGet, "/internal/agents/"+url.PathEscape(agentID)+"/config")
	if err != nil {
		return AgentConfig{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return AgentConfig{}, fmt.Errorf("error unmarshalling response body: %w", err)
	}
	if len(fields) == 0 {
		return AgentConfig{}, fmt.Errorf("empty agent config")
	}

	var config AgentConfig
	if err := json.Unmarshal(body, &config); err != nil {
		return AgentConfig{}, fmt.Errorf("error unmarshalling agent config: %w", err)
	}
	// The session is identified by name in logs before assembly starts.
	if strings.TrimSpace(config.Name) == "" {
		return AgentConfig{}, fmt.Errorf("%w: name", ErrMissingConfigKey)
	}
	return config, nil
}

// NotifySessionEnd marks the session as ended. Failures are logged and
// swallowed so they never hold up teardown.
func (c *Client) NotifySessionEnd(ctx context.Context, sessionID string) {
	ctx, span := tracer.Start(ctx, "notify session end", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.do(ctx, http.MethodPatch, "/api/sessions/"+url.PathEscape(sessionID)+"/end"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.WarnContext(ctx, "failed to end session in backend", "session_id", sessionID, "error", err)
		return
	}

	c.logger.InfoContext(ctx, "session marked as ended in backend", "session_id", sessionID)
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.backendURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set(secretHeader, c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("non-2xx HTTP status: %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return body, nil
}
