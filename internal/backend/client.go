// Package backend implements the HTTP clients for the three services the
// pipeline consumes: the live message feed, the fallback moderation
// endpoint, and the flag store. The pipeline exposes no network surface of
// its own; these are its only outbound calls.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bloomlabs/moderationd/internal/chat"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultFallbackRPS   = 2
	defaultFallbackBurst = 4

	// DefaultFlagReason is applied when a flag is submitted without one.
	DefaultFlagReason = "User flagged"
)

// Config configures the backend client.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	// Paths are resolved under BaseURL + "/api".
	BaseURL string

	// Timeout applies to every request. Default: 10s.
	Timeout time.Duration

	// FallbackRPS bounds how often the fallback moderation endpoint is hit,
	// so a failing endpoint is not hammered once per message per poll.
	// Default: 2 req/s, burst 4.
	FallbackRPS   float64
	FallbackBurst int
}

// Client talks to the backend services.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.FallbackRPS
	if rps <= 0 {
		rps = defaultFallbackRPS
	}
	burst := cfg.FallbackBurst
	if burst <= 0 {
		burst = defaultFallbackBurst
	}

	return &Client{
		baseURL:    cfg.BaseURL + "/api",
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger,
	}, nil
}

// LiveMessages fetches the most recent messages, newest first. Each message
// optionally carries a pre-computed verdict; absence means "not yet
// analyzed".
func (c *Client) LiveMessages(ctx context.Context, limit int) ([]chat.Message, error) {
	return c.listMessages(ctx, "/live", limit)
}

// FlaggedMessages fetches previously flagged messages, used to seed queue
// derivation.
func (c *Client) FlaggedMessages(ctx context.Context, limit int) ([]chat.Message, error) {
	return c.listMessages(ctx, "/flagged", limit)
}

func (c *Client) listMessages(ctx context.Context, path string, limit int) ([]chat.Message, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status code %d", path, resp.StatusCode)
	}

	var messages []chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return messages, nil
}

// SubmitFlag flags a message for moderation review. An empty reason is
// replaced with DefaultFlagReason.
func (c *Client) SubmitFlag(ctx context.Context, messageID, reason string) error {
	if reason == "" {
		reason = DefaultFlagReason
	}

	var out flagResponse
	if err := c.postJSON(ctx, "/flag", flagRequest{MessageID: messageID, Reason: reason}, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("flag rejected: %s", out.Message)
	}
	return nil
}

// Moderate issues the fallback moderation request and maps the result onto
// the pipeline's verdict vocabulary: a recommended DELETE_MESSAGE maps to
// Delete, any non-"OK" content category maps to a flag (warning-class), and
// everything else is an approval.
func (c *Client) Moderate(ctx context.Context, msg chat.Message) (chat.Verdict, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return chat.Verdict{}, fmt.Errorf("rate limiter: %w", err)
	}

	reqBody := ModerateRequest{
		Message:    msg.Text,
		MessageID:  msg.MessageID,
		PlayerID:   msg.PlayerID,
		PlayerName: msg.PlayerName,
	}

	var out moderateResponse
	if err := c.postJSON(ctx, "/moderate", reqBody, &out); err != nil {
		return chat.Verdict{}, err
	}

	state := out.ModerationState
	if ra := state.RecommendedAction; ra != nil && ra.Action == string(chat.ActionDeleteMessage) {
		reason := ra.Reason
		if reason == "" {
			reason = "PII detected"
		}
		return chat.Verdict{Action: chat.ActionDeleteMessage, Reason: reason}, nil
	}
	if cr := state.ContentResult; cr != nil && cr.MainCategory != "" && cr.MainCategory != "OK" {
		return chat.Verdict{
			Action: chat.ActionWarning,
			Reason: fmt.Sprintf("Content violation (%s)", cr.MainCategory),
		}, nil
	}
	return chat.Verdict{Action: chat.ActionApprove, Reason: "OK"}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("backend request",
		zap.String("method", http.MethodPost), zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("POST %s: unexpected status code %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
