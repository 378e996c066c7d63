// Package leoapi is the HTTP client for the LEO help-bot backend: chat,
// navigation intent and guides, feedback and system status.
package leoapi

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

	"golang.org/x/sync/singleflight"

	"leo-chat/internal/domain"
)

const (
	DefaultBaseURL = "http://localhost:8000/api/v1"
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// ErrMalformedResponse is wrapped by every decode failure of a 2xx response.
var ErrMalformedResponse = errors.New("leoapi: malformed response")

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("leoapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// EnvelopeError is returned when a navigation endpoint answers 2xx with
// success=false.
type EnvelopeError struct {
	Endpoint string
	Message  string
}

func (e *EnvelopeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("leoapi: %s reported failure", e.Endpoint)
	}
	return fmt.Sprintf("leoapi: %s reported failure: %s", e.Endpoint, e.Message)
}

// Client talks to one backend base URL. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	status singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient validates baseURL (empty means DefaultBaseURL) and applies opts.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("leoapi: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("leoapi: base url %q must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("leoapi: base url %q has no host", baseURL)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

// Chat posts a question and returns the generated answer with its sources.
// An empty answer is reported as ErrMalformedResponse.
func (c *Client) Chat(ctx context.Context, in domain.ChatRequest) (domain.ChatReply, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return domain.ChatReply{}, errors.New("leoapi: chat query must not be empty")
	}
	var out chatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat", nil, chatRequest{
		Query:     query,
		SessionID: in.SessionID,
		Language:  in.Language,
	}, &out); err != nil {
		return domain.ChatReply{}, err
	}
	if strings.TrimSpace(out.Response) == "" {
		return domain.ChatReply{}, fmt.Errorf("%w: empty chat response", ErrMalformedResponse)
	}
	return out.toDomain(), nil
}

// ClassifyIntent asks the backend whether query is a navigation request.
func (c *Client) ClassifyIntent(ctx context.Context, query string) (domain.Intent, error) {
	var data intentData
	if err := c.doEnvelope(ctx, http.MethodGet, "/navigation/intent", url.Values{"query": {query}}, nil, &data); err != nil {
		return domain.Intent{}, err
	}
	return domain.Intent{
		Query:      data.Query,
		Intent:     data.Intent,
		Confidence: clamp01(data.Confidence),
	}, nil
}

// NavigationGuide requests a step-by-step guide for query. userID is the
// widget session id.
func (c *Client) NavigationGuide(ctx context.Context, query, userID string) (domain.NavigationGuide, error) {
	var data guideData
	if err := c.doEnvelope(ctx, http.MethodPost, "/navigation/guide", nil, guideRequest{Query: query, UserID: userID}, &data); err != nil {
		return domain.NavigationGuide{}, err
	}
	return data.toDomain(), nil
}

// SubmitFeedback sends a single rating record.
func (c *Client) SubmitFeedback(ctx context.Context, rec domain.FeedbackRecord) (domain.FeedbackAck, error) {
	feedbackType := rec.Type
	if feedbackType == "" {
		feedbackType = domain.FeedbackResponseRating
	}
	var comment *string
	if trimmed := strings.TrimSpace(rec.Comment); trimmed != "" {
		comment = &trimmed
	}
	var out feedbackResponse
	if err := c.doJSON(ctx, http.MethodPost, "/feedback/submit", nil, feedbackRequest{
		SessionID:    rec.SessionID,
		MessageID:    rec.MessageID,
		FeedbackType: string(feedbackType),
		Rating:       rec.Rating,
		Comment:      comment,
		UserQuery:    rec.UserQuery,
		BotResponse:  rec.BotResponse,
		Language:     rec.Language,
	}, &out); err != nil {
		return domain.FeedbackAck{}, err
	}
	return domain.FeedbackAck{FeedbackID: out.FeedbackID, Message: out.Message}, nil
}

// SystemStatus fetches /status. Concurrent callers share one request; the
// context of the caller that started it governs that request.
func (c *Client) SystemStatus(ctx context.Context) (domain.SystemStatus, error) {
	v, err, shared := c.status.Do("status", func() (any, error) {
		var out statusResponse
		if err := c.doJSON(ctx, http.MethodGet, "/status", nil, nil, &out); err != nil {
			return nil, err
		}
		return out.toDomain(), nil
	})
	if err != nil {
		return domain.SystemStatus{}, err
	}
	if shared {
		c.logger.Debug("status request shared")
	}
	return v.(domain.SystemStatus), nil
}

func (c *Client) doEnvelope(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var env envelope
	if err := c.doJSON(ctx, method, path, query, in, &env); err != nil {
		return err
	}
	if !env.Success {
		return &EnvelopeError{Endpoint: path, Message: env.Error}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: %s returned no data", ErrMalformedResponse, path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode %s data: %v", ErrMalformedResponse, path, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.endpoint(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("leoapi: marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("leoapi: create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	raw, err := c.do(req, target)
	if err != nil {
		c.logger.Warn("leoapi request failed", "method", method, "path", path, "err", err)
		return fmt.Errorf("leoapi: %s %s request failed: %w", method, path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrMalformedResponse, path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, target string) ([]byte, error) {
	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        target,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
