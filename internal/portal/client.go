package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/portal-notify/internal/model"
)

// TokenSource supplies the bearer token for each request. An empty token
// sends the request unauthenticated.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource with a fixed value.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// Client is a thin HTTP client for the portal REST API.
// It attaches the session's bearer token, maps 401 to AuthError and
// retries 429/5xx responses with exponential backoff.
type Client struct {
	baseURL     string
	tokens      TokenSource
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
	log         zerolog.Logger
}

// NewClient creates a portal client rooted at cfg.BaseURL
// (e.g. http://localhost:8080/api).
func NewClient(cfg model.APIConfig, tokens TokenSource, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries:  cfg.MaxRetries,
		backoffBase: time.Second,
		log:         log.With().Str("component", "portal").Logger(),
	}
}

// HasToken reports whether requests will carry a bearer token.
func (c *Client) HasToken() bool {
	return c.tokens.Token() != ""
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) patch(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodPatch, path, nil, nil)
}

// do builds the request, handles auth, retries with backoff and JSON
// (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body any,
	result any,
) error {
	endpoint := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var (
		lastErr   error
		serverAsk time.Duration
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			if serverAsk > 0 {
				wait = serverAsk
			}
			c.log.Debug().
				Str("method", method).
				Str("path", path).
				Int("attempt", attempt).
				Dur("wait", wait).
				Err(lastErr).
				Msg("retrying request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("executing request %s %s: %w", method, path, err)
			serverAsk = 0
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &AuthError{Method: method, Path: path}
		}

		if retryable(resp.StatusCode) {
			lastErr = &HTTPError{
				StatusCode: resp.StatusCode,
				Method:     method,
				Path:       path,
				Body:       string(respBody),
			}
			serverAsk, _ = retryAfter(resp)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &HTTPError{
				StatusCode: resp.StatusCode,
				Method:     method,
				Path:       path,
				Body:       string(respBody),
			}
		}

		// No content to parse (e.g. 204 or an empty 200).
		if result == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf(
				"unmarshaling response from %s %s: %w",
				method, path, err,
			)
		}

		return nil
	}

	return fmt.Errorf(
		"max retries (%d) exceeded: %w", c.maxRetries, lastErr,
	)
}

// backoff returns 1x, 2x, 4x ... the base delay, capped at 30s.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffBase * time.Duration(1<<uint(attempt))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
