package moira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alert-autoconf/internal/config"
	"alert-autoconf/internal/logging"
	"alert-autoconf/internal/permanent"
)

// ErrNotFound reports a 404 answer for an entity lookup or delete.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx answer of the Moira API.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

// Error formats status with optional body.
// Params: none.
// Returns: status-only or status+body message.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("moira %s %s status=%d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("moira %s %s status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

// Is matches ErrNotFound for 404 answers.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client talks to the Moira REST API.
// Params: base URL, credentials, headers, retry policy, and HTTP client.
// Returns: backend client used by the reconciler.
type Client struct {
	baseURL   string
	user      string
	password  string
	headers   map[string]string
	userAgent string
	retry     config.RetryConfig
	http      *http.Client
	logger    *slog.Logger
}

// New creates Moira API client.
// Params: backend settings, User-Agent value, and logger.
// Returns: ready client.
func New(cfg config.BackendConfig, userAgent string, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		user:      cfg.User,
		password:  cfg.Password,
		headers:   cfg.Headers,
		userAgent: userAgent,
		retry:     cfg.Retry,
		http:      &http.Client{Timeout: timeout},
		logger:    logging.OrDiscard(logger),
	}
}

// do runs one idempotent API call with retry policy.
// Params: context, method, path, optional query, request payload, and response target.
// Returns: final error after retries; 4xx answers are not retried.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	return c.call(ctx, method, path, query, in, out, anyFailure)
}

// create runs a save that makes a new entity. Only failures to connect are
// retried: once the request reached the backend it may have been committed.
func (c *Client) create(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, http.MethodPut, path, nil, in, out, dialFailed)
}

func anyFailure(error) bool { return true }

// dialFailed reports whether the request never reached the backend.
func dialFailed(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, in, out any, retryable func(error) bool) error {
	var body []byte
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s payload: %w", method, path, err)
		}
		body = encoded
	}

	maxAttempts := c.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := time.Duration(c.retry.InitialMS) * time.Millisecond
	multiplier := c.retry.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	attempt := 0
	for {
		attempt++
		err := c.doOnce(ctx, method, path, query, body, out)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("moira request recovered after retries", "method", method, "path", path, "attempt", attempt)
			}
			return nil
		}
		if permanent.Is(err) || !retryable(err) || attempt >= maxAttempts {
			if attempt > 1 {
				return fmt.Errorf("%s %s failed after %d attempts: %w", method, path, attempt, err)
			}
			return err
		}
		c.logger.Warn("moira request attempt failed", "method", method, "path", path, "attempt", attempt, "error", err.Error())

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return ctx.Err()
		case <-timer.C:
		}
		backoff = time.Duration(float64(backoff) * multiplier)
	}
}

// doOnce sends one HTTP request and decodes JSON answer.
// Params: context, method, path, query, encoded payload, and response target.
// Returns: transport error, permanent-marked 4xx StatusError, or decode error.
func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return permanent.Errorf("build %s %s request: %w", method, path, err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		request.Header.Set("User-Agent", c.userAgent)
	}
	if c.user != "" || c.password != "" {
		request.SetBasicAuth(c.user, c.password)
	}
	for key, value := range c.headers {
		request.Header.Set(key, value)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("moira %s %s: %w", method, path, err)
	}
	defer response.Body.Close()
	c.logger.Debug("moira request", "method", method, "path", path, "status", response.StatusCode)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		statusErr := unexpectedStatusError(method, path, response)
		if response.StatusCode >= 400 && response.StatusCode < 500 {
			return permanent.Mark(statusErr)
		}
		return statusErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s answer: %w", method, path, err)
	}
	return nil
}

// unexpectedStatusError captures non-2xx response with trimmed body.
// Params: request method/path and HTTP response.
// Returns: StatusError.
func unexpectedStatusError(method, path string, response *http.Response) error {
	rawBody, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
	return &StatusError{
		Method: method,
		Path:   path,
		Status: response.StatusCode,
		Body:   strings.TrimSpace(string(rawBody)),
	}
}
