// Package rest issues Lavalink REST calls with retry, circuit breaking and
// rate limiting.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/liuran001/sonatica-go/sonatica"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 5 * time.Second
	maxBodySize    = 8 << 20
)

// Observer receives one callback per finished call.
type Observer func(name, method, path string, status int, elapsed time.Duration, err error)

// Options configures a Client.
type Options struct {
	// Name labels logs, metrics and the breaker, usually the node identifier.
	Name     string
	BaseURL  string
	Password string
	Timeout  time.Duration
	// RetryMax bounds retries of idempotent GETs. Negative disables retries.
	RetryMax          int
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            sonatica.Logger
	Observer          Observer
}

// Client talks to one node's REST API.
type Client struct {
	name     string
	baseURL  string
	password string
	timeout  time.Duration
	http     *retryablehttp.Client
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	logger   sonatica.Logger
	observer Observer
}

type retryKey struct{}

// New creates a Client. BaseURL must include the /v4 prefix.
func New(opts Options) *Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	if opts.RetryMax > 0 {
		client.RetryMax = opts.RetryMax
	} else if opts.RetryMax < 0 {
		client.RetryMax = 0
	}
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	client.CheckRetry = checkRetry
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.HTTPClient != nil {
		client.HTTPClient = opts.HTTPClient
	}

	name := opts.Name
	if name == "" {
		name = "lavalink"
	}

	settings := gobreaker.Settings{
		Name:        "rest-" + name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// 4xx answers prove the node is alive.
			status := StatusCode(err)
			return err == nil || (status >= 400 && status < 500)
		},
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		name:     name,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		password: opts.Password,
		timeout:  timeout,
		http:     client,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		limiter:  limiter,
		logger:   opts.Logger,
		observer: opts.Observer,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends body as JSON and decodes the response into out when both are
// non-nil. Each call is bounded by the client timeout including retries.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	start := time.Now()
	status, err := c.do(ctx, method, path, body, out)
	if c.observer != nil {
		c.observer(c.name, method, path, status, time.Since(start), err)
	}
	if err != nil && c.logger != nil {
		c.logger.Debug("rest call failed", "method", method, "path", path, "status", status, "error", err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, &Error{Method: method, Path: path, Err: err}
		}
	}

	var status int
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var err error
		status, err = c.roundTrip(ctx, method, path, body, out)
		return nil, err
	})
	if err == nil {
		return status, nil
	}

	var restErr *Error
	if errors.As(err, &restErr) {
		return status, err
	}
	return status, &Error{Method: method, Path: path, Err: err}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) (int, error) {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, &Error{Method: method, Path: path, Err: fmt.Errorf("encode body: %w", err)}
		}
		payload = raw
	}

	ctx = context.WithValue(ctx, retryKey{}, method == http.MethodGet)

	var rawBody interface{}
	if payload != nil {
		rawBody = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, rawBody)
	if err != nil {
		return 0, &Error{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Authorization", c.password)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// The passthrough handler returns the last response after retries run out.
	resp, err := c.http.Do(req)
	if resp == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return 0, &Error{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, &Error{Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		restErr := &Error{Method: method, Path: path, Status: resp.StatusCode}
		var apiErr protocol.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil {
			restErr.Message = apiErr.Message
			if restErr.Message == "" {
				restErr.Message = apiErr.Error
			}
		}
		return resp.StatusCode, restErr
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, &Error{Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return resp.StatusCode, nil
}

// checkRetry retries only GETs, and never once the call deadline passed.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if retry, _ := ctx.Value(retryKey{}).(bool); !retry {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
