package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/goccy/go-json"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const userAgent = "gorgias-tap"

// Config holds everything a Client needs; zero values fall back to defaults.
type Config struct {
	BaseURL     string
	Username    string
	APIKey      string
	AccessToken string

	PageSize          int
	MaxPages          int
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxRetryBackoff   time.Duration
	RequestTimeout    time.Duration
	MaxConnections    int
	RequestsPerSecond float64

	// optional, mostly for tests
	HTTPClient *http.Client
}

// Client is the only way the tap talks to the API. It is built once per run
// and shared by every paginator.
type Client struct {
	config  Config
	baseURL *url.URL
	http    *http.Client
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// Response is one decoded API response.
type Response struct {
	URL    string
	Status int
	Header http.Header
	Body   any
}

func NewClient(config Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", config.BaseURL)
	}

	if config.PageSize <= 0 {
		config.PageSize = constants.DefaultPageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = constants.DefaultMaxPages
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = constants.DefaultRetryBackoff
	}
	if config.MaxRetryBackoff <= 0 {
		config.MaxRetryBackoff = constants.DefaultMaxRetryBackoff
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = constants.DefaultRequestTimeout
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = constants.DefaultThreadCount
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		config:  config,
		baseURL: base,
		http:    httpClient,
		sem:     semaphore.NewWeighted(int64(config.MaxConnections)),
		limiter: rate.NewLimiter(limit, config.MaxConnections),
	}, nil
}

func (c *Client) PageSize() int {
	return c.config.PageSize
}

func (c *Client) MaxPages() int {
	return c.config.MaxPages
}

// Resolve turns a path (or an absolute next-page URL) plus params into a request URL.
func (c *Client) Resolve(path string, params url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %s", path, err)
	}
	target := c.baseURL.ResolveReference(ref)
	if !ref.IsAbs() && !strings.HasPrefix(path, "/") {
		target = c.baseURL.JoinPath(ref.Path)
		target.RawQuery = ref.RawQuery
	}

	if len(params) > 0 {
		query := target.Query()
		for key, values := range params {
			query[key] = values
		}
		target.RawQuery = query.Encode()
	}
	return target.String(), nil
}

// attemptError is a failed attempt worth retrying.
type attemptError struct {
	status     int
	retryAfter time.Duration
	err        error
}

func (e *attemptError) Error() string {
	return e.err.Error()
}

// retryAfterBackOff stretches the next delay to honour a Retry-After header.
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	delay := b.BackOff.NextBackOff()
	if delay == backoff.Stop {
		return delay
	}
	if b.next > delay {
		delay = b.next
	}
	b.next = 0
	return delay
}

// Get performs one logical fetch. Network errors, timeouts, 429 and 5xx responses
// are retried with exponential backoff up to MaxRetries times; any other 4xx fails at once.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	target, err := c.Resolve(path, params)
	if err != nil {
		return nil, &types.FetchError{URL: path, Err: err}
	}

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = c.config.RetryBackoff
	exponential.MaxInterval = c.config.MaxRetryBackoff
	exponential.MaxElapsedTime = 0
	exponential.Reset()
	policy := &retryAfterBackOff{BackOff: backoff.WithMaxRetries(exponential, uint64(c.config.MaxRetries))}

	var response *Response
	var last *attemptError
	attempt := 0
	operation := func() error {
		attempt++
		resp, err := c.do(ctx, target)
		if err == nil {
			response = resp
			return nil
		}
		var retryable *attemptError
		if errors.As(err, &retryable) {
			last = retryable
			policy.next = min(retryable.retryAfter, c.config.MaxRetryBackoff)
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warnf("retry attempt[%d] for %s, retrying after %.2f seconds due to err: %s", attempt, target, wait.Seconds(), err)
	}

	err = backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if err == nil {
		return response, nil
	}

	var fetchErr *types.FetchError
	if errors.As(err, &fetchErr) {
		return nil, fetchErr
	}
	if ctx.Err() != nil {
		return nil, &types.FetchError{URL: target, Err: ctx.Err()}
	}
	if last != nil {
		return nil, &types.FetchError{URL: target, Status: last.status, Transient: true, Err: fmt.Errorf("giving up after %d attempts: %w", attempt, last.err)}
	}
	return nil, &types.FetchError{URL: target, Err: err}
}

func (c *Client) do(ctx context.Context, target string) (*Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, &types.FetchError{URL: target, Err: err}
	}
	defer c.sem.Release(1)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &types.FetchError{URL: target, Err: err}
	}

	// timeout applies per attempt
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &types.FetchError{URL: target, Err: err}
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &types.FetchError{URL: target, Err: ctx.Err()}
		}
		return nil, &attemptError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &types.FetchError{URL: target, Err: ctx.Err()}
		}
		return nil, &attemptError{status: resp.StatusCode, err: fmt.Errorf("failed to read body: %s", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, &attemptError{
			status:     resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			err:        fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body)),
		}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &types.FetchError{URL: target, Status: resp.StatusCode, Err: fmt.Errorf("%s", truncate(body))}
	}

	var decoded any
	if len(bytes.TrimSpace(body)) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		if err := decoder.Decode(&decoded); err != nil {
			return nil, &types.FetchError{URL: target, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %s", err)}
		}
	}

	return &Response{URL: target, Status: resp.StatusCode, Header: resp.Header, Body: decoded}, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.config.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
		return
	}
	if c.config.Username != "" || c.config.APIKey != "" {
		req.SetBasicAuth(c.config.Username, c.config.APIKey)
	}
}

// parseRetryAfter supports both delta seconds and HTTP dates.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
