package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"qcsync/internal/config"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.127 Safari/537.36"

// defaultMaxRetries is the number of retries after the first attempt for
// network-level failures (5 attempts total).
const defaultMaxRetries = 4

// Notifier pushes human-directed messages about API failures. The notify
// package provides the production implementation.
type Notifier interface {
	Info(ctx context.Context, msg string)
	Warn(ctx context.Context, msg string)
}

// nopNotifier is used when no notifier is configured.
type nopNotifier struct{}

func (nopNotifier) Info(context.Context, string) {}
func (nopNotifier) Warn(context.Context, string) {}

// Client issues requests against the data API. It attaches the fixed header
// set (api-key, content type, user agent), retries network-level failures and
// classifies HTTP-level failures into operator-facing warnings. HTTP-level
// failures are never returned as errors: callers inspect the status code.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	uuid       string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	notifier   Notifier
	backoff    time.Duration
}

// New creates a data API client from the given configuration.
func New(cfg config.APIConfig, logger *slog.Logger, notifier Notifier) (*Client, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.UUID == "" {
		return nil, fmt.Errorf("api uuid is required")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 5
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.Key,
		uuid:       cfg.UUID,
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger.With(slog.String("component", "client")),
		notifier:   notifier,
		backoff:    200 * time.Millisecond,
	}, nil
}

// requestOptions configures a single request.
type requestOptions struct {
	query    url.Values
	noExpiry bool
}

// RequestOption customizes a request issued by Do.
type RequestOption func(*requestOptions)

// WithQuery attaches query parameters to the request.
func WithQuery(query url.Values) RequestOption {
	return func(o *requestOptions) { o.query = query }
}

// WithoutTimeout disables the per-request deadline. Used for bulk downloads
// where the streamed body is read for longer than the API timeout.
func WithoutTimeout() RequestOption {
	return func(o *requestOptions) { o.noExpiry = true }
}

// Do issues a request with the fixed header set. Network-level failures are
// retried up to 5 attempts before surfacing. Non-2xx responses are classified
// and logged, then returned to the caller for inspection; the response body
// is left open.
func (c *Client) Do(ctx context.Context, method, rawURL string, opts ...RequestOption) (*http.Response, error) {
	var options requestOptions
	for _, opt := range opts {
		opt(&options)
	}

	if options.query != nil {
		joined, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid request url: %w", err)
		}
		q := joined.Query()
		for key, values := range options.query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		joined.RawQuery = q.Encode()
		rawURL = joined.String()
	}

	var resp *http.Response
	var cancel context.CancelFunc
	err := retry.Do(ctx, retry.WithMaxRetries(defaultMaxRetries, retry.NewConstant(c.backoff)), func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		// Each attempt gets its own deadline; a timed-out attempt must not
		// consume the budget of the retries after it.
		reqCtx := ctx
		attemptCancel := context.CancelFunc(func() {})
		if !options.noExpiry && c.timeout > 0 {
			reqCtx, attemptCancel = context.WithTimeout(ctx, c.timeout)
		}

		req, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
		if err != nil {
			attemptCancel()
			return err
		}
		req.Header.Set("api-key", c.apiKey)
		req.Header.Set("content-type", "application/json")
		req.Header.Set("user-agent", userAgent)

		resp, err = c.httpClient.Do(req)
		if err != nil {
			attemptCancel()
			c.logger.Warn("request failed, retrying",
				slog.String("method", method),
				slog.String("url", rawURL),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		cancel = attemptCancel
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, rawURL, err)
	}

	// The deadline must survive until the caller drains the body; tie
	// cancellation to body close.
	resp.Body = &cancelOnClose{body: resp.Body, cancel: cancel}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.classifyFailure(ctx, rawURL, resp.StatusCode)
	}

	return resp, nil
}

// classifyFailure maps an HTTP status to an operator-facing warning.
func (c *Client) classifyFailure(ctx context.Context, rawURL string, status int) {
	var msg string
	switch status {
	case http.StatusNotFound:
		if strings.Contains(rawURL, "upyun") {
			msg = "数据链接不存在"
		} else {
			msg = "请求参数错误"
		}
	case http.StatusForbidden:
		msg = "无下载权限，请检查自己的下载次数与api-key"
	case http.StatusUnauthorized:
		msg = "超出当日下载次数"
	case http.StatusBadRequest:
		msg = "下载时间超出限制"
	case http.StatusInternalServerError:
		msg = "服务器内部出现问题，请稍后尝试"
	default:
		msg = "获取数据失败"
	}

	c.logger.Warn("api request rejected",
		slog.Int("status", status),
		slog.String("url", rawURL),
		slog.String("message", msg))
	c.notifier.Warn(ctx, msg)
}

// cancelOnClose releases the request deadline when the body is closed.
type cancelOnClose struct {
	body   io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Read(p []byte) (int, error) { return c.body.Read(p) }

func (c *cancelOnClose) Close() error {
	err := c.body.Close()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return err
}
