package httpclient

import (
	"context"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/log"
	"github.com/franklinbaldo/baliza/pkg/metrics"
	"github.com/franklinbaldo/baliza/pkg/pncp"
	"github.com/franklinbaldo/baliza/pkg/types"
	"golang.org/x/net/http2"
)

// Options configures the Client's transport, rate limiter, and retry
// policy. Field names mirror the external interfaces contract's HTTP
// Client option set.
type Options struct {
	BaseURL                string
	MaxConnectionsTotal    int
	MaxConnectionsPerHost  int
	MaxKeepAlive           int
	KeepAliveExpiry        time.Duration
	ConnectTimeout         time.Duration
	ReadTimeout            time.Duration
	HTTP2Enabled           bool
	InitialRPS             float64
	MaxRPS                 float64
	MinRPS                 float64
	MaxAttempts            int
	CircuitCoolOff         time.Duration
}

// DefaultOptions returns sane defaults for every field Options doesn't
// require the caller to set explicitly.
func DefaultOptions(baseURL string, maxRPS, minRPS float64, readTimeout time.Duration) Options {
	return Options{
		BaseURL:               baseURL,
		MaxConnectionsTotal:   100,
		MaxConnectionsPerHost: 10,
		MaxKeepAlive:          10,
		KeepAliveExpiry:       90 * time.Second,
		ConnectTimeout:        10 * time.Second,
		ReadTimeout:           readTimeout,
		HTTP2Enabled:          true,
		InitialRPS:            minRPS,
		MaxRPS:                maxRPS,
		MinRPS:                minRPS,
		MaxAttempts:           5,
		CircuitCoolOff:        30 * time.Second,
	}
}

// Client is the CEE's HTTP/2-capable, rate-limited, circuit-breaker-
// protected fetcher. One Client is shared by every Discoverer and
// Executor worker.
type Client struct {
	opts     Options
	http     *http.Client
	limiter  *AdaptiveLimiter
	breakers *BreakerRegistry
}

// New builds a Client with a tuned http.Transport (HTTP/2, per-host
// connection pool), an adaptive rate limiter, and a per-endpoint circuit
// breaker registry.
func New(opts Options) (*Client, error) {
	transport := &http.Transport{
		MaxConnsPerHost:     opts.MaxConnectionsPerHost,
		MaxIdleConns:        opts.MaxConnectionsTotal,
		MaxIdleConnsPerHost: opts.MaxKeepAlive,
		IdleConnTimeout:     opts.KeepAliveExpiry,
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
	}
	if opts.HTTP2Enabled {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, errz.ConfigError("httpclient.New", "configure http2: %v", err)
		}
	}

	return &Client{
		opts: opts,
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.ReadTimeout,
		},
		limiter:  NewAdaptiveLimiter(opts.InitialRPS, opts.MinRPS, opts.MaxRPS),
		breakers: NewBreakerRegistry(opts.CircuitCoolOff),
	}, nil
}

// CurrentRPS exposes the limiter's current rate, for status reporting.
func (c *Client) CurrentRPS() float64 {
	return c.limiter.CurrentRPS()
}

// Fetch retrieves one (endpoint, date bucket, page) response, applying
// the rate limiter, circuit breaker, and retry-with-jitter policy. It
// never returns a Go error: every outcome, including a fatally failed
// fetch, is captured in the returned FetchResult for the Writer to
// persist, per the spec's "errors are still logged" contract.
func (c *Client) Fetch(ctx context.Context, taskID string, ep *types.Endpoint, dataDate time.Time, page int, modality *int, runID string) *types.FetchResult {
	logger := log.WithEndpoint(ep.Name)

	result := &types.FetchResult{
		TaskID:       taskID,
		EndpointName: ep.Name,
		DataDate:     dataDate,
		Modality:     modality,
		Page:         page,
		PageSize:     ep.PageSize,
		RunID:        runID,
	}

	rawURL, err := pncp.BuildURL(c.opts.BaseURL, ep, dataDate, page, modality)
	if err != nil {
		result.Err = err
		return result
	}
	result.URL = rawURL

	breaker := c.breakers.For(ep.Name)
	if err := breaker.Allow(); err != nil {
		result.Err = err
		metrics.RequestsTotal.WithLabelValues(ep.Name, "circuit_open").Inc()
		return result
	}

	var lastErr error
	delay := 200 * time.Millisecond
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.Err = errz.Cancelled("httpclient.Fetch")
			return result
		}

		if err := c.limiter.Limiter().Wait(ctx); err != nil {
			result.Err = errz.Cancelled("httpclient.Fetch")
			return result
		}

		timer := metrics.NewTimer()
		status, headers, body, reqErr := c.doOnce(ctx, rawURL)
		elapsed := timer.Duration()

		if reqErr != nil {
			lastErr = errz.TransientHTTPError("httpclient.Fetch", reqErr)
			c.limiter.ReportFailure()
			breaker.ReportFailure()
			metrics.RequestsTotal.WithLabelValues(ep.Name, "error").Inc()
			logger.Warn().Err(reqErr).Int("attempt", attempt).Msg("request failed, retrying")
			if !sleepBackoff(ctx, &delay) {
				result.Err = errz.Cancelled("httpclient.Fetch")
				return result
			}
			continue
		}

		result.StatusCode = status
		result.Headers = headers
		result.Elapsed = elapsed

		if retryable(status) {
			lastErr = errz.TransientHTTPError("httpclient.Fetch", httpStatusError(status))
			cooled := c.limiter.ReportFailure()
			breaker.ReportFailure()
			metrics.RequestsTotal.WithLabelValues(ep.Name, "retryable").Inc()
			if cooled {
				time.Sleep(coolOffDuration())
			}
			if !sleepBackoff(ctx, &delay) {
				result.Err = errz.Cancelled("httpclient.Fetch")
				return result
			}
			continue
		}

		if status >= 400 {
			c.limiter.ReportSuccess() // not a rate-limiting problem
			breaker.ReportSuccess()
			result.Err = errz.PermanentHTTPError("httpclient.Fetch", status)
			metrics.RequestsTotal.WithLabelValues(ep.Name, "permanent_error").Inc()
			return result
		}

		c.limiter.ReportSuccess()
		breaker.ReportSuccess()
		metrics.RequestDuration.WithLabelValues(ep.Name).Observe(elapsed.Seconds())
		metrics.RequestsTotal.WithLabelValues(ep.Name, "success").Inc()

		if status == http.StatusNoContent || len(body) == 0 {
			result.TotalPages = intPtr(0)
			return result
		}

		result.Body = body
		env, parseErr := pncp.ParseEnvelope(body)
		if parseErr != nil {
			result.Err = parseErr
			return result
		}
		result.TotalRecords = intPtr(env.TotalRegistros)
		result.TotalPages = intPtr(env.TotalPaginas)
		return result
	}

	result.Err = errz.TransientHTTPError("httpclient.Fetch", lastErr)
	return result
}

func (c *Client) doOnce(ctx context.Context, rawURL string) (status int, headers map[string]string, body []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, nil, err
	}

	h := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		h[k] = resp.Header.Get(k)
	}
	return resp.StatusCode, h, b, nil
}

// retryable reports whether status warrants another attempt: 429 or any
// 5xx. Other 4xx codes are permanent.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// sleepBackoff sleeps for delay plus jitter (or returns false on
// cancellation), then doubles delay for the next attempt.
func sleepBackoff(ctx context.Context, delay *time.Duration) bool {
	jitter := time.Duration(rand.Int63n(int64(*delay) / 2))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*delay + jitter):
		*delay *= 2
		return true
	}
}

func intPtr(v int) *int { return &v }

type httpStatusErr struct{ status int }

func (e httpStatusErr) Error() string { return http.StatusText(e.status) }

func httpStatusError(status int) error { return httpStatusErr{status: status} }
