package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Client sends requests for the prober.
type Client interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	Stats() Stats
}

// Stats holds aggregate request statistics.
type Stats struct {
	Requests int64
	Total    time.Duration
	Average  time.Duration
}

// ClientOptions configures a DefaultClient.
type ClientOptions struct {
	Timeout            time.Duration
	ProxyURL           string // http, https or socks5
	FollowRedirects    bool
	InsecureSkipVerify bool
	RandomUserAgent    bool
	MaxRPS             float64 // 0 = unlimited

	// MaxBodyBytes caps how much of a response body is read. 0 = 8 MiB.
	MaxBodyBytes int64
}

const defaultMaxBody = 8 << 20

// DefaultClient is the net/http backed Client.
type DefaultClient struct {
	http    *http.Client
	opts    ClientOptions
	limiter *rate.Limiter

	mu       sync.Mutex
	requests int64
	total    time.Duration
}

// NewClient creates a DefaultClient.
func NewClient(opts ClientOptions) (*DefaultClient, error) {
	tr := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 16,
	}
	if opts.ProxyURL != "" {
		u, err := parseProxy(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		tr.Proxy = http.ProxyURL(u)
	}

	hc := &http.Client{Transport: tr, Timeout: opts.Timeout}
	if !opts.FollowRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}

	c := &DefaultClient{http: hc, opts: opts}
	if opts.MaxRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}
	return c, nil
}

func parseProxy(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL %q: missing scheme or host", raw)
	}
	return u, nil
}

// Do sends req after waiting on the rate limiter.
func (c *DefaultClient) Do(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	limiter := c.limiter
	c.mu.Unlock()
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	hreq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	hc := c.http
	if req.Timeout > 0 && req.Timeout != hc.Timeout {
		cc := *hc
		cc.Timeout = req.Timeout
		hc = &cc
	}

	start := time.Now()
	hresp, err := hc.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(hresp.Body, c.opts.MaxBodyBytes))
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	c.mu.Lock()
	c.requests++
	c.total += elapsed
	c.mu.Unlock()

	return &Response{
		StatusCode: hresp.StatusCode,
		Headers:    hresp.Header,
		Body:       body,
		Duration:   elapsed,
		URL:        hresp.Request.URL.String(),
	}, nil
}

func (c *DefaultClient) build(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if req.ContentType != "" {
		hreq.Header.Set("Content-Type", req.ContentType)
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}
	for name, value := range req.Cookies {
		hreq.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if c.opts.RandomUserAgent && hreq.Header.Get("User-Agent") == "" {
		hreq.Header.Set("User-Agent", RandomUserAgent())
	}
	return hreq, nil
}

// SetRateLimit changes the request rate. 0 or less disables limiting.
func (c *DefaultClient) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// Stats returns aggregate request statistics.
func (c *DefaultClient) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Requests: c.requests, Total: c.total}
	if c.requests > 0 {
		s.Average = c.total / time.Duration(c.requests)
	}
	return s
}
