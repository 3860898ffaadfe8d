// Package transport executes outbound indexer requests over net/http.
package transport

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"

	"metasearch/packages/domain"
	"metasearch/packages/metrics"
	"metasearch/packages/request"
)

type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	RateRequests int
	RateWindow   time.Duration
}

// Client is the default request.Executor. Cookies persist in one jar for
// the client's lifetime, which is what keeps login sessions alive between
// the login steps and the search request.
type Client struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	limiter      *HostLimiter
}

var _ request.Executor = (*Client)(nil)

func New(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 << 20
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			Jar:       jar,
		},
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
		limiter:      NewHostLimiter(opts.RateRequests, opts.RateWindow),
	}, nil
}

// Execute returns any HTTP status as a response. Only failures to get a
// response at all are errors.
func (c *Client) Execute(ctx context.Context, req *request.Request) (*request.Response, error) {
	target, err := url.Parse(req.URL)
	if err != nil || target.Host == "" {
		return nil, domain.TransportError(req.Indexer, err, "invalid url %q", req.URL)
	}
	if err := c.limiter.Wait(ctx, target.Host); err != nil {
		return nil, domain.TransportError(req.Indexer, err, "rate limiter")
	}

	var body io.Reader
	if payload := req.Payload(); payload != "" {
		body = strings.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.MethodOrDefault(), req.URL, body)
	if err != nil {
		return nil, domain.TransportError(req.Indexer, err, "build request")
	}
	c.setHeaders(httpReq, req)

	slog.Debug("Executing indexer request", "indexer", req.Indexer, "method", httpReq.Method, "url", req.URL)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.TransportRequests.WithLabelValues("error").Inc()
		return nil, domain.TransportError(req.Indexer, err, "%s %s", httpReq.Method, req.URL)
	}
	metrics.TransportRequests.WithLabelValues(metrics.StatusClass(resp.StatusCode)).Inc()

	data, err := c.readBody(resp)
	if err != nil {
		return nil, domain.TransportError(req.Indexer, err, "read response from %s", req.URL)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &request.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       data,
		URL:        finalURL,
	}, nil
}

func (c *Client) setHeaders(httpReq *http.Request, req *request.Request) {
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	switch req.Kind {
	case request.BodyForm:
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	case request.BodyJSON:
		httpReq.Header.Set("Content-Type", "application/json")
	case request.BodyRaw:
		httpReq.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	for k, vs := range req.Headers {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", c.maxBodyBytes)
	}
	return body, nil
}
