// Package onyx wraps the Onyx metadata service API for analysis
// submission and retrieval.
package onyx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Onyx operations used by this application.
type Client interface {
	// CreateAnalysis submits a new analysis under project. When test is
	// true the service exercises the write path without persisting and
	// returns an empty document.
	CreateAnalysis(ctx context.Context, project string, fields map[string]any, test bool) (map[string]any, error)

	// GetAnalysis fetches an existing analysis by identifier.
	GetAnalysis(ctx context.Context, project, analysisID string) (map[string]any, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate limit (5 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	domain  string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Onyx API client for the given domain and access
// token. Credentials are checked on use, not on construction: a missing
// domain or token surfaces as a ConfigError from the first call.
func NewClient(domain, token string, opts ...Option) Client {
	c := &httpClient{
		domain: domain,
		token:  token,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(5, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// baseURL normalizes the configured domain into a request base.
func (c *httpClient) baseURL() string {
	base := strings.TrimRight(c.domain, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return base
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) CreateAnalysis(ctx context.Context, project string, fields map[string]any, test bool) (map[string]any, error) {
	if project == "" {
		return nil, &ClientError{Reason: "create analysis requires a project"}
	}

	url := c.baseURL() + "/projects/" + project + "/analysis/"
	if test {
		url += "test/"
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, eris.Wrap(err, "onyx: marshal analysis fields")
	}

	return c.do(ctx, http.MethodPost, url, bytes.NewReader(body))
}

func (c *httpClient) GetAnalysis(ctx context.Context, project, analysisID string) (map[string]any, error) {
	if project == "" {
		return nil, &ClientError{Reason: "get analysis requires a project"}
	}
	if analysisID == "" {
		return nil, &ClientError{Reason: "get analysis requires an analysis id"}
	}

	url := c.baseURL() + "/projects/" + project + "/analysis/" + analysisID + "/"

	return c.do(ctx, http.MethodGet, url, nil)
}

// checkConfig validates the client credentials before a request is built.
func (c *httpClient) checkConfig() error {
	if c.domain == "" {
		return &ConfigError{Reason: "domain is not set"}
	}
	if c.token == "" {
		return &ConfigError{Reason: "token is not set"}
	}
	return nil
}

// do performs one request against the service. The connection is scoped to
// the call and released on every exit path.
func (c *httpClient) do(ctx context.Context, method, url string, body io.Reader) (map[string]any, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "onyx: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, eris.Wrap(err, "onyx: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode}
		// Best effort: the service reports errors as a JSON document.
		_ = json.Unmarshal(respBody, &httpErr.Body)
		return nil, httpErr
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, eris.Wrap(err, "onyx: unmarshal response")
	}
	if envelope.Data == nil {
		envelope.Data = map[string]any{}
	}

	return envelope.Data, nil
}
