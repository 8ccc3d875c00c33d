// Package redmine is a read-only client for the Redmine REST API.
package redmine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// DefaultPageSize matches the largest page Redmine serves without admin tuning.
const DefaultPageSize = 50

// Defaults for the per request timeout and the time spent retrying one request.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultRetryMaxTime = 30 * time.Second
)

// Client provides HTTP access to a Redmine instance.
type Client struct {
	URL      string
	PageSize int

	// NewBackOff returns the retry policy for transient failures.
	NewBackOff func() backoff.BackOff

	http *resty.Client
}

// NewClient creates a client authenticating with an API key.
func NewClient(baseURL, apiKey string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(DefaultTimeout)
	if apiKey != "" {
		http.SetHeader("X-Redmine-API-Key", apiKey)
	}
	return &Client{
		URL:        baseURL,
		PageSize:   DefaultPageSize,
		NewBackOff: defaultBackOff,
		http:       http,
	}
}

func defaultBackOff() backoff.BackOff {
	return exponentialBackOff(DefaultRetryMaxTime)
}

func exponentialBackOff(maxElapsed time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	return bo
}

// SetTimeouts bounds a single request and the total time spent retrying it.
// A zero value keeps the current setting.
func (c *Client) SetTimeouts(request, retries time.Duration) {
	if request > 0 {
		c.http.SetTimeout(request)
	}
	if retries > 0 {
		c.NewBackOff = func() backoff.BackOff { return exponentialBackOff(retries) }
	}
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

// Endpoint returns the absolute URL of an API path.
func (c *Client) Endpoint(path string) string {
	return c.URL + "/" + strings.TrimPrefix(path, "/")
}

// Get fetches a single JSON document and decodes it into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, err := c.getJSON(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &RemoteFetchError{Endpoint: path, Reason: "malformed response", Err: err}
	}
	return nil
}

// Open streams the content at location, which may be absolute (attachment
// content URLs) or relative to the base URL. The caller closes the reader.
func (c *Client) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := c.retry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(location)
		if err != nil {
			return c.transportError(ctx, location, err)
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			resp.RawBody().Close()
			return statusError(location, resp.StatusCode(), resp.Status())
		}
		body = resp.RawBody()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var body []byte
	err := c.retry(ctx, func() error {
		req := c.http.R().SetContext(ctx)
		if len(query) > 0 {
			req.SetQueryParamsFromValues(query)
		}
		resp, err := req.Get(path)
		if err != nil {
			return c.transportError(ctx, path, err)
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			return statusError(path, resp.StatusCode(), string(resp.Body()))
		}
		if ct := resp.Header().Get("Content-Type"); !strings.Contains(ct, "json") {
			// no StatusCode: a login or proxy page is not an answer about the resource
			return backoff.Permanent(&RemoteFetchError{
				Endpoint: path,
				Reason:   fmt.Sprintf("expected JSON response, got %q", ct),
			})
		}
		body = resp.Body()
		return nil
	})
	return body, err
}

// retry runs op until it succeeds, fails permanently, or the policy gives up.
func (c *Client) retry(ctx context.Context, op func() error) error {
	newBackOff := c.NewBackOff
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}
	err := backoff.Retry(op, backoff.WithContext(newBackOff(), ctx))
	if err != nil && ctx.Err() != nil {
		return ErrInterrupted
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func (c *Client) transportError(ctx context.Context, endpoint string, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ErrInterrupted)
	}
	return &RemoteFetchError{Endpoint: endpoint, Err: err}
}

// statusError classifies a non-2xx response: 429 and 5xx are retried.
func statusError(endpoint string, status int, body string) error {
	err := &RemoteFetchError{Endpoint: endpoint, StatusCode: status, Reason: truncate(body, 200)}
	if status == 429 || status >= 500 {
		return err
	}
	return backoff.Permanent(err)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
