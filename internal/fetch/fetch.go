// Package fetch issues outbound requests to procurement portals.
//
// The client is a thin resty wrapper with a fixed timeout, a static user agent
// and verified TLS. It never retries: retry and backoff belong to the scheduler.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pfrederiksen/bid-scout/internal/logger"
	"github.com/pfrederiksen/bid-scout/internal/telemetry"
)

const (
	DefaultUserAgent = "bid-scout/1.0 (github.com/pfrederiksen/bid-scout)"
	DefaultTimeout   = 30 * time.Second
)

// ErrFetch matches every FetchError via errors.Is.
var ErrFetch = errors.New("fetch failed")

// FetchError reports a transport, timeout or non-2xx failure for one URL.
type FetchError struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status code: %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Options configures a Client
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// InsecureSkipVerify disables certificate verification. Local development only.
	InsecureSkipVerify bool
}

// Client fetches portal pages and documents
type Client struct {
	http *resty.Client
}

// New creates a Client, filling unset options with defaults.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", opts.UserAgent)
	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("TLS certificate verification disabled for outbound fetches", logger.Fields{
			"base_url": opts.BaseURL,
		})
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // explicit opt-out
	}

	telemetry.InstrumentResty(client, "bid-scout/fetch")

	return &Client{http: client}
}

// Do issues a request and returns the response body. A non-nil form is sent
// as an application/x-www-form-urlencoded body.
func (c *Client) Do(ctx context.Context, method, target string, form url.Values) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if form != nil {
		req.SetFormDataFromValues(form)
	}

	res, err := req.Execute(method, target)
	if err != nil {
		return nil, &FetchError{Method: method, URL: target, Err: err}
	}
	if !res.IsSuccess() {
		return nil, &FetchError{Method: method, URL: target, StatusCode: res.StatusCode()}
	}
	return res.Body(), nil
}

// Get fetches a page.
func (c *Client) Get(ctx context.Context, target string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, target, nil)
}

// PostForm submits a form and returns the response page.
func (c *Client) PostForm(ctx context.Context, target string, form url.Values) ([]byte, error) {
	if form == nil {
		form = url.Values{}
	}
	return c.Do(ctx, http.MethodPost, target, form)
}

// DownloadInfo describes a file written by Download
type DownloadInfo struct {
	Path     string
	MimeType string
	Size     int64
}

// Download streams the body of target into path, creating parent
// directories. On failure no file is left behind.
func (c *Client) Download(ctx context.Context, target, path string) (DownloadInfo, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetOutput(path).
		Get(target)
	if err != nil {
		os.Remove(path) //nolint:errcheck
		return DownloadInfo{}, &FetchError{Method: http.MethodGet, URL: target, Err: err}
	}
	if !res.IsSuccess() {
		os.Remove(path) //nolint:errcheck
		return DownloadInfo{}, &FetchError{Method: http.MethodGet, URL: target, StatusCode: res.StatusCode()}
	}

	stat, err := os.Stat(path)
	if err != nil {
		return DownloadInfo{}, fmt.Errorf("stat downloaded file: %w", err)
	}

	return DownloadInfo{
		Path:     path,
		MimeType: res.Header().Get("Content-Type"),
		Size:     stat.Size(),
	}, nil
}
