package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/3leaps/bundlefetch/internal/sandbox"
)

// maxStringBytes caps DownloadFileToStr. It only serves version manifests
// and release listings.
const maxStringBytes = 10 << 20

// HTTPDoer is the subset of *http.Client the transport needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Error is a failed transfer: unreachable endpoint, non-success status, or a
// body interrupted mid-stream. StatusCode is zero when no response arrived.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client downloads remote artifacts. It has no retry or backoff and no
// built-in timeout: callers bound it with their context.
type Client struct {
	guard        sandbox.Guard
	httpClient   HTTPDoer
	userAgent    string
	token        string
	trustedHosts map[string]struct{}
	logger       *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(h HTTPDoer) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithToken sets a GitHub token. It is only sent to trusted hosts.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithTrustedHost adds a host (e.g. a GitHub Enterprise API host) that may
// receive the token.
func WithTrustedHost(host string) Option {
	return func(c *Client) {
		if host != "" {
			c.trustedHosts[strings.ToLower(host)] = struct{}{}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client. Every transfer is checked against guard first.
func New(guard sandbox.Guard, opts ...Option) *Client {
	c := &Client{
		guard:      guard,
		httpClient: http.DefaultClient,
		userAgent:  UserAgent("dev"),
		trustedHosts: map[string]struct{}{
			"github.com":     {},
			"api.github.com": {},
		},
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenFromEnv returns the GitHub token from the environment, if any.
func TokenFromEnv() string {
	if tok := strings.TrimSpace(os.Getenv("BUNDLEFETCH_GITHUB_TOKEN")); tok != "" {
		return tok
	}
	return strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
}

// UserAgent formats the User-Agent for a bundlefetch build.
func UserAgent(version string) string {
	return fmt.Sprintf("bundlefetch/%s", version)
}

// DownloadFileToDestination streams the body at rawURL into destinationPath,
// creating parent directories. On any failure the partially written file is
// removed, so a caller never observes a truncated artifact at the path.
// The write itself is not atomic.
func (c *Client) DownloadFileToDestination(ctx context.Context, rawURL, destinationPath string) (err error) {
	if err := c.guard.Check("download " + redactURL(rawURL)); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", destinationPath, err)
	}

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	// #nosec G304 -- destination is built by the caller from the bundle layout
	f, err := os.Create(destinationPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destinationPath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", destinationPath, closeErr)
		}
		if err != nil {
			// Best-effort removal of the partial file.
			_ = os.Remove(destinationPath)
		}
	}()

	written, err := io.Copy(f, resp.Body)
	if err != nil {
		return &Error{URL: redactURL(rawURL), Err: fmt.Errorf("interrupted after %s: %w", humanize.Bytes(uint64(written)), err)}
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return &Error{URL: redactURL(rawURL), Err: fmt.Errorf("short body: got %d of %d bytes: %w", written, resp.ContentLength, io.ErrUnexpectedEOF)}
	}

	c.logger.Debug("downloaded", "url", redactURL(rawURL), "dest", destinationPath, "size", humanize.Bytes(uint64(written)))
	return nil
}

// DownloadFileToStr fetches and fully buffers the body at rawURL. It is meant
// for small payloads such as version manifests and release listings.
func (c *Client) DownloadFileToStr(ctx context.Context, rawURL string) (string, error) {
	if err := c.guard.Check("fetch " + redactURL(rawURL)); err != nil {
		return "", err
	}

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStringBytes+1))
	if err != nil {
		return "", &Error{URL: redactURL(rawURL), Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxStringBytes {
		return "", &Error{URL: redactURL(rawURL), Err: fmt.Errorf("body exceeds %s", humanize.Bytes(maxStringBytes))}
	}
	return string(body), nil
}

// get performs the request and returns a response with a 2xx status.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, &Error{URL: redactURL(rawURL), Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" && c.isTrustedHost(req.URL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{URL: redactURL(rawURL), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, &Error{
			URL:        redactURL(rawURL),
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(snippet))),
		}
	}
	return resp, nil
}

func (c *Client) isTrustedHost(u *url.URL) bool {
	_, ok := c.trustedHosts[strings.ToLower(u.Hostname())]
	return ok
}

// redactURL strips query parameters and fragments for logs and errors.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
