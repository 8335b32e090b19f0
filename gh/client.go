// Package gh configures go-github clients and normalizes their errors.
package gh

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/go-github/v66/github"
)

const (
	// MaxErrorPayload bounds the response text kept in an HTTPError.
	MaxErrorPayload = 240

	defaultTimeout = 20 * time.Second
)

var (
	ErrMissingRepo  = errors.New("GITHUB_REPO is required (format: owner/repo)")
	ErrMissingToken = errors.New("GITHUB_TOKEN is required for non-dry-run GitHub calls")
)

// Repo identifies a repository.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepo parses "owner/repo".
func ParseRepo(s string) (Repo, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Repo{}, ErrMissingRepo
	}
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, fmt.Errorf("invalid repository %q: expected owner/repo", s)
	}
	return Repo{Owner: owner, Name: name}, nil
}

type clientConfig struct {
	baseURL string
	timeout time.Duration
}

// ClientOption is a function that configures a GitHub client.
type ClientOption func(*clientConfig)

// WithBaseURL points both the API and the upload endpoint at baseURL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *clientConfig) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the HTTP timeout for every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// NewClient creates a token-authenticated client.
func NewClient(token string, opts ...ClientOption) (*github.Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	cfg := &clientConfig{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(cfg)
	}

	client := github.NewClient(&http.Client{Timeout: cfg.timeout}).WithAuthToken(token)
	if cfg.baseURL != "" {
		u, err := url.Parse(cfg.baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		client.BaseURL = u
		client.UploadURL = u
	}
	return client, nil
}

// HTTPError is a GitHub API failure with its status and a truncated payload.
type HTTPError struct {
	Op         string
	StatusCode int
	Payload    string
	err        error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GitHub %s HTTP %d: %s", e.Op, e.StatusCode, e.Payload)
}

func (e *HTTPError) Unwrap() error {
	return e.err
}

// Wrap converts a go-github error into an HTTPError when a response was
// received, or a plain wrapped error otherwise.
func Wrap(op string, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		if ghErr.Response != nil {
			status = ghErr.Response.StatusCode
		}
		payload := ghErr.Message
		for _, e := range ghErr.Errors {
			payload += "; " + e.Error()
		}
		return &HTTPError{Op: op, StatusCode: status, Payload: Truncate(payload, MaxErrorPayload), err: err}
	}

	if status != 0 {
		return &HTTPError{Op: op, StatusCode: status, Payload: Truncate(err.Error(), MaxErrorPayload), err: err}
	}
	return fmt.Errorf("GitHub %s: %w", op, err)
}

// IsNotFound reports whether err is a 404 from the GitHub API.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
