// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package source retrieves raw inventory source bytes.
//
// A location is a filesystem path or a file://, http:// or https://
// URL. Relative locations resolve against the base the Fetcher was
// constructed with, normally the root config location, so that include
// entries can sit next to the config that declares them whether the
// config lives on disk or behind an HTTP server.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/aggravator/aggravator/internal/try"
)

// SourceUnreachableError occurs when a location resolves to a supported
// scheme but its content cannot be retrieved.
type SourceUnreachableError struct {
	Location string
	Cause    error
}

// Error implements the error interface.
func (e SourceUnreachableError) Error() string {
	return fmt.Sprintf("source %s is unreachable: %s", e.Location, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e SourceUnreachableError) Unwrap() error {
	return e.Cause
}

// UnsupportedSchemeError occurs when a location carries a URL scheme
// other than file, http or https.
type UnsupportedSchemeError struct {
	Location string
	Scheme   string
}

// Error implements the error interface.
func (e UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported scheme %q in location %s", e.Scheme, e.Location)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the http.Client used for http(s) locations.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// Fetcher turns locations into bytes.
type Fetcher struct {
	baseURL *url.URL
	baseDir string
	client  *http.Client
}

// New returns a Fetcher resolving relative locations against base.
// base is itself a location; an empty base resolves relative paths
// against the working directory.
func New(base string, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}

	u, err := url.Parse(base)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		f.baseURL = u
		return f
	}
	if err == nil && u.Scheme == "file" {
		base = u.Path
	}
	f.baseDir = filepath.Dir(base)
	if base == "" {
		f.baseDir = ""
	}
	return f
}

// Fetch retrieves the content of location.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		// not parseable as a URL, treat it as a plain path
		return f.fetchPath(ctx, location, location)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, location, u)
	case "file":
		return f.fetchPath(ctx, location, u.Path)
	case "":
		return f.fetchPath(ctx, location, location)
	default:
		return nil, UnsupportedSchemeError{Location: location, Scheme: u.Scheme}
	}
}

func (f *Fetcher) fetchPath(ctx context.Context, location, path string) ([]byte, error) {
	if !filepath.IsAbs(path) {
		if f.baseURL != nil {
			resolved := f.baseURL.ResolveReference(&url.URL{Path: path})
			return f.fetchHTTP(ctx, location, resolved)
		}
		path = filepath.Join(f.baseDir, path)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, SourceUnreachableError{Location: location, Cause: err}
	}
	return b, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, location string, u *url.URL) (_ []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, SourceUnreachableError{Location: location, Cause: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, SourceUnreachableError{Location: location, Cause: err}
	}
	defer try.Close(&err, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, SourceUnreachableError{
			Location: location,
			Cause:    fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, SourceUnreachableError{Location: location, Cause: err}
	}
	return b, nil
}
