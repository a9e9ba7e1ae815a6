// Package source turns configuration sources into document content. A
// source is either a literal document or a file://, http:// or https:// URI.
package source

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultTimeout = 30 * time.Second
	// maxDocumentSize bounds a single fetched document.
	maxDocumentSize = 16 << 20
)

// Resolver resolves configuration sources.
type Resolver struct {
	Client *http.Client
}

// New returns a Resolver with a bounded HTTP client.
func New() *Resolver {
	return &Resolver{Client: &http.Client{Timeout: defaultTimeout}}
}

// Resolve returns the content named by src.
func (r *Resolver) Resolve(ctx context.Context, src string) ([]byte, error) {
	u, ok := parseURI(src)
	if !ok {
		return []byte(src), nil
	}
	switch u.Scheme {
	case "file":
		return readFile(u)
	default:
		return r.fetch(ctx, u)
	}
}

func parseURI(src string) (*url.URL, bool) {
	trimmed := strings.TrimSpace(src)
	if !strings.Contains(trimmed, "://") {
		return nil, false
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, false
	}
	switch u.Scheme {
	case "file", "http", "https":
		return u, true
	}
	return nil, false
}

func readFile(u *url.URL) ([]byte, error) {
	path := u.Path
	if u.Host != "" && u.Host != "localhost" {
		return nil, errors.Errorf("file source %q must be local", u.String())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read config source %s", path)
	}
	return raw, nil
}

func (r *Resolver) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build config source request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to fetch config source %s", u.Redacted())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching config source %s: unexpected status %s", u.Redacted(), resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read config source %s", u.Redacted())
	}
	if len(raw) > maxDocumentSize {
		return nil, errors.Errorf("config source %s exceeds %d bytes", u.Redacted(), maxDocumentSize)
	}
	return raw, nil
}
