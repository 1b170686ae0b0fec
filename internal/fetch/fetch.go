// Package fetch is the HTTP Fetcher: it issues GET requests over TLS,
// with an optional verification toggle, and returns raw text bodies. It
// does not retry; failures surface to the caller, who decides whether to
// swallow them (as the resolver and subtree walkers do per branch) or
// treat them as fatal.
package fetch

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/oidf-tools/ofresolve/internal/ferr"
)

// Fetcher is a single shared HTTP client scoped to one invocation. Its
// lifetime is the caller's: construct one per CLI run / REST request and
// let it be garbage collected on exit, as spec.md §5 requires.
type Fetcher struct {
	client *resty.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithInsecureSkipVerify disables TLS certificate verification. This
// replaces the source's process-global VERIFY_SSL flag (DESIGN NOTES §9)
// with a per-instance setting.
func WithInsecureSkipVerify(insecure bool) Option {
	return func(f *Fetcher) {
		f.client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: insecure}) //nolint:gosec
	}
}

// WithTimeout bounds each individual request. The core itself imposes no
// deadline (spec.md §5); callers that want one pass it here.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.SetTimeout(d)
	}
}

// New constructs a Fetcher with TLS verification enabled by default.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{client: resty.New()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchText issues a GET request against url and returns the response
// body as text. A non-2xx response is ferr.HTTPFailure; a transport
// error is ferr.NetworkFailure.
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", ferr.New(ferr.NetworkFailure, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", ferr.Newf(ferr.HTTPFailure, "unexpected status from %s", url).WithStatus(resp.StatusCode())
	}
	return resp.String(), nil
}

// Client exposes the underlying resty client so tests can register
// httpmock transports against it.
func (f *Fetcher) Client() *resty.Client {
	return f.client
}
