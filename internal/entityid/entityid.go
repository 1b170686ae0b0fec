// Package entityid normalizes and validates OpenID Federation entity
// identifiers. An entity identifier is an absolute HTTPS URL; servers are
// inconsistent about trailing slashes, so the wire-facing helpers in this
// package know how to try both forms.
package entityid

import (
	"fmt"
	"net/url"
	"strings"
)

// ID is a normalized entity identifier. Two IDs are equal iff their
// normalized forms are equal, so ID is safe to use as a map key.
type ID string

// Parse validates that raw is an absolute HTTPS URL with no fragment or
// query, then returns its normalized form (trailing path slashes
// stripped).
func Parse(raw string) (ID, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("entityid: %q is not a valid URL: %w", raw, err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("entityid: %q must use the https scheme", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("entityid: %q has no host", raw)
	}
	if u.Fragment != "" {
		return "", fmt.Errorf("entityid: %q must not carry a fragment", raw)
	}
	if len(u.Query()) > 0 {
		return "", fmt.Errorf("entityid: %q must not carry a query", raw)
	}
	return normalize(u), nil
}

// normalize strips trailing slashes from the path. Idempotent:
// normalize(normalize(u)) == normalize(u).
func normalize(u *url.URL) ID {
	cp := *u
	cp.Path = strings.TrimRight(cp.Path, "/")
	cp.RawQuery = ""
	cp.Fragment = ""
	return ID(cp.String())
}

// String returns the normalized identifier.
func (id ID) String() string {
	return string(id)
}

// WellKnownCandidates returns the two well-known entity configuration URLs
// worth trying on the wire, in preference order: without a trailing
// slash on the host path, then with one. Federations vary in which form
// their web server actually answers on, so callers are expected to try
// both and prefer the first 200.
func (id ID) WellKnownCandidates() []string {
	base := strings.TrimRight(string(id), "/")
	return []string{
		base + "/.well-known/openid-federation",
		base + "/.well-known/openid-federation/",
	}
}
