// Package endpoints is the Federation Endpoints Client: well-known
// entity configuration retrieval, federation_fetch_endpoint subordinate
// statement retrieval, and federation_list_endpoint subordinate listing
// (spec.md §4.4).
package endpoints

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-querystring/query"

	"github.com/oidf-tools/ofresolve/internal/entityid"
	"github.com/oidf-tools/ofresolve/internal/ferr"
	"github.com/oidf-tools/ofresolve/internal/fetch"
	"github.com/oidf-tools/ofresolve/internal/jws"
	"github.com/oidf-tools/ofresolve/internal/statement"
)

// Client is the Federation Endpoints Client.
type Client struct {
	fetcher *fetch.Fetcher
}

// New builds a Client over the given Fetcher.
func New(fetcher *fetch.Fetcher) *Client {
	return &Client{fetcher: fetcher}
}

// fetchStatement to a common decode step: fetch raw text, decode the JWS
// payload (without verifying), and build a Statement.
func (c *Client) fetchStatement(ctx context.Context, url string) (string, *statement.Statement, error) {
	body, err := c.fetcher.FetchText(ctx, url)
	if err != nil {
		return "", nil, err
	}
	decoded, err := jws.DecodePayload(body)
	if err != nil {
		return "", nil, err
	}
	stmt, err := statement.FromPayload(decoded.Payload, body)
	if err != nil {
		return "", nil, err
	}
	return body, stmt, nil
}

// GetEntityConfiguration fetches {entity_id}/.well-known/openid-federation,
// trying both the no-trailing-slash and trailing-slash path variants and
// preferring a 200 on the first, per spec.md §4.4.
func (c *Client) GetEntityConfiguration(ctx context.Context, id entityid.ID) (string, *statement.Statement, error) {
	var lastErr error
	for _, candidate := range id.WellKnownCandidates() {
		compact, stmt, err := c.fetchStatement(ctx, candidate)
		if err == nil {
			return compact, stmt, nil
		}
		lastErr = err
	}
	return "", nil, lastErr
}

// subordinateQuery is the query-string shape for federation_fetch_endpoint
// requests, encoded via google/go-querystring instead of manual URL
// munging.
type subordinateQuery struct {
	Sub string `url:"sub"`
	Iss string `url:"iss,omitempty"`
}

// GetSubordinateStatement locates federation_fetch_endpoint in issuer's
// verified configuration and fetches the subordinate statement it issues
// about subject.
func (c *Client) GetSubordinateStatement(ctx context.Context, issuer *statement.Statement, subject entityid.ID) (string, *statement.Statement, error) {
	fetchEndpoint, err := federationEntityField(issuer, "federation_fetch_endpoint")
	if err != nil {
		return "", nil, err
	}

	url, err := withQuery(fetchEndpoint, subordinateQuery{Sub: subject.String(), Iss: issuer.Subject})
	if err != nil {
		return "", nil, err
	}
	return c.fetchStatement(ctx, url)
}

// ListFilter narrows the results of ListSubordinates.
type ListFilter struct {
	EntityType  string `url:"entity_type,omitempty"`
	TrustMarked bool   `url:"trust_marked,omitempty"`
	TrustMarkID string `url:"trust_mark_id,omitempty"`
}

// ListSubordinates locates federation_list_endpoint in issuer's verified
// configuration and returns the (possibly filtered) list of subordinate
// entity ids.
func (c *Client) ListSubordinates(ctx context.Context, issuer *statement.Statement, filter ListFilter) ([]string, error) {
	listEndpoint, err := federationEntityField(issuer, "federation_list_endpoint")
	if err != nil {
		return nil, err
	}

	url, err := withQuery(listEndpoint, filter)
	if err != nil {
		return nil, err
	}

	body, err := c.fetcher.FetchText(ctx, url)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(body), &ids); err != nil {
		return nil, ferr.New(ferr.Malformed, fmt.Errorf("listing response is not a JSON array of strings: %w", err))
	}
	return ids, nil
}

// federationEntityField locates a string field under
// metadata.federation_entity, failing with the taxonomy spec.md §4.4
// requires: MetadataMissing if there is no metadata at all,
// NotFederationEntity if the entity has no federation_entity block (it
// is a leaf), EndpointMissing if the specific field is absent.
func federationEntityField(stmt *statement.Statement, field string) (string, error) {
	if stmt.Metadata == nil {
		return "", ferr.Newf(ferr.MetadataMissing, "%s has no metadata", stmt.Subject)
	}
	fe, ok := stmt.Metadata[statement.FederationEntityType]
	if !ok {
		return "", ferr.Newf(ferr.NotFederationEntity, "%s publishes no federation_entity metadata", stmt.Subject)
	}
	value, ok := fe[field]
	if !ok {
		return "", ferr.Newf(ferr.EndpointMissing, "%s metadata", field).WithSubject(field)
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return "", ferr.Newf(ferr.EndpointMissing, "%s metadata is not a string", field).WithSubject(field)
	}
	return s, nil
}

// withQuery appends the url-tagged fields of v to endpoint's query
// string, preserving any query parameters endpoint already carries.
func withQuery(endpoint string, v any) (string, error) {
	values, err := query.Values(v)
	if err != nil {
		return "", ferr.New(ferr.Malformed, err)
	}
	encoded := values.Encode()
	if encoded == "" {
		return endpoint, nil
	}
	sep := "?"
	if containsQuery(endpoint) {
		sep = "&"
	}
	return endpoint + sep + encoded, nil
}

func containsQuery(url string) bool {
	for _, c := range url {
		if c == '?' {
			return true
		}
	}
	return false
}
