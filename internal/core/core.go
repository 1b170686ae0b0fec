// Package core wires together the Fetcher, Federation Endpoints Client,
// Policy Engine, Trust Chain Resolver, and Federation Subtree Discoverer
// into the nine top-level operations spec.md §4.9 defines. CLI and REST
// are both thin callers of this package.
package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oidf-tools/ofresolve/internal/endpoints"
	"github.com/oidf-tools/ofresolve/internal/entityid"
	"github.com/oidf-tools/ofresolve/internal/ferr"
	"github.com/oidf-tools/ofresolve/internal/fetch"
	"github.com/oidf-tools/ofresolve/internal/jws"
	"github.com/oidf-tools/ofresolve/internal/policy"
	"github.com/oidf-tools/ofresolve/internal/resolver"
	"github.com/oidf-tools/ofresolve/internal/statement"
	"github.com/oidf-tools/ofresolve/internal/subtree"
)

// Core is the single HTTP client / connection pool an invocation shares
// across every operation, per spec.md §5.
type Core struct {
	fetcher   *fetch.Fetcher
	endpoints *endpoints.Client
}

// New builds a Core over a Fetcher configured with opts.
func New(opts ...fetch.Option) *Core {
	f := fetch.New(opts...)
	return &Core{fetcher: f, endpoints: endpoints.New(f)}
}

// Endpoints exposes the Federation Endpoints Client this Core wraps, for
// callers (the Graph Exporter's CLI wiring) that need the raw Trust Tree
// or Federation Subtree shape rather than one of the flattened
// operations below.
func (c *Core) Endpoints() *endpoints.Client {
	return c.endpoints
}

// GetEntityConfig fetches entity_id's self-signed configuration, and
// verifies it (requiring its own jwks) when verify is true.
func (c *Core) GetEntityConfig(ctx context.Context, id entityid.ID, verify bool) (*statement.Statement, error) {
	_, stmt, err := c.endpoints.GetEntityConfiguration(ctx, id)
	if err != nil {
		return nil, err
	}
	if !stmt.IsSelfSigned() {
		return nil, ferr.Newf(ferr.Malformed, "%s's configuration is not self-signed", id)
	}
	if verify {
		if err := stmt.Verify(true); err != nil {
			return nil, err
		}
		if err := jws.VerifySignature(stmt.JWS, stmt.JWKS); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// GetEntityMetadata returns entity_id's published metadata block.
func (c *Core) GetEntityMetadata(ctx context.Context, id entityid.ID, verify bool) (statement.Metadata, error) {
	stmt, err := c.GetEntityConfig(ctx, id, verify)
	if err != nil {
		return nil, err
	}
	if stmt.Metadata == nil {
		return nil, ferr.Newf(ferr.MetadataMissing, "%s has no metadata", id)
	}
	return stmt.Metadata, nil
}

// GetEntityJWKS returns entity_id's published jwks.
func (c *Core) GetEntityJWKS(ctx context.Context, id entityid.ID) (json.RawMessage, error) {
	stmt, err := c.GetEntityConfig(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if len(stmt.JWKS) == 0 {
		return nil, ferr.Newf(ferr.MissingClaim, "%s publishes no jwks", id).WithSubject("jwks")
	}
	return stmt.JWKS, nil
}

// FetchStatement fetches and verifies the subordinate statement issuer_id
// issues about entity_id.
func (c *Core) FetchStatement(ctx context.Context, entityID, issuerID entityid.ID) (*statement.Statement, error) {
	issuer, err := c.GetEntityConfig(ctx, issuerID, true)
	if err != nil {
		return nil, fmt.Errorf("fetching issuer %s: %w", issuerID, err)
	}
	_, stmt, err := c.endpoints.GetSubordinateStatement(ctx, issuer, entityID)
	if err != nil {
		return nil, err
	}
	if err := stmt.Verify(false); err != nil {
		return nil, err
	}
	if err := jws.VerifySignature(stmt.JWS, issuer.JWKS); err != nil {
		return nil, err
	}
	return stmt, nil
}

// ListSubordinates lists entity_id's subordinates under filter.
func (c *Core) ListSubordinates(ctx context.Context, id entityid.ID, filter endpoints.ListFilter) ([]string, error) {
	issuer, err := c.GetEntityConfig(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return c.endpoints.ListSubordinates(ctx, issuer, filter)
}

// GetTrustChains builds every Trust Chain from entity_id up to one of
// anchors.
func (c *Core) GetTrustChains(ctx context.Context, id entityid.ID, anchors []entityid.ID) ([]*resolver.Chain, error) {
	return resolver.New(c.endpoints).Resolve(ctx, id, anchors)
}

// Subtree discovers the full federation subtree rooted at entity_id.
func (c *Core) Subtree(ctx context.Context, id entityid.ID) (*subtree.Node, error) {
	return subtree.New(c.endpoints).Discover(ctx, id)
}

// DiscoverOPs resolves relyingParty's trust chains to the given anchors,
// then discovers the subtree beneath each anchor the relying party
// actually reaches, returning every openid_provider subject found. An
// anchor the relying party cannot reach contributes nothing, rather than
// failing the whole operation.
func (c *Core) DiscoverOPs(ctx context.Context, relyingParty entityid.ID, anchors []entityid.ID) ([]string, error) {
	chains, err := c.GetTrustChains(ctx, relyingParty, anchors)
	if err != nil {
		return nil, err
	}
	reached := map[entityid.ID]bool{}
	for _, chain := range chains {
		id, err := entityid.Parse(chain.TrustAnchor())
		if err != nil {
			continue
		}
		reached[id] = true
	}
	var reachedAnchors []entityid.ID
	for _, a := range anchors {
		if reached[a] {
			reachedAnchors = append(reachedAnchors, a)
		}
	}
	return subtree.DiscoverOPs(ctx, c.endpoints, reachedAnchors)
}

// Resolve builds the Trust Chain from entity_id to the single given
// anchor, applies the Policy Engine to entity_id's own metadata for
// entityType, and returns the effective metadata, per spec.md §4.9:
// "resolve_entity requires exactly one trust anchor; it builds chains to
// that anchor and applies the policy engine to the shortest."
func (c *Core) Resolve(ctx context.Context, id entityid.ID, anchor entityid.ID, entityType statement.EntityType) (map[string]any, error) {
	chains, err := c.GetTrustChains(ctx, id, []entityid.ID{anchor})
	if err != nil {
		return nil, err
	}
	chain, err := resolver.Shortest(chains)
	if err != nil {
		return nil, err
	}

	combined, err := policy.Gather(chain.Statements, entityType)
	if err != nil {
		return nil, err
	}

	leaf := chain.Statements[0]
	metadata := map[string]any{}
	if leaf.Metadata != nil {
		if m, ok := leaf.Metadata[entityType]; ok {
			metadata = m
		}
	}
	return policy.Apply(metadata, combined)
}
