// Package subtree is the Federation Subtree Discoverer: a downward
// listing walk from a trust anchor (or any federation_entity-capable
// entity) out to its leaves, per spec.md §4.7.
package subtree

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oidf-tools/ofresolve/internal/endpoints"
	"github.com/oidf-tools/ofresolve/internal/entityid"
	"github.com/oidf-tools/ofresolve/internal/ferr"
	"github.com/oidf-tools/ofresolve/internal/jws"
	"github.com/oidf-tools/ofresolve/internal/memo"
	"github.com/oidf-tools/ofresolve/internal/statement"
)

// Node is one entity in a discovered subtree: its own self-signed
// configuration, and the subordinates discovery reached beneath it.
type Node struct {
	Entity       *statement.Statement
	Subordinates []*Node
}

// Discoverer walks federation_list_endpoint downward from a root entity.
type Discoverer struct {
	endpoints *endpoints.Client
	configs   *memo.Memo[*statement.Statement]
}

// New builds a Discoverer over the given Federation Endpoints Client.
// Its memoization cache is scoped to its own lifetime; construct one
// Discoverer per invocation.
func New(client *endpoints.Client) *Discoverer {
	return &Discoverer{
		endpoints: client,
		configs:   memo.New[*statement.Statement](),
	}
}

// Discover fetches root's self-signed configuration and recursively
// lists and fetches its subordinates. A leaf with no federation_entity
// metadata (so no federation_list_endpoint) is not an error: the walk
// simply stops there, same as a listing failure partway down — spec.md
// §4.7 treats every per-branch failure as a swallow-and-continue.
func (d *Discoverer) Discover(ctx context.Context, root entityid.ID) (*Node, error) {
	entity, err := d.fetchSelfSigned(ctx, root)
	if err != nil {
		return nil, err
	}
	node := &Node{Entity: entity}
	d.discoverNode(ctx, node)
	return node, nil
}

// fetchSelfSigned fetches and verifies an entity's self-signed
// configuration, memoized per-invocation. Verification covers both the
// claim shape (Verify) and the signature itself, against the config's
// own jwks, before that jwks is trusted to list the entity's
// subordinates.
func (d *Discoverer) fetchSelfSigned(ctx context.Context, id entityid.ID) (*statement.Statement, error) {
	return d.configs.Do("config:"+id.String(), func() (*statement.Statement, error) {
		_, stmt, err := d.endpoints.GetEntityConfiguration(ctx, id)
		if err != nil {
			return nil, err
		}
		if !stmt.IsSelfSigned() {
			return nil, ferr.Newf(ferr.Malformed, "entity configuration for %s is not self-signed", id)
		}
		if err := stmt.Verify(true); err != nil {
			return nil, err
		}
		if err := jws.VerifySignature(stmt.JWS, stmt.JWKS); err != nil {
			return nil, err
		}
		if stmt.Expired(time.Now().Unix()) {
			return nil, ferr.Newf(ferr.VerificationFailed, "%s's configuration expired at %d", stmt.Subject, stmt.Expiration)
		}
		return stmt, nil
	})
}

// discoverNode lists node's subordinates (a leaf with no metadata, or an
// entity with no federation_entity block, simply has none) and recurses
// into each, rejecting an entity that lists itself as its own
// subordinate, and swallowing any single subordinate's failure without
// aborting the rest of the walk.
func (d *Discoverer) discoverNode(ctx context.Context, node *Node) {
	if node.Entity.Metadata == nil {
		return
	}

	ids, err := d.endpoints.ListSubordinates(ctx, node.Entity, endpoints.ListFilter{})
	if err != nil {
		slog.Debug("could not list subordinates, treating as a leaf", "subject", node.Entity.Subject, "err", err)
		return
	}

	children := make([]*Node, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range ids {
		i, raw := i, raw
		g.Go(func() error {
			subID, err := entityid.Parse(raw)
			if err != nil {
				slog.Warn("skipping malformed subordinate id", "id", raw, "err", err)
				return nil
			}
			entity, err := d.fetchSelfSigned(gctx, subID)
			if err != nil {
				slog.Warn("could not fetch subordinate, skipping", "id", subID, "err", err)
				return nil
			}
			if entity.Subject == node.Entity.Subject {
				slog.Warn("entity listed itself as its own subordinate, skipping", "subject", entity.Subject)
				return nil
			}
			child := &Node{Entity: entity}
			d.discoverNode(gctx, child)
			children[i] = child
			return nil
		})
	}
	_ = g.Wait() // branch errors are swallowed above; this only surfaces cancellation

	for _, c := range children {
		if c != nil {
			node.Subordinates = append(node.Subordinates, c)
		}
	}
}

// Entities returns the subjects, anywhere in the subtree, that publish
// metadata for entityType.
func (n *Node) Entities(entityType statement.EntityType) []string {
	var out []string
	if n.Entity.Metadata != nil {
		if _, ok := n.Entity.Metadata[entityType]; ok {
			out = append(out, n.Entity.Subject)
		}
	}
	for _, sub := range n.Subordinates {
		out = append(out, sub.Entities(entityType)...)
	}
	return out
}

// EntityType returns the first non-federation_entity entity type this
// node's self-signed configuration publishes metadata for, or
// FederationEntityType if that is the only block present.
func (n *Node) EntityType() statement.EntityType {
	if n.Entity.Metadata == nil {
		return ""
	}
	for _, t := range []statement.EntityType{
		statement.OpenIDProvider, statement.OpenIDRelyingParty,
		statement.OAuthAuthorizationServer, statement.OAuthClient,
		statement.OAuthResourceServer, statement.TrustMarkIssuer,
	} {
		if _, ok := n.Entity.Metadata[t]; ok {
			return t
		}
	}
	if _, ok := n.Entity.Metadata[statement.FederationEntityType]; ok {
		return statement.FederationEntityType
	}
	return ""
}

// Serialize renders the subtree as a nested map keyed by subject,
// mirroring the source's FedTree.serialize(): each node carries its
// entity_type and entity_configuration (the raw compact JWS), plus a
// subordinates map when it has children.
func (n *Node) Serialize() map[string]any {
	subordinates := map[string]any{}
	for _, c := range n.Subordinates {
		for k, v := range c.Serialize() {
			subordinates[k] = v
		}
	}
	body := map[string]any{
		"entity_type":          n.EntityType(),
		"entity_configuration": n.Entity.JWS,
	}
	if len(subordinates) > 0 {
		body["subordinates"] = subordinates
	}
	return map[string]any{n.Entity.Subject: body}
}

// DiscoverOPs discovers the full subtree beneath each of the given trust
// anchors and returns the subject ids of every OpenID Provider found,
// per spec.md §4.9's discover-OPs operation.
func DiscoverOPs(ctx context.Context, client *endpoints.Client, anchors []entityid.ID) ([]string, error) {
	var ops []string
	for _, anchor := range anchors {
		d := New(client)
		root, err := d.Discover(ctx, anchor)
		if err != nil {
			return nil, err
		}
		ops = append(ops, root.Entities(statement.OpenIDProvider)...)
	}
	return ops, nil
}
