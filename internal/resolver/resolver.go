// Package resolver is the Trust Chain Resolver: an upward DAG walk from
// a starting entity toward one or more trust anchors, yielding Trust
// Chains (spec.md §3, §4.6).
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oidf-tools/ofresolve/internal/endpoints"
	"github.com/oidf-tools/ofresolve/internal/entityid"
	"github.com/oidf-tools/ofresolve/internal/ferr"
	"github.com/oidf-tools/ofresolve/internal/jws"
	"github.com/oidf-tools/ofresolve/internal/memo"
	"github.com/oidf-tools/ofresolve/internal/statement"
)

// Node is a Trust Tree Node: the statement this node represents, the
// (nullable) subordinate statement the superior issued about this
// node's parent (the node one hop closer to the leaf), and the
// authority children resolved above it. Ownership is tree-shaped: a
// node owns its children.
type Node struct {
	Entity   *statement.Statement
	Incoming *statement.Statement
	Children []*Node

	terminal bool
}

// IsTerminal reports whether this node is itself a trust anchor (or, in
// an anchorless walk, has no further authority hints to climb).
func (n *Node) IsTerminal() bool {
	return n.terminal
}

// Chain is an ordered, non-empty Trust Chain: s0 (leaf's self-signed
// configuration) ... sn (trust anchor's self-signed configuration).
type Chain struct {
	Statements []*statement.Statement
}

// Expiration is the minimum exp across every statement in the chain.
func (c *Chain) Expiration() int64 {
	min := c.Statements[0].Expiration
	for _, s := range c.Statements[1:] {
		if s.Expiration < min {
			min = s.Expiration
		}
	}
	return min
}

// TrustAnchor returns the subject of the chain's final statement.
func (c *Chain) TrustAnchor() string {
	return c.Statements[len(c.Statements)-1].Subject
}

// Summary renders "s0.iss -> s1.iss -> ... -> sn-1.iss", matching the
// source's TrustChain.__str__.
func (c *Chain) Summary() string {
	parts := make([]string, 0, len(c.Statements)-1)
	for _, s := range c.Statements[:len(c.Statements)-1] {
		parts = append(parts, s.Issuer)
	}
	return strings.Join(parts, " -> ")
}

// Resolver walks the federation graph upward from a starting entity.
type Resolver struct {
	endpoints *endpoints.Client
	configs   *memo.Memo[*statement.Statement]
}

// New builds a Resolver over the given Federation Endpoints Client. The
// Resolver's memoization cache is scoped to its own lifetime; construct
// one Resolver per invocation.
func New(client *endpoints.Client) *Resolver {
	return &Resolver{
		endpoints: client,
		configs:   memo.New[*statement.Statement](),
	}
}

// Resolve fetches the starting entity's self-signed configuration
// (fatal on failure), then walks authority hints upward, and returns the
// resulting list of Trust Chains. An unreachable/unresolvable set of
// anchors is not an error: it yields an empty chain list.
func (r *Resolver) Resolve(ctx context.Context, start entityid.ID, anchors []entityid.ID) ([]*Chain, error) {
	node, err := r.ResolveTree(ctx, start, anchors)
	if err != nil {
		return nil, err
	}
	if !node.terminal && len(node.Children) == 0 {
		return nil, nil
	}
	chains := r.chains(node)
	return filterByMaxPathLength(chains), nil
}

// ResolveTree fetches the starting entity's self-signed configuration
// (fatal on failure) and walks authority hints upward, returning the raw
// Trust Tree. Exposed (distinct from Resolve) so callers that need the
// tree shape itself, such as the Graph Exporter, don't have to
// reconstruct it from flattened chains.
func (r *Resolver) ResolveTree(ctx context.Context, start entityid.ID, anchors []entityid.ID) (*Node, error) {
	root, err := r.fetchSelfSigned(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("fetching starting entity %s: %w", start, err)
	}

	anchorSet := make(map[entityid.ID]bool, len(anchors))
	for _, a := range anchors {
		anchorSet[a] = true
	}

	node := &Node{Entity: root}
	seen := map[entityid.ID]bool{start: true}
	if err := r.resolveNode(ctx, node, anchorSet, seen); err != nil {
		return nil, err
	}
	return node, nil
}

// fetchSelfSigned fetches and verifies an entity's self-signed
// configuration, memoized per-invocation. Verification covers both the
// claim shape (Verify) and the signature itself, against the config's
// own jwks — spec.md §4.2 requires a self-signed configuration be
// verified before its jwks is trusted for anything downstream, such as
// verifying the subordinate statements this entity issues.
func (r *Resolver) fetchSelfSigned(ctx context.Context, id entityid.ID) (*statement.Statement, error) {
	return r.configs.Do("config:"+id.String(), func() (*statement.Statement, error) {
		_, stmt, err := r.endpoints.GetEntityConfiguration(ctx, id)
		if err != nil {
			return nil, err
		}
		if !stmt.IsSelfSigned() {
			return nil, ferr.Newf(ferr.Malformed, "entity configuration for %s is not self-signed (iss=%s sub=%s)", id, stmt.Issuer, stmt.Subject)
		}
		if err := stmt.Verify(true); err != nil {
			return nil, err
		}
		if err := jws.VerifySignature(stmt.JWS, stmt.JWKS); err != nil {
			return nil, err
		}
		if err := checkNotExpired(stmt); err != nil {
			return nil, err
		}
		return stmt, nil
	})
}

// checkNotExpired rejects a statement whose exp has already passed,
// per spec.md §7's classification of an expired statement as
// VerificationFailed.
func checkNotExpired(stmt *statement.Statement) error {
	if stmt.Expired(time.Now().Unix()) {
		return ferr.Newf(ferr.VerificationFailed, "%s's statement expired at %d", stmt.Subject, stmt.Expiration)
	}
	return nil
}

// resolveNode implements spec.md §4.6 step 2: if N is itself terminal,
// mark it so; otherwise fan out over its (deduplicated) authority hints,
// recursing with a copy-on-branch seen set, and keep only the children
// whose own recursive resolution reached a terminal.
func (r *Resolver) resolveNode(ctx context.Context, node *Node, anchors map[entityid.ID]bool, seen map[entityid.ID]bool) error {
	sub, err := entityid.Parse(node.Entity.Subject)
	if err != nil {
		return fmt.Errorf("invalid subject %q: %w", node.Entity.Subject, err)
	}

	if anchors[sub] || (len(anchors) == 0 && len(node.Entity.AuthorityHints) == 0) {
		node.terminal = true
		return nil
	}

	hints := dedupHints(node.Entity.AuthorityHints)

	type branchResult struct {
		child *Node
		valid bool
	}
	results := make([]branchResult, len(hints))

	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range hints {
		i, raw := i, raw
		authorityID, err := entityid.Parse(raw)
		if err != nil {
			slog.Warn("skipping malformed authority hint", "hint", raw, "err", err)
			continue
		}
		if seen[authorityID] {
			slog.Debug("skipping authority hint already seen", "authority", authorityID)
			continue
		}

		branchSeen := copySeenWith(seen, authorityID)
		g.Go(func() error {
			child, err := r.resolveAuthority(gctx, authorityID, sub)
			if err != nil {
				slog.Warn("authority branch failed, skipping", "authority", authorityID, "subject", sub, "err", err)
				return nil
			}
			if err := r.resolveNode(gctx, child, anchors, branchSeen); err != nil {
				slog.Warn("authority branch failed, skipping", "authority", authorityID, "err", err)
				return nil
			}
			if child.terminal || len(child.Children) > 0 {
				results[i] = branchResult{child: child, valid: true}
			}
			return nil
		})
	}
	// Errors from branches are swallowed inside each goroutine per
	// spec.md §4.6/§7's propagation policy; g.Wait() only surfaces a
	// context cancellation.
	if err := g.Wait(); err != nil {
		return err
	}

	for _, res := range results {
		if res.valid {
			node.Children = append(node.Children, res.child)
		}
	}
	return nil
}

// resolveAuthority fetches authority's self-signed configuration, fetches
// the subordinate statement it issues about subject, and verifies that
// statement against the authority's own jwks.
func (r *Resolver) resolveAuthority(ctx context.Context, authority entityid.ID, subject entityid.ID) (*Node, error) {
	a, err := r.fetchSelfSigned(ctx, authority)
	if err != nil {
		return nil, err
	}

	_, s, err := r.endpoints.GetSubordinateStatement(ctx, a, subject)
	if err != nil {
		return nil, err
	}
	if err := s.Verify(false); err != nil {
		return nil, err
	}
	if s.Issuer != a.Subject {
		return nil, ferr.Newf(ferr.VerificationFailed, "subordinate statement issuer %s does not match authority %s", s.Issuer, a.Subject)
	}
	if s.Subject != subject.String() {
		return nil, ferr.Newf(ferr.VerificationFailed, "subordinate statement subject %s does not match requested %s", s.Subject, subject)
	}
	if err := jws.VerifySignature(s.JWS, a.JWKS); err != nil {
		return nil, err
	}
	if err := checkNotExpired(s); err != nil {
		return nil, err
	}

	return &Node{Entity: a, Incoming: s}, nil
}

// chains enumerates root-to-terminal paths as Trust Chains, by the same
// fold the source's TrustTree.chains()/TrustChainResolver.chains() use:
// recurse to get tails, prepend each node's Incoming statement on the
// way back up, and finally prepend the root's own entity statement.
func (r *Resolver) chains(root *Node) []*Chain {
	var out []*Chain
	for _, tail := range tails(root) {
		full := append([]*statement.Statement{root.Entity}, tail...)
		out = append(out, &Chain{Statements: full})
	}
	return out
}

func tails(node *Node) [][]*statement.Statement {
	if len(node.Children) == 0 {
		if node.Incoming == nil {
			return [][]*statement.Statement{{}}
		}
		return [][]*statement.Statement{{node.Incoming, node.Entity}}
	}
	var out [][]*statement.Statement
	for _, child := range node.Children {
		for _, t := range tails(child) {
			if node.Incoming == nil {
				out = append(out, t)
				continue
			}
			combined := make([]*statement.Statement, 0, len(t)+1)
			combined = append(combined, node.Incoming)
			combined = append(combined, t...)
			out = append(out, combined)
		}
	}
	return out
}

// filterByMaxPathLength drops chains longer than the trust anchor's
// declared constraints.max_path_length, per spec.md §4.6.
func filterByMaxPathLength(chains []*Chain) []*Chain {
	out := make([]*Chain, 0, len(chains))
	for _, c := range chains {
		anchor := c.Statements[len(c.Statements)-1]
		if anchor.Constraints != nil && anchor.Constraints.MaxPathLength != nil {
			intermediaries := len(c.Statements) - 3
			if intermediaries > *anchor.Constraints.MaxPathLength {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// Shortest picks the shortest chain, breaking ties by lexicographic
// order of issuer ids along the path, per spec.md §4.6.
func Shortest(chains []*Chain) (*Chain, error) {
	if len(chains) == 0 {
		return nil, ferr.Newf(ferr.NoChain, "no trust chain found")
	}
	best := make([]*Chain, len(chains))
	copy(best, chains)
	sort.Slice(best, func(i, j int) bool {
		if len(best[i].Statements) != len(best[j].Statements) {
			return len(best[i].Statements) < len(best[j].Statements)
		}
		return best[i].Summary() < best[j].Summary()
	})
	return best[0], nil
}

func dedupHints(hints []string) []string {
	seen := make(map[string]bool, len(hints))
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

func copySeenWith(seen map[entityid.ID]bool, add entityid.ID) map[entityid.ID]bool {
	cp := make(map[entityid.ID]bool, len(seen)+1)
	for k, v := range seen {
		cp[k] = v
	}
	cp[add] = true
	return cp
}
