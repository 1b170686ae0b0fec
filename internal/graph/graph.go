// Package graph is the Graph Exporter: DOT and JSON renderings of a
// resolved Trust Tree or a discovered Federation Subtree, grounded on
// the source's pygraphviz-based to_graph/_to_graph methods.
package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/oidf-tools/ofresolve/internal/resolver"
	"github.com/oidf-tools/ofresolve/internal/statement"
	"github.com/oidf-tools/ofresolve/internal/subtree"
)

// palette is the entity-type fill-color table; unrecognized or absent
// entity types fall back to a neutral gray.
var palette = map[statement.EntityType]string{
	statement.OpenIDRelyingParty:       "#8ecae6",
	statement.OpenIDProvider:           "#219ebc",
	statement.OAuthAuthorizationServer: "#023047",
	statement.OAuthClient:              "#ffb703",
	statement.OAuthResourceServer:      "#fb8500",
	statement.FederationEntityType:     "#adb5bd",
	statement.TrustMarkIssuer:          "#9d4edd",
}

const defaultColor = "#ced4da"

type node struct {
	ID    string
	Label string
	Color string
	Leaf  bool
}

type edge struct {
	From string
	To   string
}

var dotTemplate = template.Must(template.New("graph").Parse(
	`digraph "{{.Name}}" {
  rankdir=BT;
{{- range .Nodes}}
  "{{.ID}}" [label="{{.Label}}", style=filled, fillcolor="{{.Color}}", shape={{if .Leaf}}box{{else}}ellipse{{end}}];
{{- end}}
{{- range .Edges}}
  "{{.From}}" -> "{{.To}}";
{{- end}}
}
`))

type dotDoc struct {
	Name  string
	Nodes []node
	Edges []edge
}

func colorFor(entityType statement.EntityType) string {
	if c, ok := palette[entityType]; ok {
		return c
	}
	return defaultColor
}

// entityTypeOf returns the first non-federation_entity type a statement
// publishes metadata for, falling back to federation_entity.
func entityTypeOf(s *statement.Statement) statement.EntityType {
	if s.Metadata == nil {
		return ""
	}
	for _, t := range []statement.EntityType{
		statement.OpenIDProvider, statement.OpenIDRelyingParty,
		statement.OAuthAuthorizationServer, statement.OAuthClient,
		statement.OAuthResourceServer, statement.TrustMarkIssuer,
	} {
		if _, ok := s.Metadata[t]; ok {
			return t
		}
	}
	if _, ok := s.Metadata[statement.FederationEntityType]; ok {
		return statement.FederationEntityType
	}
	return ""
}

// TrustTreeDOT renders a resolved Trust Tree as a DOT digraph, one node
// per entity visited and one edge per authority-hint relationship,
// mirroring the source's TrustChainResolver._to_graph: a node's fill
// color comes from its published entity type, and leaves (nodes with no
// further authority children) are drawn as boxes instead of ellipses.
func TrustTreeDOT(root *resolver.Node) (string, error) {
	doc := dotDoc{Name: fmt.Sprintf("Trustchains: %s", root.Entity.Subject)}
	walkTrustTree(root, &doc)
	var buf bytes.Buffer
	if err := dotTemplate.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func walkTrustTree(n *resolver.Node, doc *dotDoc) {
	entityType := entityTypeOf(n.Entity)
	doc.Nodes = append(doc.Nodes, node{
		ID:    n.Entity.Subject,
		Label: n.Entity.Subject,
		Color: colorFor(entityType),
		Leaf:  len(n.Children) == 0,
	})
	if n.Incoming != nil {
		doc.Edges = append(doc.Edges, edge{From: n.Entity.Subject, To: n.Incoming.Subject})
	}
	for _, child := range n.Children {
		walkTrustTree(child, doc)
	}
}

// SubtreeDOT renders a discovered Federation Subtree as a DOT digraph,
// mirroring the source's FedTree._to_graph: an edge per
// superior-to-subordinate listing relationship.
func SubtreeDOT(root *subtree.Node) (string, error) {
	doc := dotDoc{Name: fmt.Sprintf("Subfederation for %s", root.Entity.Subject)}
	walkSubtree(root, &doc)
	var buf bytes.Buffer
	if err := dotTemplate.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func walkSubtree(n *subtree.Node, doc *dotDoc) {
	doc.Nodes = append(doc.Nodes, node{
		ID:    n.Entity.Subject,
		Label: n.Entity.Subject,
		Color: colorFor(n.EntityType()),
		Leaf:  len(n.Subordinates) == 0,
	})
	for _, sub := range n.Subordinates {
		walkSubtree(sub, doc)
		doc.Edges = append(doc.Edges, edge{From: n.Entity.Subject, To: sub.Entity.Subject})
	}
}

// ChainsJSON renders a list of Trust Chains as a JSON array of compact
// JWS sequences, one array per chain.
func ChainsJSON(chains []*resolver.Chain) ([]byte, error) {
	out := make([][]string, len(chains))
	for i, c := range chains {
		jwss := make([]string, len(c.Statements))
		for j, s := range c.Statements {
			jwss[j] = s.JWS
		}
		out[i] = jwss
	}
	return json.MarshalIndent(out, "", "  ")
}

// SubtreeJSON renders a discovered subtree via its own nested
// Serialize(), matching the source's FedTree.serialize() shape.
func SubtreeJSON(root *subtree.Node) ([]byte, error) {
	return json.MarshalIndent(root.Serialize(), "", "  ")
}
