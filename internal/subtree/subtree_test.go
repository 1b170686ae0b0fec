package subtree

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
	lestrjws "github.com/lestrrat-go/jwx/jws"

	"github.com/oidf-tools/ofresolve/internal/endpoints"
	"github.com/oidf-tools/ofresolve/internal/entityid"
	"github.com/oidf-tools/ofresolve/internal/fetch"
	"github.com/oidf-tools/ofresolve/internal/statement"
)

type testEntity struct {
	sk  *ecdsa.PrivateKey
	kid string
}

func newTestEntity(t *testing.T, kid string) testEntity {
	t.Helper()
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return testEntity{sk: sk, kid: kid}
}

func (e testEntity) jwks(t *testing.T) json.RawMessage {
	t.Helper()
	key, err := jwk.New(e.sk.Public())
	if err != nil {
		t.Fatalf("jwk.New: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, e.kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256.String()); err != nil {
		t.Fatalf("set alg: %v", err)
	}
	set := jwk.NewSet()
	set.Add(key)
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return b
}

func (e testEntity) sign(t *testing.T, payload map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	h := lestrjws.NewHeaders()
	if err := h.Set(lestrjws.KeyIDKey, e.kid); err != nil {
		t.Fatalf("set kid header: %v", err)
	}
	signed, err := lestrjws.Sign(raw, jwa.ES256, e.sk, lestrjws.WithHeaders(h))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return string(signed)
}

func newMockedDiscoverer(t *testing.T) *Discoverer {
	t.Helper()
	f := fetch.New()
	httpmock.ActivateNonDefault(f.Client().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return New(endpoints.New(f))
}

// registerConfig registers id's self-signed configuration, signed by
// entity and carrying entity's own jwks, as spec.md §3 requires of every
// self-signed configuration.
func registerConfig(t *testing.T, id string, entity testEntity, extra map[string]any) {
	t.Helper()
	payload := map[string]any{
		"iss": id, "sub": id,
		"iat": float64(1), "exp": float64(99999999999),
		"jwks": json.RawMessage(entity.jwks(t)),
	}
	for k, v := range extra {
		payload[k] = v
	}
	httpmock.RegisterResponder("GET", id+"/.well-known/openid-federation",
		httpmock.NewStringResponder(200, entity.sign(t, payload)))
}

func registerListing(t *testing.T, id string, ids []string) {
	t.Helper()
	b, err := json.Marshal(ids)
	if err != nil {
		t.Fatalf("marshal ids: %v", err)
	}
	httpmock.RegisterResponder("GET", id+"/list",
		httpmock.NewStringResponder(200, string(b)))
}

func federationEntityMetadata(listEndpoint string) map[string]any {
	return map[string]any{
		"metadata": map[string]any{
			"federation_entity": map[string]any{
				"federation_list_endpoint": listEndpoint,
			},
		},
	}
}

func TestDiscoverTwoLevelTree(t *testing.T) {
	d := newMockedDiscoverer(t)

	ta := newTestEntity(t, "ta-key")
	ia := newTestEntity(t, "ia-key")
	op := newTestEntity(t, "op-key")

	registerConfig(t, "https://ta.example", ta, federationEntityMetadata("https://ta.example/list"))
	registerListing(t, "https://ta.example", []string{"https://ia.example"})

	registerConfig(t, "https://ia.example", ia, federationEntityMetadata("https://ia.example/list"))
	registerListing(t, "https://ia.example", []string{"https://op.example"})

	opMeta := map[string]any{"metadata": map[string]any{"openid_provider": map[string]any{}}}
	registerConfig(t, "https://op.example", op, opMeta)

	root, err := entityid.Parse("https://ta.example")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tree, err := d.Discover(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tree.Subordinates) != 1 || tree.Subordinates[0].Entity.Subject != "https://ia.example" {
		t.Fatalf("unexpected tree: %+v", tree)
	}
	iaNode := tree.Subordinates[0]
	if len(iaNode.Subordinates) != 1 || iaNode.Subordinates[0].Entity.Subject != "https://op.example" {
		t.Fatalf("unexpected ia subtree: %+v", iaNode)
	}

	ops := tree.Entities(statement.OpenIDProvider)
	if len(ops) != 1 || ops[0] != "https://op.example" {
		t.Fatalf("unexpected ops: %v", ops)
	}

	serialized := tree.Serialize()
	if _, ok := serialized["https://ta.example"]; !ok {
		t.Fatalf("serialize missing root: %v", serialized)
	}
}

func TestDiscoverRejectsSelfSubordinate(t *testing.T) {
	d := newMockedDiscoverer(t)

	ta := newTestEntity(t, "ta-key")
	registerConfig(t, "https://ta.example", ta, federationEntityMetadata("https://ta.example/list"))
	registerListing(t, "https://ta.example", []string{"https://ta.example"})

	root, err := entityid.Parse("https://ta.example")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tree, err := d.Discover(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Subordinates) != 0 {
		t.Fatalf("expected self-subordinate to be rejected, got %+v", tree.Subordinates)
	}
}

func TestDiscoverStopsAtLeaf(t *testing.T) {
	d := newMockedDiscoverer(t)

	rp := newTestEntity(t, "rp-key")
	leafMeta := map[string]any{"metadata": map[string]any{"openid_relying_party": map[string]any{}}}
	registerConfig(t, "https://rp.example", rp, leafMeta)

	root, err := entityid.Parse("https://rp.example")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tree, err := d.Discover(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Subordinates) != 0 {
		t.Fatalf("expected leaf with no subordinates, got %+v", tree.Subordinates)
	}
}
