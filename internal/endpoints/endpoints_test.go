package endpoints

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/lestrrat-go/jwx/jwa"
	lestrjws "github.com/lestrrat-go/jwx/jws"

	"github.com/oidf-tools/ofresolve/internal/entityid"
	"github.com/oidf-tools/ofresolve/internal/ferr"
	"github.com/oidf-tools/ofresolve/internal/fetch"
)

func sign(t *testing.T, payload map[string]any) string {
	t.Helper()
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	signed, err := lestrjws.Sign(raw, jwa.ES256, sk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return string(signed)
}

func newMockedClient(t *testing.T) (*Client, *fetch.Fetcher) {
	t.Helper()
	f := fetch.New()
	httpmock.ActivateNonDefault(f.Client().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return New(f), f
}

func TestGetEntityConfigurationTriesBothCandidates(t *testing.T) {
	c, _ := newMockedClient(t)
	id, err := entityid.Parse("https://ta.example")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	compact := sign(t, map[string]any{"iss": "https://ta.example", "sub": "https://ta.example"})
	httpmock.RegisterResponder("GET", "https://ta.example/.well-known/openid-federation",
		httpmock.NewStringResponder(404, ""))
	httpmock.RegisterResponder("GET", "https://ta.example/.well-known/openid-federation/",
		httpmock.NewStringResponder(200, compact))

	_, stmt, err := c.GetEntityConfiguration(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stmt.Subject != "https://ta.example" {
		t.Fatalf("unexpected subject: %s", stmt.Subject)
	}
}

func TestGetSubordinateStatementNotFederationEntity(t *testing.T) {
	c, _ := newMockedClient(t)
	id, err := entityid.Parse("https://rp.example")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	compact := sign(t, map[string]any{
		"iss": "https://rp.example", "sub": "https://rp.example",
		"metadata": map[string]any{"openid_relying_party": map[string]any{}},
	})
	httpmock.RegisterResponder("GET", "https://rp.example/.well-known/openid-federation",
		httpmock.NewStringResponder(200, compact))

	_, leaf, err := c.GetEntityConfiguration(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err = c.GetSubordinateStatement(context.Background(), leaf, id)
	if !ferr.Is(err, ferr.NotFederationEntity) {
		t.Fatalf("expected NotFederationEntity, got %v", err)
	}
}

func TestListSubordinatesFiltersQuery(t *testing.T) {
	c, _ := newMockedClient(t)

	authorityCompact := sign(t, map[string]any{
		"iss": "https://ia.example", "sub": "https://ia.example",
		"metadata": map[string]any{
			"federation_entity": map[string]any{
				"federation_list_endpoint": "https://ia.example/list",
			},
		},
	})

	httpmock.RegisterResponder("GET", "https://ia.example/.well-known/openid-federation",
		httpmock.NewStringResponder(200, authorityCompact))
	httpmock.RegisterResponder("GET", "https://ia.example/list?entity_type=openid_provider",
		httpmock.NewStringResponder(200, `["https://op.example"]`))

	id, err := entityid.Parse("https://ia.example")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, authority, err := c.GetEntityConfiguration(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids, err := c.ListSubordinates(context.Background(), authority, ListFilter{EntityType: "openid_provider"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "https://op.example" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
