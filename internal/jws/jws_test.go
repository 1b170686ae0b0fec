package jws

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
	lestrjws "github.com/lestrrat-go/jwx/jws"

	"github.com/oidf-tools/ofresolve/internal/ferr"
)

func signTestStatement(t *testing.T, sk *ecdsa.PrivateKey, kid string, payload map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	signed, err := lestrjws.Sign(raw, jwa.ES256, sk, lestrjws.WithHeaders(headersWithKid(t, kid)))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return string(signed)
}

func headersWithKid(t *testing.T, kid string) lestrjws.Headers {
	t.Helper()
	h := lestrjws.NewHeaders()
	if err := h.Set(lestrjws.KeyIDKey, kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	return h
}

func publicJWKSJSON(t *testing.T, sk *ecdsa.PrivateKey, kid string) []byte {
	t.Helper()
	key, err := jwk.New(sk.Public())
	if err != nil {
		t.Fatalf("jwk.New: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256.String()); err != nil {
		t.Fatalf("set alg: %v", err)
	}
	set := jwk.NewSet()
	set.Add(key)
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal set: %v", err)
	}
	return b
}

func TestDecodePayloadRoundTrips(t *testing.T) {
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	compact := signTestStatement(t, sk, "key-1", map[string]any{
		"iss": "https://ta.example",
		"sub": "https://ta.example",
		"iat": float64(1000),
		"exp": float64(2000),
	})

	decoded, err := DecodePayload(compact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Payload["iss"] != "https://ta.example" {
		t.Fatalf("unexpected payload: %+v", decoded.Payload)
	}
	if decoded.KeyID != "key-1" {
		t.Fatalf("unexpected kid: %q", decoded.KeyID)
	}
}

func TestVerifySignatureSucceeds(t *testing.T) {
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	compact := signTestStatement(t, sk, "key-1", map[string]any{
		"iss": "https://ta.example",
		"sub": "https://ta.example",
	})

	if err := VerifySignature(compact, publicJWKSJSON(t, sk, "key-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifySignatureUnknownKid(t *testing.T) {
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	compact := signTestStatement(t, sk, "key-1", map[string]any{"iss": "https://ta.example"})

	err = VerifySignature(compact, publicJWKSJSON(t, sk, "other-kid"))
	if !ferr.Is(err, ferr.VerificationFailed) {
		t.Fatalf("expected VerificationFailed, got %v", err)
	}
}

func TestVerifySignatureBadSignature(t *testing.T) {
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	compact := signTestStatement(t, sk, "key-1", map[string]any{"iss": "https://ta.example"})

	err = VerifySignature(compact, publicJWKSJSON(t, other, "key-1"))
	if !ferr.Is(err, ferr.VerificationFailed) {
		t.Fatalf("expected VerificationFailed, got %v", err)
	}
}
