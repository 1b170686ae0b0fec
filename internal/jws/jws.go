// Package jws decodes and verifies the compact JWS wrapper around an
// OpenID Federation entity statement. Decoding never fails a signature
// check — the payload's own claims (including its jwks) are sometimes
// needed before a verification key set is known — so decode and verify
// are deliberately separate operations, per spec.md §4.2.
package jws

import (
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
	lestrjws "github.com/lestrrat-go/jwx/jws"

	"github.com/oidf-tools/ofresolve/internal/ferr"
)

// Decoded is the parsed, not-yet-verified payload of a compact JWS,
// along with the protected-header fields needed to later verify it.
type Decoded struct {
	Payload map[string]any
	KeyID   string
	Alg     jwa.SignatureAlgorithm

	raw []byte
}

// DecodePayload splits a compact JWS, base64url-decodes the payload, and
// parses it as a JSON object. A non-object payload or a malformed
// compact string is ferr.Malformed.
func DecodePayload(compact string) (*Decoded, error) {
	msg, err := lestrjws.Parse([]byte(compact))
	if err != nil {
		return nil, ferr.New(ferr.Malformed, err)
	}
	if len(msg.Signatures()) != 1 {
		return nil, ferr.Newf(ferr.Malformed, "expected exactly one JWS signature, got %d", len(msg.Signatures()))
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		return nil, ferr.New(ferr.Malformed, fmt.Errorf("payload is not a JSON object: %w", err))
	}
	if payload == nil {
		return nil, ferr.Newf(ferr.Malformed, "payload is not a JSON object")
	}

	hdr := msg.Signatures()[0].ProtectedHeaders()
	return &Decoded{
		Payload: payload,
		KeyID:   hdr.KeyID(),
		Alg:     hdr.Algorithm(),
		raw:     []byte(compact),
	}, nil
}

// VerifySignature verifies a compact JWS against the given JWKS (raw
// JSON bytes). The key is selected by the header's kid; the header's alg
// must match the key's own declared algorithm when the key declares one.
func VerifySignature(compact string, jwksJSON []byte) error {
	decoded, err := DecodePayload(compact)
	if err != nil {
		return err
	}
	if decoded.KeyID == "" {
		return ferr.Newf(ferr.VerificationFailed, "JWS header carries no kid")
	}

	set, err := jwk.Parse(jwksJSON)
	if err != nil {
		return ferr.New(ferr.Malformed, fmt.Errorf("invalid jwks: %w", err))
	}

	key, ok := set.LookupKeyID(decoded.KeyID)
	if !ok {
		return ferr.Newf(ferr.VerificationFailed, "no key matching kid %q in jwks", decoded.KeyID).WithSubject(decoded.KeyID)
	}
	if keyAlg := key.Algorithm(); keyAlg != "" && keyAlg != decoded.Alg.String() {
		return ferr.Newf(ferr.VerificationFailed, "header alg %s does not match key alg %s", decoded.Alg, keyAlg)
	}

	var rawKey any
	if err := key.Raw(&rawKey); err != nil {
		return ferr.New(ferr.VerificationFailed, fmt.Errorf("could not materialize verification key: %w", err))
	}

	if _, err := lestrjws.Verify(decoded.raw, decoded.Alg, rawKey); err != nil {
		return ferr.New(ferr.VerificationFailed, err)
	}
	return nil
}
