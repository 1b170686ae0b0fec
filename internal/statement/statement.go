// Package statement is the typed view over a decoded entity statement
// payload (spec.md §3/§4.3): required-claim presence and crit/
// policy_language_crit enforcement, with no observable side effects.
package statement

import (
	"encoding/json"
	"fmt"

	"github.com/oidf-tools/ofresolve/internal/ferr"
)

// EntityType is one of the closed set of entity type tags spec.md §3
// defines for this core.
type EntityType string

const (
	OpenIDRelyingParty       EntityType = "openid_relying_party"
	OpenIDProvider           EntityType = "openid_provider"
	OAuthAuthorizationServer EntityType = "oauth_authorization_server"
	OAuthClient              EntityType = "oauth_client"
	OAuthResourceServer      EntityType = "oauth_resource_server"
	FederationEntityType     EntityType = "federation_entity"
	TrustMarkIssuer          EntityType = "trust_mark_issuer"
)

// ParamPolicy is a single parameter's metadata policy: operator name to
// operator value, e.g. {"subset_of": ["a","b"]}.
type ParamPolicy map[string]any

// TypePolicy maps a parameter name to its ParamPolicy, for a single
// entity type.
type TypePolicy map[string]ParamPolicy

// MetadataPolicy maps entity type to TypePolicy, spec.md §3.
type MetadataPolicy map[EntityType]TypePolicy

// Metadata maps entity type to a flat parameter map, spec.md §3.
type Metadata map[EntityType]map[string]any

// Constraints are optional path-length / naming restrictions a trust
// anchor or intermediate may declare.
type Constraints struct {
	MaxPathLength     *int               `json:"max_path_length,omitempty"`
	NamingConstraints *NamingConstraints `json:"naming_constraints,omitempty"`
}

// NamingConstraints restricts which subject names a chain may contain.
// Evaluation is not implemented (spec.md does not ask for it beyond
// carrying the field); the Resolver only enforces MaxPathLength.
type NamingConstraints struct {
	Permitted []string `json:"permitted,omitempty"`
	Excluded  []string `json:"excluded,omitempty"`
}

// knownClaims are the top-level claim names this implementation
// understands. Anything else in the payload is an "extra" claim that
// Verify checks against crit.
var knownClaims = map[string]bool{
	"iss": true, "sub": true, "iat": true, "exp": true,
	"jwks": true, "authority_hints": true, "metadata": true,
	"metadata_policy": true, "constraints": true, "crit": true,
	"policy_language_crit": true, "trust_marks": true,
}

// knownPolicyOperators are the operator names spec.md §4.5 defines.
var knownPolicyOperators = map[string]bool{
	"subset_of": true, "one_of": true, "superset_of": true,
	"add": true, "value": true, "default": true, "essential": true,
}

// Statement is a typed view over a decoded entity statement payload.
type Statement struct {
	Issuer             string          `json:"iss"`
	Subject            string          `json:"sub"`
	IssuedAt           int64           `json:"iat"`
	Expiration         int64           `json:"exp"`
	JWKS               json.RawMessage `json:"jwks,omitempty"`
	AuthorityHints     []string        `json:"authority_hints,omitempty"`
	Metadata           Metadata        `json:"metadata,omitempty"`
	MetadataPolicy     MetadataPolicy  `json:"metadata_policy,omitempty"`
	Constraints        *Constraints    `json:"constraints,omitempty"`
	Crit               []string        `json:"crit,omitempty"`
	PolicyLanguageCrit []string        `json:"policy_language_crit,omitempty"`
	TrustMarks         []any           `json:"trust_marks,omitempty"`

	// JWS is the original compact serialization this Statement was
	// decoded from, carried along so callers can re-emit it verbatim.
	JWS string `json:"-"`

	raw map[string]any
}

// FromPayload builds a Statement from an already-JSON-decoded payload
// (as produced by jws.DecodePayload), preserving the original compact
// serialization for re-emission.
func FromPayload(raw map[string]any, jwsCompact string) (*Statement, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, ferr.New(ferr.Malformed, err)
	}
	var s Statement
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, ferr.New(ferr.Malformed, err)
	}
	s.raw = raw
	s.JWS = jwsCompact
	return &s, nil
}

// IsSelfSigned reports whether this statement is an entity's own
// configuration (iss == sub).
func (s *Statement) IsSelfSigned() bool {
	return s.Issuer != "" && s.Issuer == s.Subject
}

// extraClaims returns the payload's top-level keys that this
// implementation does not model as a named field.
func (s *Statement) extraClaims() []string {
	var extra []string
	for k := range s.raw {
		if !knownClaims[k] {
			extra = append(extra, k)
		}
	}
	return extra
}

// Verify enforces spec.md §4.3's rules: required claims present,
// crit-list non-empty-if-present and fully understood, and the same
// rule recursively over every per-parameter policy via
// policy_language_crit. requireJWKS should be true for self-signed
// configurations and false for subordinate statements.
func (s *Statement) Verify(requireJWKS bool) error {
	if s.Issuer == "" {
		return ferr.Newf(ferr.MissingClaim, "statement is missing iss").WithSubject("iss")
	}
	if s.Subject == "" {
		return ferr.Newf(ferr.MissingClaim, "statement is missing sub").WithSubject("sub")
	}
	if s.IssuedAt == 0 {
		return ferr.Newf(ferr.MissingClaim, "statement is missing iat").WithSubject("iat")
	}
	if s.Expiration == 0 {
		return ferr.Newf(ferr.MissingClaim, "statement is missing exp").WithSubject("exp")
	}
	if requireJWKS && len(s.JWKS) == 0 {
		return ferr.Newf(ferr.MissingClaim, "self-signed configuration is missing jwks").WithSubject("jwks")
	}

	if critRaw, ok := s.raw["crit"]; ok {
		if crit, _ := critRaw.([]any); len(crit) == 0 {
			return ferr.Newf(ferr.Malformed, "crit must be a non-empty list when present")
		}
		if err := checkCritical(s.Crit, s.extraClaims()); err != nil {
			return err
		}
	}

	if s.MetadataPolicy != nil {
		if plcRaw, ok := s.raw["policy_language_crit"]; ok {
			if plc, _ := plcRaw.([]any); len(plc) == 0 {
				return ferr.Newf(ferr.Malformed, "policy_language_crit must be a non-empty list when present")
			}
		}
		for entityType, typePolicy := range s.MetadataPolicy {
			for param, paramPolicy := range typePolicy {
				var operators []string
				for op := range paramPolicy {
					if !knownPolicyOperators[op] {
						operators = append(operators, op)
					}
				}
				if len(operators) == 0 {
					continue
				}
				if err := checkCritical(s.PolicyLanguageCrit, operators); err != nil {
					return fmt.Errorf("metadata_policy[%s][%s]: %w", entityType, param, err)
				}
			}
		}
	}

	return nil
}

// checkCritical enforces: every name in extra that also appears in
// critList must be known (there is nothing unknown to check against
// here — by construction, "extra"/"operators" already only contains
// unknown names, so any overlap with critList is automatically a
// failure).
func checkCritical(critList []string, unknown []string) error {
	if len(critList) == 0 || len(unknown) == 0 {
		return nil
	}
	critSet := make(map[string]bool, len(critList))
	for _, c := range critList {
		critSet[c] = true
	}
	for _, name := range unknown {
		if critSet[name] {
			return ferr.Newf(ferr.UnknownCriticalExtension, "%s is marked critical but not understood", name).WithSubject(name)
		}
	}
	return nil
}

// Expired reports whether exp is at or before now (UNIX seconds).
func (s *Statement) Expired(now int64) bool {
	return s.Expiration <= now
}
