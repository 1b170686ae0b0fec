// Package policy is the Policy Engine: Gather folds the metadata
// policies declared along a trust chain into one combined policy per
// parameter, and Apply transforms a leaf's metadata block under that
// combined policy (spec.md §4.5). Both operations are pure.
package policy

import (
	"fmt"
	"reflect"

	arrops "github.com/adam-hanna/arrayOperations"

	"github.com/oidf-tools/ofresolve/internal/ferr"
	"github.com/oidf-tools/ofresolve/internal/statement"
)

// Gather folds chain[i].metadata_policy[entityType] for every statement
// in chain, starting at the trust anchor (the last element) and working
// down to the leaf (the first element), per spec.md §4.5's table.
func Gather(chain []*statement.Statement, entityType statement.EntityType) (statement.TypePolicy, error) {
	combined := statement.TypePolicy{}
	for i := len(chain) - 1; i >= 0; i-- {
		typePolicy, ok := chain[i].MetadataPolicy[entityType]
		if !ok {
			continue
		}
		for param, incoming := range typePolicy {
			merged, err := combineParam(combined[param], incoming)
			if err != nil {
				return nil, fmt.Errorf("combining policy for %s.%s: %w", entityType, param, err)
			}
			combined[param] = merged
		}
	}
	for param, p := range combined {
		if err := checkValueConsistency(p); err != nil {
			return nil, fmt.Errorf("policy for %s.%s: %w", entityType, param, err)
		}
	}
	return combined, nil
}

// combineParam folds existing (the state already combined from statements
// closer to the trust anchor) with incoming, the ParamPolicy of the next
// statement down the chain.
func combineParam(existing statement.ParamPolicy, incoming statement.ParamPolicy) (statement.ParamPolicy, error) {
	if existing == nil {
		existing = statement.ParamPolicy{}
	}
	result := make(statement.ParamPolicy, len(existing))
	for k, v := range existing {
		result[k] = v
	}

	for op, incomingVal := range incoming {
		switch op {
		case "subset_of", "one_of":
			incomingSet := toStringSlice(incomingVal)
			if prior, ok := result[op]; ok {
				merged := intersect(toStringSlice(prior), incomingSet)
				if len(merged) == 0 {
					return nil, ferr.Newf(ferr.PolicyConflict, "%s intersection is empty", op)
				}
				result[op] = merged
			} else {
				result[op] = incomingSet
			}
		case "superset_of":
			incomingSet := toStringSlice(incomingVal)
			if prior, ok := result[op]; ok {
				result[op] = union(toStringSlice(prior), incomingSet)
			} else {
				result[op] = incomingSet
			}
		case "add":
			incomingSet := toStringSlice(incomingVal)
			if prior, ok := result[op]; ok {
				result[op] = union(toStringSlice(prior), incomingSet)
			} else {
				result[op] = incomingSet
			}
		case "value":
			if prior, ok := result[op]; ok {
				if !reflect.DeepEqual(prior, incomingVal) {
					return nil, ferr.Newf(ferr.PolicyConflict, "conflicting value declarations")
				}
			}
			result[op] = incomingVal
			delete(result, "default")
		case "default":
			if _, hasValue := result["value"]; hasValue {
				continue
			}
			if prior, ok := result[op]; ok {
				if !reflect.DeepEqual(prior, incomingVal) {
					return nil, ferr.Newf(ferr.PolicyConflict, "conflicting default declarations")
				}
			}
			result[op] = incomingVal
		case "essential":
			prior, _ := result[op].(bool)
			next, _ := incomingVal.(bool)
			result[op] = prior || next
		default:
			// Unknown operators pass through untouched; Statement.Verify
			// already rejected any that were marked critical-and-unknown.
			result[op] = incomingVal
		}
	}
	return result, nil
}

// checkValueConsistency enforces that a combined value/default is
// consistent with any subset_of/one_of also declared for the parameter.
func checkValueConsistency(p statement.ParamPolicy) error {
	value, hasValue := p["value"]
	def, hasDefault := p["default"]
	check := func(v any) error {
		if subsetRaw, ok := p["subset_of"]; ok {
			allowed := toStringSlice(subsetRaw)
			for _, e := range toStringSlice(v) {
				if !contains(allowed, e) {
					return ferr.Newf(ferr.PolicyConflict, "%v is not within subset_of %v", e, allowed)
				}
			}
		}
		if oneOfRaw, ok := p["one_of"]; ok {
			allowed := toStringSlice(oneOfRaw)
			if !valueMember(v, allowed) {
				return ferr.Newf(ferr.PolicyConflict, "%v is not one_of %v", v, allowed)
			}
		}
		return nil
	}
	if hasValue {
		if err := check(value); err != nil {
			return err
		}
	}
	if hasDefault {
		if err := check(def); err != nil {
			return err
		}
	}
	return nil
}

// Apply transforms metadata under combined, per spec.md §4.5 steps 1-6.
func Apply(metadata map[string]any, combined statement.TypePolicy) (map[string]any, error) {
	result := make(map[string]any, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}

	for param, p := range combined {
		if value, ok := p["value"]; ok {
			result[param] = value
		} else if _, present := result[param]; !present {
			if def, ok := p["default"]; ok {
				result[param] = def
			}
		}

		if addRaw, ok := p["add"]; ok {
			result[param] = dedupAppend(toStringSlice(result[param]), toStringSlice(addRaw))
		}

		if subsetRaw, ok := p["subset_of"]; ok {
			allowed := toStringSlice(subsetRaw)
			for _, e := range toStringSlice(result[param]) {
				if !contains(allowed, e) {
					return nil, ferr.Newf(ferr.PolicyViolation, "%s: %v is not within subset_of %v", param, e, allowed)
				}
			}
		}

		if oneOfRaw, ok := p["one_of"]; ok {
			allowed := toStringSlice(oneOfRaw)
			if _, present := result[param]; present {
				if !valueMember(result[param], allowed) {
					return nil, ferr.Newf(ferr.PolicyViolation, "%s: %v is not one_of %v", param, result[param], allowed)
				}
			}
		}

		if supersetRaw, ok := p["superset_of"]; ok {
			required := toStringSlice(supersetRaw)
			have := toStringSlice(result[param])
			for _, r := range required {
				if !contains(have, r) {
					return nil, ferr.Newf(ferr.PolicyViolation, "%s: missing required element %v from superset_of", param, r)
				}
			}
		}

		if essential, _ := p["essential"].(bool); essential {
			if _, present := result[param]; !present {
				return nil, ferr.Newf(ferr.PolicyViolation, "%s is essential but absent after policy application", param)
			}
		}
	}

	return result, nil
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{t}
	default:
		return nil
	}
}

func valueMember(v any, allowed []string) bool {
	if s, ok := v.(string); ok {
		return contains(allowed, s)
	}
	for _, e := range toStringSlice(v) {
		if !contains(allowed, e) {
			return false
		}
	}
	return len(toStringSlice(v)) > 0
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func dedupAppend(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base)+len(extra))
	for _, b := range base {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	for _, e := range extra {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	if a == nil || b == nil {
		return nil
	}
	result, err := arrops.Intersect(a, b)
	if err != nil {
		return intersectFallback(a, b)
	}
	if s, ok := result.([]string); ok {
		return s
	}
	return intersectFallback(a, b)
}

func union(a, b []string) []string {
	result, err := arrops.Union(a, b)
	if err != nil {
		return dedupAppend(a, b)
	}
	if s, ok := result.([]string); ok {
		return s
	}
	return dedupAppend(a, b)
}

// intersectFallback is used if arrayOperations ever returns a type this
// package doesn't expect (its reflection-based API predates generics).
func intersectFallback(a, b []string) []string {
	bSet := make(map[string]bool, len(b))
	for _, e := range b {
		bSet[e] = true
	}
	var out []string
	for _, e := range a {
		if bSet[e] {
			out = append(out, e)
		}
	}
	return out
}
