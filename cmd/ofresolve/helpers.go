package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/oidf-tools/ofresolve/internal/entityid"
)

// anchorIDs resolves the effective trust anchor set for a run: --anchor
// flags take precedence, falling back to --config's trust_anchors when
// none were given on the command line.
func anchorIDs() ([]entityid.ID, error) {
	if len(anchorArgs) > 0 {
		ids := make([]entityid.ID, 0, len(anchorArgs))
		for _, raw := range anchorArgs {
			id, err := entityid.Parse(raw)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no trust anchors given: pass --anchor or --config")
	}
	return cfg.AnchorIDs()
}

// singleAnchorID resolves exactly one trust anchor, for operations that
// require it (resolve_entity, spec.md §4.9).
func singleAnchorID() (entityid.ID, error) {
	ids, err := anchorIDs()
	if err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", fmt.Errorf("this operation requires exactly one trust anchor, got %d", len(ids))
	}
	return ids[0], nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeExport writes content to --export's path.
func writeExport(content string) error {
	if exportPath == "" {
		return nil
	}
	return os.WriteFile(exportPath, []byte(content), 0o644)
}

// isDotExport reports whether --export names a .dot file; anything else
// is rendered as JSON.
func isDotExport() bool {
	return strings.HasSuffix(exportPath, ".dot")
}
