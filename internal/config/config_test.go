package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "trust_anchors:\n  - https://ta.example\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.Timeout().Seconds() != 10 {
		t.Fatalf("unexpected timeout: %v", cfg.Timeout())
	}
}

func TestLoadRejectsNoTrustAnchors(t *testing.T) {
	path := writeConfig(t, "listen_addr: ':9090'\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing trust anchors")
	}
}

func TestLoadRejectsInvalidTrustAnchor(t *testing.T) {
	path := writeConfig(t, "trust_anchors:\n  - not-a-url\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid trust anchor")
	}
}

func TestAnchorIDsParsesEntries(t *testing.T) {
	path := writeConfig(t, "trust_anchors:\n  - https://ta.example\n  - https://ta2.example/\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids, err := cfg.AnchorIDs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0].String() != "https://ta.example" || ids[1].String() != "https://ta2.example" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
