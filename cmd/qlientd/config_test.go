package main

import (
	"flag"
	"strings"
	"testing"
)

var testAdminKeyHex = strings.Repeat("ab", 32)

func TestParseFlagsSplitsComputors(t *testing.T) {
	fs := flag.NewFlagSet("qlientd", flag.ContinueOnError)
	cfg, err := ParseFlags(fs, []string{
		"--computors", "ws://a:1,ws://b:2, ws://c:3",
		"--admin-key", testAdminKeyHex,
		"--db", "/tmp/outbox.db",
	})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if len(cfg.Computors) != 3 {
		t.Fatalf("expected 3 computors, got %d", len(cfg.Computors))
	}
	if cfg.Computors[2] != "ws://c:3" {
		t.Fatalf("expected trimmed computor, got %q", cfg.Computors[2])
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfg := &DaemonConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for empty config")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &DaemonConfig{
		Computors:         []string{"ws://a:1"},
		AdminPublicKeyHex: testAdminKeyHex,
		DBPath:            "/tmp/outbox.db",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected well-formed config to validate, got %v", err)
	}
}

func TestAdminPublicKeyRejectsWrongLength(t *testing.T) {
	cfg := &DaemonConfig{AdminPublicKeyHex: "aabb"}
	if _, err := cfg.AdminPublicKey(); err == nil {
		t.Fatalf("expected error for wrong-length admin key")
	}
}
