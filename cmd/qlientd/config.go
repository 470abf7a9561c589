// Package main provides the qlientd daemon: a standalone connection core
// that maintains quorum-verified sync state against a fixed set of
// computors and exposes it over HTTP.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

// DaemonConfig holds parsed CLI configuration for qlientd.
type DaemonConfig struct {
	Computors               []string      // --computors (comma-separated ws:// URLs)
	SynchronizationInterval time.Duration // --sync-interval
	AdminPublicKeyHex       string        // --admin-key (32-byte hex)
	DBPath                  string        // --db
	HTTPPort                int           // --http-port
	ReconnectDelay          time.Duration // --reconnect-delay
}

// ParseFlags parses command-line flags into DaemonConfig. It uses the
// provided flag.FlagSet to allow testing with custom arguments.
func ParseFlags(fs *flag.FlagSet, args []string) (*DaemonConfig, error) {
	cfg := &DaemonConfig{}

	var computorsStr string
	fs.StringVar(&computorsStr, "computors", "", "Comma-separated computor websocket URLs (required)")
	fs.DurationVar(&cfg.SynchronizationInterval, "sync-interval", 10*time.Second, "Watchdog interval before demoting sync to 0")
	fs.StringVar(&cfg.AdminPublicKeyHex, "admin-key", "", "32-byte hex admin public key (required)")
	fs.StringVar(&cfg.DBPath, "db", "", "Outbox BoltDB path (required)")
	fs.IntVar(&cfg.HTTPPort, "http-port", 8080, "HTTP status server port")
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", 100*time.Millisecond, "Fixed peer reconnect delay")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if computorsStr != "" {
		cfg.Computors = parseComputors(computorsStr)
	}

	return cfg, nil
}

func parseComputors(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks that all required fields are present and well-formed.
func (c *DaemonConfig) Validate() error {
	var errs []string

	if len(c.Computors) == 0 {
		errs = append(errs, "missing required flag: --computors")
	}
	if c.AdminPublicKeyHex == "" {
		errs = append(errs, "missing required flag: --admin-key")
	} else if _, err := c.AdminPublicKey(); err != nil {
		errs = append(errs, fmt.Sprintf("invalid --admin-key: %v", err))
	}
	if c.DBPath == "" {
		errs = append(errs, "missing required flag: --db")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// AdminPublicKey decodes the configured hex admin public key.
func (c *DaemonConfig) AdminPublicKey() ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(c.AdminPublicKeyHex)
	if err != nil {
		return out, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
