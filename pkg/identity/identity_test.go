package identity

import (
	"testing"

	"github.com/salahayoub/qlient/pkg/qcrypto"
)

func TestDeriveIsDeterministic(t *testing.T) {
	seed := []byte("test-seed-value-0123456789abcdef")
	xof := qcrypto.NewXOF()

	a, err := Derive(seed, 0, xof)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Derive(seed, 0, xof)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a.PublicHex != b.PublicHex {
		t.Fatalf("expected deterministic derivation, got %s vs %s", a.PublicHex, b.PublicHex)
	}
}

func TestDeriveDiffersByIndex(t *testing.T) {
	seed := []byte("test-seed-value-0123456789abcdef")
	xof := qcrypto.NewXOF()

	a, err := Derive(seed, 0, xof)
	if err != nil {
		t.Fatalf("derive 0: %v", err)
	}
	b, err := Derive(seed, 1, xof)
	if err != nil {
		t.Fatalf("derive 1: %v", err)
	}
	if a.PublicHex == b.PublicHex {
		t.Fatalf("expected distinct indices to produce distinct identities")
	}
}

func TestDeriveRejectsEmptySeed(t *testing.T) {
	if _, err := Derive(nil, 0, qcrypto.NewXOF()); err == nil {
		t.Fatalf("expected error for empty seed")
	}
}

func TestPrivateKeyMatchesDerivedPublic(t *testing.T) {
	seed := []byte("test-seed-value-0123456789abcdef")
	xof := qcrypto.NewXOF()

	id, err := Derive(seed, 2, xof)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	priv, err := PrivateKey(seed, 2, xof)
	if err != nil {
		t.Fatalf("private key: %v", err)
	}

	msg := []byte("probe")
	sig := qcrypto.Sign(priv, msg)
	if !qcrypto.NewVerifier().Verify(id.PublicKey, msg, sig) {
		t.Fatalf("expected signature from derived private key to verify against derived public key")
	}
}
