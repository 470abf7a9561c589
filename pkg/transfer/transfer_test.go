package transfer

import "testing"

func TestBuildProducesDistinctDigestsPerPayload(t *testing.T) {
	b := New()
	seed := []byte("test-seed-value-0123456789abcdef")

	base := BuildRequest{
		Seed:              seed,
		Index:             0,
		SenderIdentity:    "SENDER",
		IdentityNonce:     1,
		Energy:            100,
		RecipientIdentity: "RECIPIENT",
		EffectPayload:     []byte("payload-a"),
	}
	resultA, err := b.Build(base)
	if err != nil {
		t.Fatalf("build a: %v", err)
	}

	modified := base
	modified.EffectPayload = []byte("payload-b")
	resultB, err := b.Build(modified)
	if err != nil {
		t.Fatalf("build b: %v", err)
	}

	if resultA.MessageDigest == resultB.MessageDigest {
		t.Fatalf("expected different payloads to produce different digests")
	}
	if resultA.Message == "" || resultA.Signature == "" {
		t.Fatalf("expected non-empty message and signature")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b := New()
	req := BuildRequest{
		Seed:              []byte("test-seed-value-0123456789abcdef"),
		Index:             3,
		SenderIdentity:    "SENDER",
		IdentityNonce:     5,
		Energy:            42,
		RecipientIdentity: "RECIPIENT",
		EffectPayload:     []byte("stable-payload"),
	}

	a, err := b.Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	c, err := b.Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if a != c {
		t.Fatalf("expected identical requests to produce identical results")
	}
}

func TestBuildRejectsMissingRecipient(t *testing.T) {
	b := New()
	_, err := b.Build(BuildRequest{
		Seed:           []byte("seed"),
		SenderIdentity: "SENDER",
	})
	if err == nil {
		t.Fatalf("expected error for missing recipient identity")
	}
}
