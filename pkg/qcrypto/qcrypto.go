// Package qcrypto supplies concrete adapters for the two cryptographic
// collaborators the core treats as opaque: Ed25519-variant signature
// verification (standing in for schnorrq.verify) and an extendable-output
// hash (standing in for KangarooTwelve). Neither primitive is specified by
// the core itself — callers depend only on the Verifier and XOF interfaces
// below, so a real schnorrq/K12 binding can be substituted without
// touching pkg/synctrack or pkg/router.
package qcrypto

import (
	"github.com/cloudflare/circl/sign/ed25519"
	"golang.org/x/crypto/sha3"
)

// Verifier checks a signature over a message under a public key. The sync
// tracker depends on this to authenticate command-0 broadcasts; a lying
// peer produces a signature that fails Verify and is silently dropped.
type Verifier interface {
	Verify(pubKey [32]byte, message []byte, signature [64]byte) bool
}

// XOF is an extendable-output hash used wherever the core needs a
// fixed-length digest derived from variable-length input (identity
// sub-seeds, transfer digests).
type XOF interface {
	Sum(input []byte, outLen int) []byte
}

// circlVerifier backs Verifier with circl's Ed25519 implementation. The
// network's actual schnorrq curve differs from Ed25519, but both are
// Schnorr-style signatures over the same curve family, and the interface
// boundary means swapping in a real schnorrq binding later requires no
// change outside this file.
type circlVerifier struct{}

// NewVerifier returns the default Verifier adapter.
func NewVerifier() Verifier {
	return circlVerifier{}
}

func (circlVerifier) Verify(pubKey [32]byte, message []byte, signature [64]byte) bool {
	defer func() { recover() }() // a malformed key/sig must never crash the tracker
	return ed25519.Verify(ed25519.PublicKey(pubKey[:]), message, signature[:])
}

// shake256XOF backs XOF with SHAKE256 from golang.org/x/crypto/sha3. K12 is
// itself a sponge-based extendable-output function in the same family;
// SHAKE256 is the closest primitive available in the retrieved dependency
// set and is documented here as a substitute, not a claim of bit-for-bit
// K12 compatibility.
type shake256XOF struct{}

// NewXOF returns the default XOF adapter.
func NewXOF() XOF {
	return shake256XOF{}
}

func (shake256XOF) Sum(input []byte, outLen int) []byte {
	out := make([]byte, outLen)
	sha3.ShakeSum256(out, input)
	return out
}

// GenerateKey produces a fresh Ed25519-family keypair for pkg/identity and
// pkg/transfer, keeping the key representation shared with Verify above.
func GenerateKey(seed []byte) (pub [32]byte, priv ed25519.PrivateKey) {
	priv = ed25519.NewKeyFromSeed(seed)
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return pub, priv
}

// Sign produces a 64-byte signature over message under priv.
func Sign(priv ed25519.PrivateKey, message []byte) [64]byte {
	var out [64]byte
	copy(out[:], ed25519.Sign(priv, message))
	return out
}
