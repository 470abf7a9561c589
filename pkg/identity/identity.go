// Package identity derives a deterministic network identity from a
// client seed, which the transfer pipeline depends on. It is a supplemented collaborator: spec.md
// treats identity derivation as implicit in {seed, index}, never
// specifying the derivation itself, so qlient provides one concrete,
// fully-owned implementation rather than leaving a gap in the pipeline.
package identity

import (
	"encoding/hex"
	"fmt"

	"github.com/salahayoub/qlient/pkg/qcrypto"
)

// Identity is a derived public key plus its hex-encoded public identifier,
// the form used throughout the wire protocol's identity fields. It holds
// no signing key; PrivateKey re-derives that.
type Identity struct {
	Seed       []byte
	Index      uint32
	PublicHex  string
	PublicKey  [32]byte
}

// Derive produces the index'th identity under seed. Distinct indices
// under the same seed yield distinct, deterministic identities: the seed
// and a big-endian index are hashed through the configured XOF to a
// 32-byte sub-seed, then expanded into an Ed25519-family keypair.
func Derive(seed []byte, index uint32, xof qcrypto.XOF) (Identity, error) {
	if len(seed) == 0 {
		return Identity{}, fmt.Errorf("identity: seed must not be empty")
	}

	material := make([]byte, len(seed)+4)
	copy(material, seed)
	material[len(seed)+0] = byte(index >> 24)
	material[len(seed)+1] = byte(index >> 16)
	material[len(seed)+2] = byte(index >> 8)
	material[len(seed)+3] = byte(index)

	subSeed := xof.Sum(material, 32)
	pub, _ := qcrypto.GenerateKey(subSeed)

	return Identity{
		Seed:      seed,
		Index:     index,
		PublicHex: hex.EncodeToString(pub[:]),
		PublicKey: pub,
	}, nil
}

// PrivateKey recomputes the index'th identity's signing key from seed.
// Kept separate from Derive because callers that only need the public
// identifier (e.g. a status display) should never force an unnecessary
// re-derivation of signing material.
func PrivateKey(seed []byte, index uint32, xof qcrypto.XOF) ([]byte, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("identity: seed must not be empty")
	}
	material := make([]byte, len(seed)+4)
	copy(material, seed)
	material[len(seed)+0] = byte(index >> 24)
	material[len(seed)+1] = byte(index >> 16)
	material[len(seed)+2] = byte(index >> 8)
	material[len(seed)+3] = byte(index)
	subSeed := xof.Sum(material, 32)
	_, priv := qcrypto.GenerateKey(subSeed)
	return priv, nil
}
