// Package transfer supplies a concrete, qlient-owned implementation of
// the transfer.build collaborator spec.md §6 names but never defines: it
// turns a recipient, an amount-bearing effect payload, and a sender
// identity into the signed {digest, message, signature} triple the
// Outbox and the Request Router's command 3 both consume.
package transfer

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/salahayoub/qlient/pkg/identity"
	"github.com/salahayoub/qlient/pkg/qcrypto"
)

// BuildRequest carries every input the builder needs to assemble and
// sign one transfer.
type BuildRequest struct {
	Seed              []byte
	Index             uint32
	SenderIdentity    string
	IdentityNonce     uint64
	Energy            uint64
	RecipientIdentity string
	EffectPayload     []byte
}

// BuildResult is the signed triple the rest of the pipeline (Outbox,
// Router command 3) treats as opaque.
type BuildResult struct {
	MessageDigest string // 32-byte hex
	Message       string // base64
	Signature     string // base64
}

// Builder assembles and signs transfers. The interface boundary lets
// pkg/core depend on a Builder without committing to this package's
// concrete message layout.
type Builder interface {
	Build(req BuildRequest) (BuildResult, error)
}

// builder is the default Builder, built on pkg/identity for key
// derivation and pkg/qcrypto for signing and digesting.
type builder struct {
	xof qcrypto.XOF
}

// New returns the default Builder.
func New() Builder {
	return builder{xof: qcrypto.NewXOF()}
}

// Build assembles the wire message for a transfer — length-prefixed
// sender identity and recipient identity, then the identity nonce and
// energy as fixed-width big-endian uint64s, then the length-prefixed
// effect payload, so the layout is unambiguous — signs it with the
// sender's derived key, and returns the digest used to correlate status
// queries against it later.
func (b builder) Build(req BuildRequest) (BuildResult, error) {
	if req.RecipientIdentity == "" {
		return BuildResult{}, fmt.Errorf("transfer: recipient identity required")
	}
	if req.SenderIdentity == "" {
		return BuildResult{}, fmt.Errorf("transfer: sender identity required")
	}

	message := encodeMessage(req)

	priv, err := identity.PrivateKey(req.Seed, req.Index, b.xof)
	if err != nil {
		return BuildResult{}, fmt.Errorf("transfer: derive signing key: %w", err)
	}
	sig := qcrypto.Sign(priv, message)
	digest := b.xof.Sum(message, 32)

	return BuildResult{
		MessageDigest: hex.EncodeToString(digest),
		Message:       base64.StdEncoding.EncodeToString(message),
		Signature:     base64.StdEncoding.EncodeToString(sig[:]),
	}, nil
}

func encodeMessage(req BuildRequest) []byte {
	buf := make([]byte, 0, len(req.SenderIdentity)+len(req.RecipientIdentity)+len(req.EffectPayload)+32)
	buf = appendLenPrefixed(buf, []byte(req.SenderIdentity))
	buf = appendLenPrefixed(buf, []byte(req.RecipientIdentity))

	var numeric [16]byte
	binary.BigEndian.PutUint64(numeric[0:8], req.IdentityNonce)
	binary.BigEndian.PutUint64(numeric[8:16], req.Energy)
	buf = append(buf, numeric[:]...)

	buf = appendLenPrefixed(buf, req.EffectPayload)
	return buf
}

func appendLenPrefixed(buf, field []byte) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(field)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, field...)
}
