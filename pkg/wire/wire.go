// Package wire defines the peer protocol frames exchanged between a qlient
// core and a computor (ledger node): the command/reply JSON shapes, frame
// encode/decode, and the fixed byte layout signed by the network admin key
// for sync broadcasts.
package wire

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Command tags recognized by the peer protocol. Values and direction match
// the wire table in the network specification; qlient never invents new
// command tags.
const (
	CommandInfo             = 0 // inbound server push: signed (epoch, tick)
	CommandIdentityNonce    = 1 // client -> peer: fetch identity nonce
	CommandEnergy           = 2 // client -> peer: fetch identity energy
	CommandSubmitTransfer   = 3 // client -> peer: fire-and-forget transfer submission
	CommandTransferStatus   = 4 // client -> peer: inclusion/rejection status query
	CommandEnvironmentSub   = 5 // client -> peer: subscribe to a streaming environment
	CommandEnvironmentUnsub = 6 // client -> peer: unsubscribe from an environment
)

// MaxFrameSize bounds a single frame to guard against a misbehaving or
// compromised peer sending unbounded payloads.
const MaxFrameSize = 1 << 20

// Frame is the minimal shape every inbound message must parse as: a command
// tag plus the raw bytes so callers can re-decode into the command-specific
// type once the tag is known.
type Frame struct {
	Command int             `json:"command"`
	Raw     json.RawMessage `json:"-"`
}

// ErrFrameTooLarge is returned by Decode when a frame exceeds MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("wire: frame exceeds %d bytes", MaxFrameSize)

// Decode parses a self-contained frame and reports its command tag. The
// caller re-unmarshals raw into the command-specific reply type. A parse
// failure here is the trigger for Peer Session's close-and-reconnect path;
// it is never retried in place.
func Decode(raw []byte) (Frame, error) {
	if len(raw) > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}
	var head struct {
		Command int `json:"command"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Frame{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	return Frame{Command: head.Command, Raw: json.RawMessage(raw)}, nil
}

// InfoMsg is the command-0 server push: a signed (epoch, tick) broadcast.
type InfoMsg struct {
	Command   int    `json:"command"`
	Epoch     uint32 `json:"epoch"`
	Tick      uint16 `json:"tick"`
	Signature string `json:"signature"` // base64
}

// SyncPayload builds the exact 6-byte buffer the admin signature covers:
// big-endian epoch at offset 0, big-endian tick at offset 4.
func SyncPayload(epoch uint32, tick uint16) [6]byte {
	var buf [6]byte
	binary.BigEndian.PutUint32(buf[0:4], epoch)
	binary.BigEndian.PutUint16(buf[4:6], tick)
	return buf
}

// DecodeSignature base64-decodes and validates the 64-byte signature length.
func (m InfoMsg) DecodeSignature() ([64]byte, error) {
	var out [64]byte
	raw, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return out, fmt.Errorf("wire: decode signature: %w", err)
	}
	if len(raw) != 64 {
		return out, fmt.Errorf("wire: signature length %d, want 64", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// IdentityNonceReq/Reply implement command 1.
type IdentityNonceReq struct {
	Command  int    `json:"command"`
	Identity string `json:"identity"`
}

type IdentityNonceReply struct {
	Command       int    `json:"command"`
	Identity      string `json:"identity"`
	IdentityNonce uint64 `json:"identityNonce"`
}

// EnergyReq/Reply implement command 2.
type EnergyReq struct {
	Command  int    `json:"command"`
	Identity string `json:"identity"`
}

type EnergyReply struct {
	Command  int    `json:"command"`
	Identity string `json:"identity"`
	Energy   uint64 `json:"energy"`
}

// SubmitTransferReq implements command 3. It has no reply: submission is
// fire-and-forget per the router's dispatch rule.
type SubmitTransferReq struct {
	Command   int    `json:"command"`
	Message   string `json:"message"`   // base64
	Signature string `json:"signature"` // base64
}

// TransferStatusReq/Reply implement command 4.
type TransferStatusReq struct {
	Command       int    `json:"command"`
	MessageDigest string `json:"messageDigest"`
}

// TransferStatusReply covers both the inclusion and the rejection shapes;
// exactly one of InclusionState or Reason is meaningful, distinguished by
// the Reason field being non-empty (mirrors the union described in the
// protocol table).
type TransferStatusReply struct {
	Command        int    `json:"command"`
	MessageDigest  string `json:"messageDigest"`
	InclusionState bool   `json:"inclusionState,omitempty"`
	Tick           uint16 `json:"tick,omitempty"`
	Epoch          uint32 `json:"epoch,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// IsRejection reports whether this reply carries a rejection reason rather
// than an inclusion verdict.
func (r TransferStatusReply) IsRejection() bool {
	return r.Reason != ""
}

// EnvironmentSubReq/UnsubReq implement commands 5 and 6.
type EnvironmentSubReq struct {
	Command           int    `json:"command"`
	EnvironmentDigest string `json:"environmentDigest"`
}

type EnvironmentUnsubReq struct {
	Command           int    `json:"command"`
	EnvironmentDigest string `json:"environmentDigest"`
}

// EnvironmentDataEvent is a streaming command-5 push carrying topic data.
type EnvironmentDataEvent struct {
	Command           int             `json:"command"`
	EnvironmentDigest string          `json:"environmentDigest"`
	Data              json.RawMessage `json:"data"`
}

// Encode canonicalizes a request value to bytes for transmission and for
// use as the replay-buffer entry. Canonical here means "whatever
// encoding/json produces for this Go value" — peers are assumed to
// serialize identically, so quorum comparison never needs to normalize
// field order itself (see pkg/quorum).
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return b, nil
}
