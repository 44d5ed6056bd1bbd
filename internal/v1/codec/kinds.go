// Package codec implements the binary wire protocol: a single-byte kind tag
// followed by a little-endian, length-prefixed body. Every exported decode
// function returns a concrete Go struct — no payload is ever passed upward
// as an untyped blob past this package's boundary.
package codec

import "errors"

// Kind is the one-byte tag that opens every frame body.
type Kind byte

const (
	KindClientTransform  Kind = 1
	KindRoomTransform    Kind = 2
	KindRPC              Kind = 3
	KindDeviceIdMapping  Kind = 6
	KindGlobalVarSet     Kind = 7
	KindGlobalVarSync    Kind = 8
	KindClientVarSet     Kind = 9
	KindClientVarSync    Kind = 10
	KindRPCTargeted      Kind = 11
	KindSnapshot         Kind = 0x20
	KindDelta            Kind = 0x21
	KindDeltaAck         Kind = 0x22
	KindNameTableFull    Kind = 0x30
	KindNameTableDelta   Kind = 0x31
	KindNameTableDigest  Kind = 0x32
	KindHello            Kind = 0xFE // handshake frame; not part of the tagged-union wire family above
)

// Limits from the wire protocol (§6.1) and CLI defaults (§6.3) that the
// codec itself enforces regardless of what config.Config says, since they
// are hard-coded by the byte layout (a u8 length prefix cannot carry more).
const (
	maxShortString  = 255          // 1-byte length prefix
	maxLongString   = 65535        // 2-byte length prefix
	maxRPCTargets   = 100
	maxVirtuals     = 50
	maxFnNameBytes  = 255
	maxAppIDBytes   = 128
	maxDeviceIDBytes = 64
)

// ErrTruncated indicates a frame ended before its declared length was
// satisfied — a protocol-format error per §7, dropped silently by callers.
var ErrTruncated = errors.New("codec: truncated frame")

// ErrUnknownKind indicates the first byte did not match any known Kind.
var ErrUnknownKind = errors.New("codec: unknown message kind")

// ErrFieldTooLong indicates a source field exceeds what its length prefix
// can encode; per §4.1 this is an encoding error, not a silent clamp,
// distinct from the NV name/value truncation policy (§4.7.1) which is
// applied by the nv package before the codec ever sees the value.
var ErrFieldTooLong = errors.New("codec: field exceeds wire length limit")
