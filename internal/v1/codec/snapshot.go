// Package codec: the MessagePack-encoded delta-protocol envelopes (kinds
// 0x20-0x22, 0x30-0x32). Field names and shapes follow §4.7's flush/resync
// algebra; encoding uses vmihailenco/msgpack/v5 rather than hand-rolled
// framing since these payloads are maps of heterogeneous, optional fields.
package codec

import "github.com/vmihailenco/msgpack/v5"

// NameTablePayload is the embedded name-table summary carried inside a
// Snapshot, and the full body of a NameTableFull message.
type NameTablePayload struct {
	Version uint64                 `msgpack:"version"`
	Entries []NameTableEntryWire   `msgpack:"entries"`
	Count   int                    `msgpack:"count"`
	CRC32   uint32                 `msgpack:"crc32"`
}

// NameTableEntryWire is one (nameID, name) row as carried on the wire.
type NameTableEntryWire struct {
	NameID uint16 `msgpack:"nameId"`
	Name   string `msgpack:"name"`
}

// SnapshotPayload is kind 0x20: full room state plus the name-table digest,
// sent in response to a resync requirement (§4.7 "Resync").
type SnapshotPayload struct {
	Type     byte                      `msgpack:"type"`
	RoomID   string                    `msgpack:"roomId"`
	NVSeq    uint64                    `msgpack:"nvSeq"`
	Globals  map[uint16]string         `msgpack:"globals"`
	Clients  map[uint16]map[uint16]string `msgpack:"clients"`
	NameTable NameTablePayload         `msgpack:"nameTable"`
}

// EncodeSnapshot wraps a SnapshotPayload's fields with the kind tag and
// MessagePack-encodes the whole envelope.
func EncodeSnapshot(p SnapshotPayload) ([]byte, error) {
	p.Type = byte(KindSnapshot)
	return msgpack.Marshal(p)
}

// DecodeSnapshot parses a MessagePack-encoded Snapshot envelope.
func DecodeSnapshot(body []byte) (SnapshotPayload, error) {
	var p SnapshotPayload
	err := msgpack.Unmarshal(body, &p)
	return p, err
}

// DeltaItem is one mutation row inside a Delta payload, mirroring
// DeltaRecord.to_payload(): clientNo/value are omitted when not applicable.
type DeltaItem struct {
	Seq      uint64  `msgpack:"seq"`
	Scope    string  `msgpack:"scope"` // "g" or "c"
	Op       string  `msgpack:"op"`    // "set" or "del"
	NameID   uint16  `msgpack:"nameId"`
	ClientNo *uint16 `msgpack:"clientNo,omitempty"`
	Value    *string `msgpack:"value,omitempty"`
}

// DeltaPayload is kind 0x21: an ordered batch of NV mutations since BaseSeq.
type DeltaPayload struct {
	Type    byte        `msgpack:"type"`
	RoomID  string      `msgpack:"roomId"`
	BaseSeq uint64      `msgpack:"baseSeq"`
	Items   []DeltaItem `msgpack:"items"`
}

// EncodeDelta wraps and MessagePack-encodes a Delta envelope.
func EncodeDelta(p DeltaPayload) ([]byte, error) {
	p.Type = byte(KindDelta)
	return msgpack.Marshal(p)
}

// DecodeDelta parses a MessagePack-encoded Delta envelope.
func DecodeDelta(body []byte) (DeltaPayload, error) {
	var p DeltaPayload
	err := msgpack.Unmarshal(body, &p)
	return p, err
}

// DeltaAckPayload is kind 0x22: a client's acknowledgment of the last
// sequence number it has applied, driving the resync decision (§4.7).
type DeltaAckPayload struct {
	Type    byte   `msgpack:"type"`
	RoomID  string `msgpack:"roomId"`
	LastSeq uint64 `msgpack:"lastSeq"`
}

// EncodeDeltaAck wraps and MessagePack-encodes a DeltaAck envelope.
func EncodeDeltaAck(p DeltaAckPayload) ([]byte, error) {
	p.Type = byte(KindDeltaAck)
	return msgpack.Marshal(p)
}

// DecodeDeltaAck parses a MessagePack-encoded DeltaAck envelope.
func DecodeDeltaAck(body []byte) (DeltaAckPayload, error) {
	var p DeltaAckPayload
	err := msgpack.Unmarshal(body, &p)
	return p, err
}

// NameTableFullPayload is kind 0x30: the complete name table, sent
// alongside a Snapshot or on first room join.
type NameTableFullPayload struct {
	Type      byte             `msgpack:"type"`
	RoomID    string           `msgpack:"roomId"`
	NameTable NameTablePayload `msgpack:"nameTable"`
}

// EncodeNameTableFull wraps and MessagePack-encodes a NameTableFull envelope.
func EncodeNameTableFull(p NameTableFullPayload) ([]byte, error) {
	p.Type = byte(KindNameTableFull)
	return msgpack.Marshal(p)
}

// DecodeNameTableFull parses a MessagePack-encoded NameTableFull envelope.
func DecodeNameTableFull(body []byte) (NameTableFullPayload, error) {
	var p NameTableFullPayload
	err := msgpack.Unmarshal(body, &p)
	return p, err
}

// NameTableDeltaPayload is kind 0x31: names interned since BaseVersion.
type NameTableDeltaPayload struct {
	Type        byte                 `msgpack:"type"`
	RoomID      string               `msgpack:"roomId"`
	BaseVersion uint64               `msgpack:"baseVersion"`
	Added       []NameTableEntryWire `msgpack:"added"`
	NewVersion  uint64               `msgpack:"newVersion"`
}

// EncodeNameTableDelta wraps and MessagePack-encodes a NameTableDelta
// envelope.
func EncodeNameTableDelta(p NameTableDeltaPayload) ([]byte, error) {
	p.Type = byte(KindNameTableDelta)
	return msgpack.Marshal(p)
}

// DecodeNameTableDelta parses a MessagePack-encoded NameTableDelta envelope.
func DecodeNameTableDelta(body []byte) (NameTableDeltaPayload, error) {
	var p NameTableDeltaPayload
	err := msgpack.Unmarshal(body, &p)
	return p, err
}

// NameTableDigestPayload is kind 0x32: a cheap (version, count, crc32)
// consistency check clients can compare against their cached table.
type NameTableDigestPayload struct {
	Type    byte   `msgpack:"type"`
	RoomID  string `msgpack:"roomId"`
	Version uint64 `msgpack:"version"`
	Count   int    `msgpack:"count"`
	CRC32   uint32 `msgpack:"crc32"`
}

// EncodeNameTableDigest wraps and MessagePack-encodes a NameTableDigest
// envelope.
func EncodeNameTableDigest(p NameTableDigestPayload) ([]byte, error) {
	p.Type = byte(KindNameTableDigest)
	return msgpack.Marshal(p)
}

// DecodeNameTableDigest parses a MessagePack-encoded NameTableDigest
// envelope.
func DecodeNameTableDigest(body []byte) (NameTableDigestPayload, error) {
	var p NameTableDigestPayload
	err := msgpack.Unmarshal(body, &p)
	return p, err
}
