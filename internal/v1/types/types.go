// Package types defines the shared domain vocabulary for the hub: rooms,
// device identities, transforms, and network-variable records. Packages
// below it (codec) produce these types; packages above it (registry, room,
// broadcast, rpc, nv) consume and mutate them under their own locking.
package types

import "math"

// RoomID identifies a broadcast domain; all messages carry a room topic.
type RoomID string

// DeviceID is a client-chosen opaque string identifying a physical device
// across sessions. Stable across reconnects; a client number is not.
type DeviceID string

// ClientNo is a 16-bit identifier, unique within a room, assigned by the
// server and stable for a device's session inside that room.
type ClientNo uint16

// NameID is a monotonically increasing intern ID for a network-variable name.
type NameID uint16

// NVScope distinguishes per-room "global" variables from per-client ones.
type NVScope uint8

const (
	ScopeGlobal NVScope = iota
	ScopeClient
)

func (s NVScope) String() string {
	if s == ScopeClient {
		return "c"
	}
	return "g"
}

// DeltaOp is the mutation kind recorded for an NV change.
type DeltaOp uint8

const (
	OpSet DeltaOp = iota
	OpDel
)

func (o DeltaOp) String() string {
	if o == OpDel {
		return "del"
	}
	return "set"
}

// MaxVirtualTransforms bounds the number of auxiliary virtual transforms a
// ClientTransform may carry; excess entries are clamped by the encoder.
const MaxVirtualTransforms = 50

// Transform is six 32-bit floats plus a local-space flag that only matters
// for the physical slot and is never carried on the wire.
type Transform struct {
	PosX, PosY, PosZ float32
	RotX, RotY, RotZ float32
	IsLocalSpace     bool
}

// IsNaN reports whether every component of t is NaN, the stealth-detection
// predicate applied per-slot.
func (t Transform) IsNaN() bool {
	return math.IsNaN(float64(t.PosX)) && math.IsNaN(float64(t.PosY)) && math.IsNaN(float64(t.PosZ)) &&
		math.IsNaN(float64(t.RotX)) && math.IsNaN(float64(t.RotY)) && math.IsNaN(float64(t.RotZ))
}

// ClientTransform is the full pose of one client: physical body, head, both
// hands, and an ordered list of auxiliary virtual transforms.
type ClientTransform struct {
	DeviceID  DeviceID
	ClientNo  ClientNo // zero until assigned by the registry
	Physical  Transform
	Head      Transform
	RightHand Transform
	LeftHand  Transform
	Virtuals  []Transform
}

// IsStealth reports the stealth-client convention: all four fixed slots are
// all-NaN and there are no virtual transforms.
func (c ClientTransform) IsStealth() bool {
	return len(c.Virtuals) == 0 &&
		c.Physical.IsNaN() && c.Head.IsNaN() && c.RightHand.IsNaN() && c.LeftHand.IsNaN()
}

// DeltaRecord is one NV mutation: a strictly increasing per-room sequence
// number tagged with scope, operation, the interned name, and (depending on
// scope/op) the owning client number and/or the new value.
type DeltaRecord struct {
	Seq      uint64
	Scope    NVScope
	Op       DeltaOp
	NameID   NameID
	ClientNo ClientNo // only meaningful when Scope == ScopeClient
	Value    string   // only meaningful when Op == OpSet
}

// NameTableEntry is one (nameID, name) pair as carried in a full name-table
// payload or used to compute the table's CRC32 digest.
type NameTableEntry struct {
	NameID NameID
	Name   string
}

// NameTableDigest summarizes a name table for cheap consistency checking.
type NameTableDigest struct {
	Version uint64
	Count   int
	CRC32   uint32
}
