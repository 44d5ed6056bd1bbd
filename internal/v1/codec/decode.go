package codec

import "github.com/vrnetsync/hub/internal/v1/types"

// Message is a sealed tagged union over every decoded frame kind. Exactly
// one field is populated, matching Kind. Ingress dispatch switches on Kind
// and never keeps an any-typed payload past this boundary (§9).
type Message struct {
	Kind Kind
	Raw  []byte // the undecoded body; retained only for KindClientTransform (§4.1)

	ClientTransform  *ClientTransformMsg
	RoomTransform    *RoomTransform
	RPC              *RPC
	RPCTargeted      *RPCTargeted
	DeviceIDMapping  []DeviceIDMappingEntry
	GlobalVarSet     *GlobalVarSet
	GlobalVarSync    []GlobalVarEntry
	ClientVarSet     *ClientVarSet
	ClientVarSync    []ClientVarGroup
	Hello            *Hello
	Snapshot         *SnapshotPayload
	Delta            *DeltaPayload
	DeltaAck         *DeltaAckPayload
	NameTableFull    *NameTableFullPayload
	NameTableDelta   *NameTableDeltaPayload
	NameTableDigest  *NameTableDigestPayload
}

// ClientTransformMsg holds a decoded ClientTransform. The frame's raw body
// is kept on Message.Raw, not here.
type ClientTransformMsg struct {
	Transform types.ClientTransform
}

// Decode reads the kind tag from frame and dispatches to the matching
// per-kind decoder, returning a Message with exactly one populated field.
// Malformed frames (truncated, unknown kind) return an error; the caller
// (the ingress dispatcher) drops them silently and increments a counter
// per §7 rather than propagating the error to the peer.
func Decode(frame []byte) (Message, error) {
	if len(frame) < 1 {
		return Message{}, ErrTruncated
	}
	kind := Kind(frame[0])
	body := frame[1:]

	switch kind {
	case KindClientTransform:
		ct, err := DecodeClientTransform(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, Raw: body, ClientTransform: &ClientTransformMsg{Transform: ct}}, nil
	case KindRoomTransform:
		rt, err := DecodeRoomTransform(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, RoomTransform: &rt}, nil
	case KindRPC:
		r, err := DecodeRPC(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, RPC: &r}, nil
	case KindRPCTargeted:
		r, err := DecodeRPCTargeted(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, RPCTargeted: &r}, nil
	case KindDeviceIdMapping:
		entries, err := DecodeDeviceIDMapping(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, DeviceIDMapping: entries}, nil
	case KindGlobalVarSet:
		v, err := DecodeGlobalVarSet(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, GlobalVarSet: &v}, nil
	case KindGlobalVarSync:
		entries, err := DecodeGlobalVarSync(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, GlobalVarSync: entries}, nil
	case KindClientVarSet:
		v, err := DecodeClientVarSet(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, ClientVarSet: &v}, nil
	case KindClientVarSync:
		groups, err := DecodeClientVarSync(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, ClientVarSync: groups}, nil
	case KindHello:
		h, err := DecodeHello(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, Hello: &h}, nil
	case KindSnapshot:
		p, err := DecodeSnapshot(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, Snapshot: &p}, nil
	case KindDelta:
		p, err := DecodeDelta(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, Delta: &p}, nil
	case KindDeltaAck:
		p, err := DecodeDeltaAck(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, DeltaAck: &p}, nil
	case KindNameTableFull:
		p, err := DecodeNameTableFull(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, NameTableFull: &p}, nil
	case KindNameTableDelta:
		p, err := DecodeNameTableDelta(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, NameTableDelta: &p}, nil
	case KindNameTableDigest:
		p, err := DecodeNameTableDigest(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: kind, NameTableDigest: &p}, nil
	default:
		return Message{}, ErrUnknownKind
	}
}
