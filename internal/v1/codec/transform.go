package codec

import "github.com/vrnetsync/hub/internal/v1/types"

// EncodeClientTransform serializes a ClientTransform in its long form:
// device ID instead of client number. Virtuals beyond MaxVirtualTransforms
// are clamped, not rejected, matching §8's boundary-test expectation.
func EncodeClientTransform(c types.ClientTransform) ([]byte, error) {
	buf := newBuffer(1 + 1 + len(c.DeviceID) + 4*6*4 + 1 + types.MaxVirtualTransforms*6*4)
	buf.byte(byte(KindClientTransform))
	if err := buf.shortString(string(c.DeviceID)); err != nil {
		return nil, err
	}
	buf.transform(c.Physical)
	buf.transform(c.Head)
	buf.transform(c.RightHand)
	buf.transform(c.LeftHand)

	virtuals := c.Virtuals
	if len(virtuals) > types.MaxVirtualTransforms {
		virtuals = virtuals[:types.MaxVirtualTransforms]
	}
	buf.byte(byte(len(virtuals)))
	for _, v := range virtuals {
		buf.transform(v)
	}
	return buf.bytes(), nil
}

// DecodeClientTransform parses a ClientTransform body (kind tag excluded).
func DecodeClientTransform(body []byte) (types.ClientTransform, error) {
	var c types.ClientTransform
	r := newReader(body)

	devID, err := r.shortString()
	if err != nil {
		return c, err
	}
	c.DeviceID = types.DeviceID(devID)

	if c.Physical, err = r.transform(); err != nil {
		return c, err
	}
	if c.Head, err = r.transform(); err != nil {
		return c, err
	}
	if c.RightHand, err = r.transform(); err != nil {
		return c, err
	}
	if c.LeftHand, err = r.transform(); err != nil {
		return c, err
	}

	virtCount, err := r.byte()
	if err != nil {
		return c, err
	}
	if int(virtCount) > types.MaxVirtualTransforms {
		virtCount = types.MaxVirtualTransforms
	}
	c.Virtuals = make([]types.Transform, 0, virtCount)
	for i := 0; i < int(virtCount); i++ {
		v, err := r.transform()
		if err != nil {
			return c, err
		}
		c.Virtuals = append(c.Virtuals, v)
	}
	return c, nil
}

// EncodeClientTransformShort serializes the "short form" used inside a
// RoomTransform: a client number prefix instead of a device ID. This is the
// per-client cached payload the broadcast scheduler concatenates (§4.5/§9).
func EncodeClientTransformShort(no types.ClientNo, c types.ClientTransform) []byte {
	buf := newBuffer(2 + 4*6*4 + 1 + types.MaxVirtualTransforms*6*4)
	buf.u16(uint16(no))
	buf.transform(c.Physical)
	buf.transform(c.Head)
	buf.transform(c.RightHand)
	buf.transform(c.LeftHand)

	virtuals := c.Virtuals
	if len(virtuals) > types.MaxVirtualTransforms {
		virtuals = virtuals[:types.MaxVirtualTransforms]
	}
	buf.byte(byte(len(virtuals)))
	for _, v := range virtuals {
		buf.transform(v)
	}
	return buf.bytes()
}

func decodeClientTransformShort(r *reader) (types.ClientNo, types.ClientTransform, error) {
	var c types.ClientTransform
	no, err := r.u16()
	if err != nil {
		return 0, c, err
	}
	c.ClientNo = types.ClientNo(no)

	if c.Physical, err = r.transform(); err != nil {
		return 0, c, err
	}
	if c.Head, err = r.transform(); err != nil {
		return 0, c, err
	}
	if c.RightHand, err = r.transform(); err != nil {
		return 0, c, err
	}
	if c.LeftHand, err = r.transform(); err != nil {
		return 0, c, err
	}

	virtCount, err := r.byte()
	if err != nil {
		return 0, c, err
	}
	c.Virtuals = make([]types.Transform, 0, virtCount)
	for i := 0; i < int(virtCount); i++ {
		v, err := r.transform()
		if err != nil {
			return 0, c, err
		}
		c.Virtuals = append(c.Virtuals, v)
	}
	return types.ClientNo(no), c, nil
}

// RoomTransform is the decoded form of kind 2: a room ID plus the short-form
// transforms of every non-stealth client, in broadcast order.
type RoomTransform struct {
	RoomID  types.RoomID
	Clients []types.ClientTransform
}

// EncodeRoomTransform concatenates pre-serialized short-form client bodies
// (encoded once at ingress with EncodeClientTransformShort and cached on
// the client record, per §4.5/§9) behind the room header.
// The caller supplies already-encoded per-client short bodies to avoid a
// decode/re-encode round trip on the broadcast hot path.
func EncodeRoomTransform(roomID types.RoomID, clientBodies [][]byte) ([]byte, error) {
	size := 1 + 1 + len(roomID) + 2
	for _, b := range clientBodies {
		size += len(b)
	}
	buf := newBuffer(size)
	buf.byte(byte(KindRoomTransform))
	if err := buf.shortString(string(roomID)); err != nil {
		return nil, err
	}
	buf.u16(uint16(len(clientBodies)))
	for _, b := range clientBodies {
		buf.b = append(buf.b, b...)
	}
	return buf.bytes(), nil
}

// DecodeRoomTransform parses a RoomTransform body (kind tag excluded).
func DecodeRoomTransform(body []byte) (RoomTransform, error) {
	var rt RoomTransform
	r := newReader(body)

	roomID, err := r.shortString()
	if err != nil {
		return rt, err
	}
	rt.RoomID = types.RoomID(roomID)

	count, err := r.u16()
	if err != nil {
		return rt, err
	}
	rt.Clients = make([]types.ClientTransform, 0, count)
	for i := 0; i < int(count); i++ {
		_, c, err := decodeClientTransformShort(r)
		if err != nil {
			return rt, err
		}
		rt.Clients = append(rt.Clients, c)
	}
	return rt, nil
}
