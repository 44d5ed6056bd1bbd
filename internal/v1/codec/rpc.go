package codec

import "github.com/vrnetsync/hub/internal/v1/types"

// RPC is the decoded form of kind 3: a broadcast remote procedure call.
// ArgsJSON is opaque to the server — never parsed, only forwarded.
type RPC struct {
	SenderClientNo types.ClientNo
	FnName         string
	ArgsJSON       string
}

// EncodeRPC serializes a broadcast RPC. FnName over 255 bytes is an
// encoding error (§6.1: "Function name ≤ 255 bytes").
func EncodeRPC(r RPC) ([]byte, error) {
	buf := newBuffer(1 + 2 + 1 + len(r.FnName) + 2 + len(r.ArgsJSON))
	buf.byte(byte(KindRPC))
	buf.u16(uint16(r.SenderClientNo))
	if err := buf.shortString(r.FnName); err != nil {
		return nil, err
	}
	if err := buf.longString(r.ArgsJSON); err != nil {
		return nil, err
	}
	return buf.bytes(), nil
}

// DecodeRPC parses an RPC body (kind tag excluded).
func DecodeRPC(body []byte) (RPC, error) {
	var r RPC
	rd := newReader(body)

	no, err := rd.u16()
	if err != nil {
		return r, err
	}
	r.SenderClientNo = types.ClientNo(no)

	if r.FnName, err = rd.shortString(); err != nil {
		return r, err
	}
	if r.ArgsJSON, err = rd.longString(); err != nil {
		return r, err
	}
	return r, nil
}

// RPCTargeted is the decoded form of kind 11: an RPC restricted to a subset
// of client numbers in the room (capped at 100 per §4.6).
type RPCTargeted struct {
	SenderClientNo  types.ClientNo
	TargetClientNos []types.ClientNo
	FnName          string
	ArgsJSON        string
}

// EncodeRPCTargeted serializes a targeted RPC. More than maxRPCTargets
// targets or an over-length function name is an encoding error.
func EncodeRPCTargeted(r RPCTargeted) ([]byte, error) {
	if len(r.TargetClientNos) > maxRPCTargets {
		return nil, ErrFieldTooLong
	}
	buf := newBuffer(1 + 2 + 2 + len(r.TargetClientNos)*2 + 1 + len(r.FnName) + 2 + len(r.ArgsJSON))
	buf.byte(byte(KindRPCTargeted))
	buf.u16(uint16(r.SenderClientNo))
	buf.u16(uint16(len(r.TargetClientNos)))
	for _, t := range r.TargetClientNos {
		buf.u16(uint16(t))
	}
	if err := buf.shortString(r.FnName); err != nil {
		return nil, err
	}
	if err := buf.longString(r.ArgsJSON); err != nil {
		return nil, err
	}
	return buf.bytes(), nil
}

// DecodeRPCTargeted parses an RPCTargeted body (kind tag excluded).
func DecodeRPCTargeted(body []byte) (RPCTargeted, error) {
	var r RPCTargeted
	rd := newReader(body)

	no, err := rd.u16()
	if err != nil {
		return r, err
	}
	r.SenderClientNo = types.ClientNo(no)

	count, err := rd.u16()
	if err != nil {
		return r, err
	}
	if int(count) > maxRPCTargets {
		return r, ErrFieldTooLong
	}
	r.TargetClientNos = make([]types.ClientNo, 0, count)
	for i := 0; i < int(count); i++ {
		t, err := rd.u16()
		if err != nil {
			return r, err
		}
		r.TargetClientNos = append(r.TargetClientNos, types.ClientNo(t))
	}

	if r.FnName, err = rd.shortString(); err != nil {
		return r, err
	}
	if r.ArgsJSON, err = rd.longString(); err != nil {
		return r, err
	}
	return r, nil
}
