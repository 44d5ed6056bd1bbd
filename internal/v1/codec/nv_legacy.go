// Package codec: the legacy per-kind NV messages (7-10). The hub decodes
// the set kinds 7 and 9 on ingress. Kinds 8 and 10 are encoded and decoded
// here, but the hub does not send them: a client that has fallen behind the
// delta ring is resynced with a Snapshot (see snapshot.go).
package codec

import "github.com/vrnetsync/hub/internal/v1/types"

// GlobalVarSet is the decoded form of kind 7.
type GlobalVarSet struct {
	SenderClientNo types.ClientNo
	Name           string
	Value          string
	Timestamp      float64
}

// EncodeGlobalVarSet serializes kind 7.
func EncodeGlobalVarSet(v GlobalVarSet) ([]byte, error) {
	buf := newBuffer(1 + 2 + 1 + len(v.Name) + 2 + len(v.Value) + 8)
	buf.byte(byte(KindGlobalVarSet))
	buf.u16(uint16(v.SenderClientNo))
	if err := buf.shortString(v.Name); err != nil {
		return nil, err
	}
	if err := buf.longString(v.Value); err != nil {
		return nil, err
	}
	buf.f64(v.Timestamp)
	return buf.bytes(), nil
}

// DecodeGlobalVarSet parses a GlobalVarSet body (kind tag excluded).
func DecodeGlobalVarSet(body []byte) (GlobalVarSet, error) {
	var v GlobalVarSet
	r := newReader(body)

	no, err := r.u16()
	if err != nil {
		return v, err
	}
	v.SenderClientNo = types.ClientNo(no)

	if v.Name, err = r.shortString(); err != nil {
		return v, err
	}
	if v.Value, err = r.longString(); err != nil {
		return v, err
	}
	if v.Timestamp, err = r.f64(); err != nil {
		return v, err
	}
	return v, nil
}

// GlobalVarEntry is one row of a GlobalVarSync broadcast (kind 8).
type GlobalVarEntry struct {
	Name               string
	Value              string
	Timestamp          float64
	LastWriterClientNo types.ClientNo
}

// EncodeGlobalVarSync serializes kind 8.
func EncodeGlobalVarSync(entries []GlobalVarEntry) ([]byte, error) {
	size := 1 + 2
	for _, e := range entries {
		size += 1 + len(e.Name) + 2 + len(e.Value) + 8 + 2
	}
	buf := newBuffer(size)
	buf.byte(byte(KindGlobalVarSync))
	buf.u16(uint16(len(entries)))
	for _, e := range entries {
		if err := buf.shortString(e.Name); err != nil {
			return nil, err
		}
		if err := buf.longString(e.Value); err != nil {
			return nil, err
		}
		buf.f64(e.Timestamp)
		buf.u16(uint16(e.LastWriterClientNo))
	}
	return buf.bytes(), nil
}

// DecodeGlobalVarSync parses a GlobalVarSync body (kind tag excluded).
func DecodeGlobalVarSync(body []byte) ([]GlobalVarEntry, error) {
	r := newReader(body)
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	entries := make([]GlobalVarEntry, 0, count)
	for i := 0; i < int(count); i++ {
		var e GlobalVarEntry
		if e.Name, err = r.shortString(); err != nil {
			return nil, err
		}
		if e.Value, err = r.longString(); err != nil {
			return nil, err
		}
		if e.Timestamp, err = r.f64(); err != nil {
			return nil, err
		}
		no, err := r.u16()
		if err != nil {
			return nil, err
		}
		e.LastWriterClientNo = types.ClientNo(no)
		entries = append(entries, e)
	}
	return entries, nil
}

// ClientVarSet is the decoded form of kind 9.
type ClientVarSet struct {
	SenderClientNo types.ClientNo
	TargetClientNo types.ClientNo
	Name           string
	Value          string
	Timestamp      float64
}

// EncodeClientVarSet serializes kind 9.
func EncodeClientVarSet(v ClientVarSet) ([]byte, error) {
	buf := newBuffer(1 + 2 + 2 + 1 + len(v.Name) + 2 + len(v.Value) + 8)
	buf.byte(byte(KindClientVarSet))
	buf.u16(uint16(v.SenderClientNo))
	buf.u16(uint16(v.TargetClientNo))
	if err := buf.shortString(v.Name); err != nil {
		return nil, err
	}
	if err := buf.longString(v.Value); err != nil {
		return nil, err
	}
	buf.f64(v.Timestamp)
	return buf.bytes(), nil
}

// DecodeClientVarSet parses a ClientVarSet body (kind tag excluded).
func DecodeClientVarSet(body []byte) (ClientVarSet, error) {
	var v ClientVarSet
	r := newReader(body)

	sender, err := r.u16()
	if err != nil {
		return v, err
	}
	v.SenderClientNo = types.ClientNo(sender)

	target, err := r.u16()
	if err != nil {
		return v, err
	}
	v.TargetClientNo = types.ClientNo(target)

	if v.Name, err = r.shortString(); err != nil {
		return v, err
	}
	if v.Value, err = r.longString(); err != nil {
		return v, err
	}
	if v.Timestamp, err = r.f64(); err != nil {
		return v, err
	}
	return v, nil
}

// ClientVarGroup is one client's variable set within a ClientVarSync
// broadcast (kind 10).
type ClientVarGroup struct {
	ClientNo types.ClientNo
	Vars     []GlobalVarEntry // same per-var layout as GlobalVarSync rows
}

// EncodeClientVarSync serializes kind 10.
func EncodeClientVarSync(groups []ClientVarGroup) ([]byte, error) {
	size := 1 + 2
	for _, g := range groups {
		size += 2 + 2
		for _, e := range g.Vars {
			size += 1 + len(e.Name) + 2 + len(e.Value) + 8 + 2
		}
	}
	buf := newBuffer(size)
	buf.byte(byte(KindClientVarSync))
	buf.u16(uint16(len(groups)))
	for _, g := range groups {
		buf.u16(uint16(g.ClientNo))
		buf.u16(uint16(len(g.Vars)))
		for _, e := range g.Vars {
			if err := buf.shortString(e.Name); err != nil {
				return nil, err
			}
			if err := buf.longString(e.Value); err != nil {
				return nil, err
			}
			buf.f64(e.Timestamp)
			buf.u16(uint16(e.LastWriterClientNo))
		}
	}
	return buf.bytes(), nil
}

// DecodeClientVarSync parses a ClientVarSync body (kind tag excluded).
func DecodeClientVarSync(body []byte) ([]ClientVarGroup, error) {
	r := newReader(body)
	clientCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	groups := make([]ClientVarGroup, 0, clientCount)
	for i := 0; i < int(clientCount); i++ {
		var g ClientVarGroup
		no, err := r.u16()
		if err != nil {
			return nil, err
		}
		g.ClientNo = types.ClientNo(no)

		varCount, err := r.u16()
		if err != nil {
			return nil, err
		}
		g.Vars = make([]GlobalVarEntry, 0, varCount)
		for j := 0; j < int(varCount); j++ {
			var e GlobalVarEntry
			if e.Name, err = r.shortString(); err != nil {
				return nil, err
			}
			if e.Value, err = r.longString(); err != nil {
				return nil, err
			}
			if e.Timestamp, err = r.f64(); err != nil {
				return nil, err
			}
			lw, err := r.u16()
			if err != nil {
				return nil, err
			}
			e.LastWriterClientNo = types.ClientNo(lw)
			g.Vars = append(g.Vars, e)
		}
		groups = append(groups, g)
	}
	return groups, nil
}
