package codec

import "github.com/vrnetsync/hub/internal/v1/types"

// WireProtocolVersion is the 3-byte version header that precedes a
// DeviceIdMapping body, directly after the kind tag (§6.1).
var WireProtocolVersion = [3]byte{1, 0, 0}

// DeviceIDMappingEntry is one row of a DeviceIdMapping broadcast.
type DeviceIDMappingEntry struct {
	ClientNo types.ClientNo
	Stealth  bool
	DeviceID types.DeviceID
}

// EncodeDeviceIDMapping serializes kind 6. Stealth entries are excluded by
// the caller before this function runs (§4.3: stealth never appears here).
func EncodeDeviceIDMapping(entries []DeviceIDMappingEntry) ([]byte, error) {
	size := 1 + 3 + 2
	for _, e := range entries {
		size += 2 + 1 + 1 + len(e.DeviceID)
	}
	buf := newBuffer(size)
	buf.byte(byte(KindDeviceIdMapping))
	buf.b = append(buf.b, WireProtocolVersion[:]...)
	buf.u16(uint16(len(entries)))
	for _, e := range entries {
		buf.u16(uint16(e.ClientNo))
		if e.Stealth {
			buf.byte(1)
		} else {
			buf.byte(0)
		}
		if err := buf.shortString(string(e.DeviceID)); err != nil {
			return nil, err
		}
	}
	return buf.bytes(), nil
}

// DecodeDeviceIDMapping parses a DeviceIdMapping body (kind tag excluded,
// version header still present as the first three bytes).
func DecodeDeviceIDMapping(body []byte) ([]DeviceIDMappingEntry, error) {
	r := newReader(body)
	for i := 0; i < 3; i++ {
		if _, err := r.byte(); err != nil {
			return nil, err
		}
	}
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	entries := make([]DeviceIDMappingEntry, 0, count)
	for i := 0; i < int(count); i++ {
		var e DeviceIDMappingEntry
		no, err := r.u16()
		if err != nil {
			return nil, err
		}
		e.ClientNo = types.ClientNo(no)

		flag, err := r.byte()
		if err != nil {
			return nil, err
		}
		e.Stealth = flag != 0

		devID, err := r.shortString()
		if err != nil {
			return nil, err
		}
		e.DeviceID = types.DeviceID(devID)

		entries = append(entries, e)
	}
	return entries, nil
}
