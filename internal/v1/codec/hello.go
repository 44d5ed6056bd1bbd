package codec

import "errors"

// ErrOversizedHandshake flags a Hello frame whose appId or deviceID exceeds
// the handshake size limits (§4.4): appId ≤ 128 bytes, deviceID ≤ 64 bytes.
// Distinct from ErrFieldTooLong since a Hello is evaluated for the
// handshake gate, not just wire encodability.
var ErrOversizedHandshake = errors.New("codec: oversized handshake field")

// Hello is the application handshake frame: the mandatory first message on
// a connection (§4.4), carrying the app identity and the device's stable ID.
type Hello struct {
	AppID    string
	DeviceID string
}

// EncodeHello serializes the handshake frame.
func EncodeHello(h Hello) ([]byte, error) {
	if len(h.AppID) > maxAppIDBytes || len(h.DeviceID) > maxDeviceIDBytes {
		return nil, ErrOversizedHandshake
	}
	buf := newBuffer(1 + 1 + len(h.AppID) + 1 + len(h.DeviceID))
	buf.byte(byte(KindHello))
	if err := buf.shortString(h.AppID); err != nil {
		return nil, err
	}
	if err := buf.shortString(h.DeviceID); err != nil {
		return nil, err
	}
	return buf.bytes(), nil
}

// DecodeHello parses a Hello body (kind tag excluded) and enforces the
// handshake size limits — a caller treats ErrOversizedHandshake the same as
// any other handshake failure (close + handshake_denied).
func DecodeHello(body []byte) (Hello, error) {
	var h Hello
	r := newReader(body)

	appID, err := r.shortString()
	if err != nil {
		return h, err
	}
	devID, err := r.shortString()
	if err != nil {
		return h, err
	}
	if len(appID) > maxAppIDBytes || len(devID) > maxDeviceIDBytes {
		return h, ErrOversizedHandshake
	}
	h.AppID = appID
	h.DeviceID = devID
	return h, nil
}
