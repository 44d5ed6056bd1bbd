package codec

import (
	"encoding/binary"
	"math"

	"github.com/vrnetsync/hub/internal/v1/types"
)

// buffer is a tiny append-only byte-slice builder; avoids importing
// bytes.Buffer for what is always a single contiguous write.
type buffer struct {
	b []byte
}

func newBuffer(sizeHint int) *buffer {
	return &buffer{b: make([]byte, 0, sizeHint)}
}

func (buf *buffer) byte(v byte) {
	buf.b = append(buf.b, v)
}

func (buf *buffer) u16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	buf.b = append(buf.b, tmp[:]...)
}

func (buf *buffer) u64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.b = append(buf.b, tmp[:]...)
}

func (buf *buffer) f32(v float32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
	buf.b = append(buf.b, tmp[:]...)
}

func (buf *buffer) f64(v float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	buf.b = append(buf.b, tmp[:]...)
}

// shortString writes a 1-byte length prefix plus UTF-8 bytes. Per §4.1, a
// source exceeding the prefix's capacity is an encoding error, not a clamp.
func (buf *buffer) shortString(s string) error {
	if len(s) > maxShortString {
		return ErrFieldTooLong
	}
	buf.byte(byte(len(s)))
	buf.b = append(buf.b, s...)
	return nil
}

// longString writes a 2-byte (u16) length prefix plus UTF-8 bytes.
func (buf *buffer) longString(s string) error {
	if len(s) > maxLongString {
		return ErrFieldTooLong
	}
	buf.u16(uint16(len(s)))
	buf.b = append(buf.b, s...)
	return nil
}

func (buf *buffer) transform(t types.Transform) {
	buf.f32(t.PosX)
	buf.f32(t.PosY)
	buf.f32(t.PosZ)
	buf.f32(t.RotX)
	buf.f32(t.RotY)
	buf.f32(t.RotZ)
}

func (buf *buffer) bytes() []byte {
	return buf.b
}

// reader walks a frame body, tracking the read cursor and surfacing
// truncation as ErrTruncated rather than a panic.
type reader struct {
	b   []byte
	pos int
}

func newReader(b []byte) *reader {
	return &reader{b: b}
}

func (r *reader) remaining() int {
	return len(r.b) - r.pos
}

func (r *reader) byte() (byte, error) {
	if r.remaining() < 1 {
		return 0, ErrTruncated
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint16(r.b[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(r.b[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) f32() (float32, error) {
	if r.remaining() < 4 {
		return 0, ErrTruncated
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.b[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *reader) f64() (float64, error) {
	if r.remaining() < 8 {
		return 0, ErrTruncated
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.b[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *reader) shortString() (string, error) {
	n, err := r.byte()
	if err != nil {
		return "", err
	}
	if r.remaining() < int(n) {
		return "", ErrTruncated
	}
	s := string(r.b[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) longString() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	if r.remaining() < int(n) {
		return "", ErrTruncated
	}
	s := string(r.b[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) transform() (types.Transform, error) {
	var t types.Transform
	var err error
	if t.PosX, err = r.f32(); err != nil {
		return t, err
	}
	if t.PosY, err = r.f32(); err != nil {
		return t, err
	}
	if t.PosZ, err = r.f32(); err != nil {
		return t, err
	}
	if t.RotX, err = r.f32(); err != nil {
		return t, err
	}
	if t.RotY, err = r.f32(); err != nil {
		return t, err
	}
	if t.RotZ, err = r.f32(); err != nil {
		return t, err
	}
	return t, nil
}
