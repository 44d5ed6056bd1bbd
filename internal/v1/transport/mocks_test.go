package transport

import (
	"sync"
	"time"
)

// fakeConn is a minimal wsConnection double — grounded on the teacher's
// mocks_test.go wsConnection fake, generalized to feed a scripted sequence
// of inbound frames and record outbound writes.
type fakeConn struct {
	mu       sync.Mutex
	inbound  [][]byte
	readPos  int
	outbound [][]byte
	closed   bool
}

func newFakeConn(frames ...[]byte) *fakeConn {
	return &fakeConn{inbound: frames}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readPos >= len(f.inbound) {
		return 0, nil, errConnClosed{}
	}
	data := f.inbound[f.readPos]
	f.readPos++
	return 2, data, nil
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = append(f.outbound, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }

func (f *fakeConn) writtenFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.outbound))
	copy(out, f.outbound)
	return out
}

type errConnClosed struct{}

func (errConnClosed) Error() string { return "fakeConn: no more inbound frames" }
