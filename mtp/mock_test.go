package mtp

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"mtpzhost/ptp"
)

// mockTransport is an in-memory stand-in for a usb.Device, letting the
// session layer be exercised without real hardware. Writes are
// recorded; reads are served from a pre-queued packet list.
type mockTransport struct {
	mu     sync.Mutex
	writes [][]byte
	reads  [][]byte
	closed bool
}

func newMockTransport() *mockTransport { return &mockTransport{} }

func (m *mockTransport) BulkWrite(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, append([]byte(nil), buf...))
	return len(buf), nil
}

func (m *mockTransport) BulkRead(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reads) == 0 {
		return 0, io.EOF
	}
	pkt := m.reads[0]
	m.reads = m.reads[1:]
	n := copy(buf, pkt)
	return n, nil
}

func (m *mockTransport) InterruptRead(buf []byte) (int, error) {
	return 0, io.EOF
}

func (m *mockTransport) Cancel(transactionID uint32) error { return nil }
func (m *mockTransport) Reset() error                      { return nil }
func (m *mockTransport) Close() error                       { m.closed = true; return nil }
func (m *mockTransport) MaxPacketSize() int                 { return 512 }
func (m *mockTransport) SetTimeout(time.Duration)           {}

// queueResponse enqueues a bare Response container.
func (m *mockTransport) queueResponse(code uint16, tid uint32, params ...uint32) {
	buf := make([]byte, ptp.HeaderLen+4*len(params))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(ptp.ContainerResponse))
	binary.LittleEndian.PutUint16(buf[6:8], code)
	binary.LittleEndian.PutUint32(buf[8:12], tid)
	for i, p := range params {
		binary.LittleEndian.PutUint32(buf[ptp.HeaderLen+4*i:], p)
	}
	m.mu.Lock()
	m.reads = append(m.reads, buf)
	m.mu.Unlock()
}

// queueData enqueues a Data container carrying payload, followed
// immediately (as the test helper's contract) by a queueResponse call
// from the caller.
func (m *mockTransport) queueData(opCode uint16, tid uint32, payload []byte) {
	buf := make([]byte, ptp.HeaderLen+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(ptp.ContainerData))
	binary.LittleEndian.PutUint16(buf[6:8], opCode)
	binary.LittleEndian.PutUint32(buf[8:12], tid)
	copy(buf[ptp.HeaderLen:], payload)
	m.mu.Lock()
	m.reads = append(m.reads, buf)
	m.mu.Unlock()
}

func encodeUint32Array(values []uint32) []byte {
	var buf bytes.Buffer
	_ = Encode(&buf, &Uint32Array{Values: values})
	return buf.Bytes()
}
