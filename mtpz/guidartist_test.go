package mtpz

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"mtpzhost/mtp"
	"mtpzhost/ptp"
)

// mockTransport mirrors the mtp package's own test double: an
// in-memory ptp.Transport that serves a pre-queued packet sequence.
type mockTransport struct {
	mu    sync.Mutex
	reads [][]byte
}

func (m *mockTransport) BulkWrite(buf []byte) (int, error) { return len(buf), nil }

func (m *mockTransport) BulkRead(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reads) == 0 {
		return 0, io.EOF
	}
	pkt := m.reads[0]
	m.reads = m.reads[1:]
	return copy(buf, pkt), nil
}

func (m *mockTransport) InterruptRead(buf []byte) (int, error) { return 0, io.EOF }
func (m *mockTransport) Cancel(uint32) error                   { return nil }
func (m *mockTransport) Reset() error                          { return nil }
func (m *mockTransport) Close() error                          { return nil }
func (m *mockTransport) MaxPacketSize() int                    { return 512 }
func (m *mockTransport) SetTimeout(time.Duration)              {}

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

func newAuthenticatedSession(t *testing.T) (*mtp.Session, *mockTransport) {
	t.Helper()
	tr := &mockTransport{}
	s := mtp.NewSession(tr, nil)

	tr.queueResponse(mtp.RC_OK, 0)
	if err := s.OpenSession(); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	info := &mtp.DeviceInfo{
		OperationsSupported: []uint16{mtp.OC_MTP_SendObjectPropList, mtp.OC_MTP_GetObjPropList, mtp.OC_SendObject},
	}
	var infoBuf bytes.Buffer
	if err := mtp.Encode(&infoBuf, info); err != nil {
		t.Fatalf("Encode(DeviceInfo): %v", err)
	}
	tr.queueData(mtp.OC_GetDeviceInfo, 1, infoBuf.Bytes())
	tr.queueResponse(mtp.RC_OK, 1)
	if _, err := s.GetDeviceInfo(); err != nil {
		t.Fatalf("GetDeviceInfo: %v", err)
	}

	return s, tr
}

func TestLegacyCreateArtistAndReadGUID(t *testing.T) {
	s, tr := newAuthenticatedSession(t)
	guidObjects := NewGUIDObjects(s)

	tr.queueResponse(mtp.RC_OK, 2, 0, 0, 0x4001)
	tr.queueResponse(mtp.RC_OK, 3)

	handle, id, err := guidObjects.CreateArtist(1, 0x3000, "Test Artist")
	if err != nil {
		t.Fatalf("CreateArtist: %v", err)
	}
	if handle != 0x4001 {
		t.Fatalf("handle = 0x%x, want 0x4001", handle)
	}

	props := []mtp.ObjectProp{
		{ObjectHandle: handle, PropertyCode: zuneGUIDPropertyCode, DataType: mtp.DTC_UINT128, Value: mtp.RawFixedBytes(toMSGUID(id))},
	}
	payload, err := mtp.EncodeObjectPropList(props)
	if err != nil {
		t.Fatalf("EncodeObjectPropList: %v", err)
	}
	tr.queueData(mtp.OC_MTP_GetObjPropList, 4, payload)
	tr.queueResponse(mtp.RC_OK, 4)

	got, err := guidObjects.ArtistGUID(handle)
	if err != nil {
		t.Fatalf("ArtistGUID: %v", err)
	}
	if got != id {
		t.Errorf("ArtistGUID = %v, want %v", got, id)
	}
}

func TestMSGUIDRoundTrip(t *testing.T) {
	id := uuid.New()
	got, err := fromMSGUID(toMSGUID(id))
	if err != nil {
		t.Fatalf("fromMSGUID: %v", err)
	}
	if got != id {
		t.Errorf("round trip = %v, want %v", got, id)
	}
}
