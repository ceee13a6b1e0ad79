package mtp

import (
	"errors"
	"testing"
)

func TestOpenCloseSession(t *testing.T) {
	tr := newMockTransport()
	tr.queueResponse(RC_OK, 0)
	tr.queueResponse(RC_OK, 1)

	s := NewSession(tr, nil)
	if err := s.OpenSession(); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if err := s.OpenSession(); err == nil {
		t.Fatalf("second OpenSession should fail while a session is open")
	}
	if err := s.CloseSession(); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
}

func TestGetStorageIDs(t *testing.T) {
	tr := newMockTransport()
	tr.queueResponse(RC_OK, 0)

	want := []uint32{0x00010001, 0x00010002}
	tr.queueData(OC_GetStorageIDs, 1, encodeUint32Array(want))
	tr.queueResponse(RC_OK, 1)

	s := NewSession(tr, nil)
	if err := s.OpenSession(); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	got, err := s.GetStorageIDs()
	if err != nil {
		t.Fatalf("GetStorageIDs: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got 0x%x want 0x%x", i, got[i], want[i])
		}
	}
}

func TestTransactionIDMismatchIsProtocolError(t *testing.T) {
	tr := newMockTransport()
	tr.queueResponse(RC_OK, 0)

	tr.queueData(OC_GetStorageIDs, 99, encodeUint32Array(nil))
	tr.queueResponse(RC_OK, 99)

	s := NewSession(tr, nil)
	if err := s.OpenSession(); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	_, err := s.GetStorageIDs()
	if err == nil {
		t.Fatalf("expected a transaction id mismatch error")
	}
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("got %T, want *ProtocolError: %v", err, err)
	}
}

func TestRecoverableResponseIsRetried(t *testing.T) {
	tr := newMockTransport()
	tr.queueResponse(RC_OK, 0)

	// First attempt: device reports busy.
	tr.queueResponse(RC_DeviceBusy, 1)
	// Retry succeeds.
	tr.queueData(OC_GetStorageIDs, 2, encodeUint32Array([]uint32{7}))
	tr.queueResponse(RC_OK, 2)

	s := NewSession(tr, nil)
	if err := s.OpenSession(); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	got, err := s.GetStorageIDs()
	if err != nil {
		t.Fatalf("GetStorageIDs after retry: %v", err)
	}
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("got %v, want [7]", got)
	}
}

func TestFatalResponseSurfacesAsMtpError(t *testing.T) {
	tr := newMockTransport()
	tr.queueResponse(RC_OK, 0)
	tr.queueResponse(RC_InvalidStorageId, 1)

	s := NewSession(tr, nil)
	if err := s.OpenSession(); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	_, err := s.GetStorageInfo(0xDEADBEEF)
	if err == nil {
		t.Fatalf("expected an error")
	}
	var me MtpError
	if !errors.As(err, &me) {
		t.Fatalf("got %T, want a wrapped MtpError: %v", err, err)
	}
	if me.Code != RC_InvalidStorageId {
		t.Errorf("got code 0x%x, want RC_InvalidStorageId", me.Code)
	}
}
