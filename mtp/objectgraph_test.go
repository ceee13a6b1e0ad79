package mtp

import (
	"bytes"
	"testing"
)

func TestListObjectsRecursive(t *testing.T) {
	tr := newMockTransport()
	s := NewSession(tr, nil)

	// Session open.
	tr.queueResponse(RC_OK, 0)
	if err := s.OpenSession(); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	// Layout:
	//   root (parent=0xFFFFFFFF on storage 1): handles {10 (folder), 11 (file)}
	//   folder 10's children: {20 (file)}
	root := encodeUint32Array([]uint32{10, 11})
	tr.queueData(OC_GetObjectHandles, 1, root)
	tr.queueResponse(RC_OK, 1)

	tr.queueData(OC_GetObjectInfo, 2, encodeObjectInfo(t, OFC_Association, 0xFFFFFFFF))
	tr.queueResponse(RC_OK, 2)

	folderChildren := encodeUint32Array([]uint32{20})
	tr.queueData(OC_GetObjectHandles, 3, folderChildren)
	tr.queueResponse(RC_OK, 3)

	tr.queueData(OC_GetObjectInfo, 4, encodeObjectInfo(t, 0x3000 /* not an association */, 10))
	tr.queueResponse(RC_OK, 4)

	tr.queueData(OC_GetObjectInfo, 5, encodeObjectInfo(t, 0x3801, 11))
	tr.queueResponse(RC_OK, 5)

	got, err := s.ListObjectsRecursive(1, 0xFFFFFFFF)
	if err != nil {
		t.Fatalf("ListObjectsRecursive: %v", err)
	}
	want := []uint32{10, 20, 11}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func encodeObjectInfo(t *testing.T, format uint16, parent uint32) []byte {
	t.Helper()
	info := &ObjectInfo{ObjectFormat: format, ParentObject: parent, Filename: "x"}
	var buf bytes.Buffer
	if err := Encode(&buf, info); err != nil {
		t.Fatalf("Encode(ObjectInfo): %v", err)
	}
	return buf.Bytes()
}
