package mtp

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestObjectPropListRoundTrip(t *testing.T) {
	props := []ObjectProp{
		{ObjectHandle: 1, PropertyCode: OPC_ObjectFileName, DataType: DTC_STR, Value: "song.mp3"},
		{ObjectHandle: 1, PropertyCode: OPC_ObjectSize, DataType: DTC_UINT64, Value: uint64(123456)},
		{ObjectHandle: 2, PropertyCode: OPC_ParentObject, DataType: DTC_UINT32, Value: uint32(0)},
	}

	buf, err := EncodeObjectPropList(props)
	if err != nil {
		t.Fatalf("EncodeObjectPropList: %v", err)
	}

	got, err := DecodeObjectPropList(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("DecodeObjectPropList: %v", err)
	}
	if len(got) != len(props) {
		t.Fatalf("got %d elements, want %d", len(got), len(props))
	}
	for i := range props {
		if got[i].ObjectHandle != props[i].ObjectHandle ||
			got[i].PropertyCode != props[i].PropertyCode ||
			got[i].DataType != props[i].DataType {
			t.Errorf("element %d: got %+v want %+v", i, got[i], props[i])
		}
		if got[i].Value != props[i].Value {
			t.Errorf("element %d value: got %#v want %#v", i, got[i].Value, props[i].Value)
		}
	}
}

func TestObjectPropListTruncatedElementKeepsEarlier(t *testing.T) {
	// A declared count that overruns the actual element data - as
	// happens when a trailing element is truncated or uses a data type
	// this codec's reflect-based scalar decoder can't represent - must
	// stop cleanly rather than panic, leaving earlier elements intact.
	known := []ObjectProp{
		{ObjectHandle: 1, PropertyCode: OPC_ObjectFileName, DataType: DTC_STR, Value: "a.jpg"},
	}
	raw, err := EncodeObjectPropList(known)
	if err != nil {
		t.Fatalf("EncodeObjectPropList: %v", err)
	}
	raw[0] = 2 // count now claims two elements but only one is present

	got, err := DecodeObjectPropList(bytes.NewReader(raw))
	if err == nil {
		t.Fatalf("expected a decode error for the truncated second element")
	}
	if len(got) != 1 {
		t.Fatalf("got %d elements, want the first element preserved", len(got))
	}
	if got[0].Value != "a.jpg" {
		t.Errorf("got %#v, want the first element's value preserved", got[0].Value)
	}
}

// TestObjectPropListSkipsUnrepresentedArrayElement exercises the other
// half of the property-list parser's tolerance property: a genuine,
// well-formed element whose data type this codec has no Go
// representation for (an array-kind selector) must be skipped in
// place, not treated as a decode failure, so every sibling property -
// including ones that follow it - still comes back.
func TestObjectPropListSkipsUnrepresentedArrayElement(t *testing.T) {
	var buf bytes.Buffer
	write := func(v interface{}) {
		if err := binary.Write(&buf, byteOrder, v); err != nil {
			t.Fatalf("binary.Write: %v", err)
		}
	}

	write(uint32(3)) // element count

	// Element 0: a known scalar.
	write(uint32(1))       // object handle
	write(uint16(0x1001))  // property code
	write(uint16(DTC_STR)) // data type
	if err := encodeVariant(&buf, DTC_STR, "before"); err != nil {
		t.Fatalf("encoding element 0: %v", err)
	}

	// Element 1: an array-kind type with no Go representation - a
	// uint32 count prefix followed by that many fixed-width elements.
	write(uint32(2))                           // object handle
	write(uint16(0x1002))                      // property code
	write(uint16(DTC_UINT32 | DTC_ARRAY_MASK)) // data type
	write(uint32(3))                           // array element count
	write(uint32(0xAAAAAAAA))
	write(uint32(0xBBBBBBBB))
	write(uint32(0xCCCCCCCC))

	// Element 2: a known scalar after the unrepresented element.
	write(uint32(3))          // object handle
	write(uint16(0x1003))     // property code
	write(uint16(DTC_UINT16)) // data type
	write(uint16(0xBEEF))

	got, err := DecodeObjectPropList(&buf)
	if err != nil {
		t.Fatalf("DecodeObjectPropList: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d elements, want 3 (parser should skip past the unrepresented element)", len(got))
	}
	if got[0].Value != "before" {
		t.Errorf("element 0 value = %#v, want %q", got[0].Value, "before")
	}
	arr, ok := got[1].Value.(UnrepresentedArray)
	if !ok {
		t.Fatalf("element 1 value = %#v (%T), want UnrepresentedArray", got[1].Value, got[1].Value)
	}
	if arr.Count != 3 || arr.Element != (DTC_UINT32|DTC_ARRAY_MASK) {
		t.Errorf("element 1 = %+v, want Count=3 Element=0x%x", arr, uint16(DTC_UINT32|DTC_ARRAY_MASK))
	}
	if got[2].Value != uint16(0xBEEF) {
		t.Errorf("element 2 value = %#v, want 0xBEEF", got[2].Value)
	}
}
