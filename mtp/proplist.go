package mtp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"

	"mtpzhost/ptp"
)

// ObjectProp is one element of an object property list, the flat
// array format opcodes 0x9805 (GetObjPropList) and 0x9806
// (SetObjPropList) use to batch many properties across many objects
// into a single data phase.
type ObjectProp struct {
	ObjectHandle uint32
	PropertyCode uint16
	DataType     DataTypeSelector
	Value        DataDependentType
}

// UnrepresentedArray is the Value of an ObjectProp whose DataType is
// an array-kind code (DTC_ARRAY_MASK set) this codec has no Go
// representation for - the reflect-based Encode/Decode in encoding.go
// has no generic Array-kind case. decodeVariant still reads (and
// discards) exactly Count elements of Element's width so the stream
// stays in sync and sibling properties keep decoding.
type UnrepresentedArray struct {
	Element DataTypeSelector
	Count   int
}

// DecodeObjectPropList parses the element array: a uint32 count
// followed by (handle, property code, data type, variant value)
// tuples.
//
// An element whose data type is entirely unrecognized - not a known
// scalar, not DTC_STR, and not an array of either - cannot be sized,
// so decoding that element fails and aborts the whole list: there is
// no way to know how many bytes to skip to resync with the next
// element. Array-kind elements of a known base type are sized and
// skipped via UnrepresentedArray instead of failing, since their
// uint32 count prefix and fixed-width elements make their length on
// the wire always knowable.
func DecodeObjectPropList(r io.Reader) ([]ObjectProp, error) {
	var count uint32
	if err := binary.Read(r, byteOrder, &count); err != nil {
		return nil, err
	}

	props := make([]ObjectProp, 0, count)
	for i := uint32(0); i < count; i++ {
		var handle uint32
		var propCode, dataType uint16
		if err := binary.Read(r, byteOrder, &handle); err != nil {
			return props, err
		}
		if err := binary.Read(r, byteOrder, &propCode); err != nil {
			return props, err
		}
		if err := binary.Read(r, byteOrder, &dataType); err != nil {
			return props, err
		}
		val, err := decodeVariant(r, DataTypeSelector(dataType))
		if err != nil {
			return props, fmt.Errorf("mtp: proplist element %d (property 0x%x): %w", i, propCode, err)
		}
		props = append(props, ObjectProp{
			ObjectHandle: handle,
			PropertyCode: propCode,
			DataType:     DataTypeSelector(dataType),
			Value:        val,
		})
	}
	return props, nil
}

func decodeVariant(r io.Reader, selector DataTypeSelector) (val DataDependentType, err error) {
	defer func() {
		if p := recover(); p != nil {
			val = nil
			err = fmt.Errorf("unsupported property data type 0x%x: %v", uint16(selector), p)
		}
	}()

	if selector == DTC_STR {
		return decodeStr(r)
	}
	if selector == DTC_UINT128 {
		buf := make([]byte, 16)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return RawFixedBytes(buf), nil
	}
	if selector&DTC_ARRAY_MASK != 0 {
		return decodeUnrepresentedArray(r, selector&^DTC_ARRAY_MASK)
	}

	v := InstantiateType(DecodeHints{Selector: selector})
	if err := decodeField(r, v, DecodeHints{Selector: selector}); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// decodeUnrepresentedArray reads the uint32 count and then count
// elements of base (a string array's length-prefixed strings, or a
// scalar array's fixed-width elements), discarding the bytes, and
// returns an UnrepresentedArray describing what was skipped.
func decodeUnrepresentedArray(r io.Reader, base DataTypeSelector) (DataDependentType, error) {
	var count uint32
	if err := binary.Read(r, byteOrder, &count); err != nil {
		return nil, err
	}

	if base == DTC_STR {
		for i := uint32(0); i < count; i++ {
			if _, err := decodeStr(r); err != nil {
				return nil, err
			}
		}
		return UnrepresentedArray{Element: DTC_STR | DTC_ARRAY_MASK, Count: int(count)}, nil
	}

	width, ok := dataTypeWidth(base)
	if !ok {
		return nil, fmt.Errorf("unsupported array element data type 0x%x", uint16(base))
	}
	if _, err := io.CopyN(io.Discard, r, int64(count)*int64(width)); err != nil {
		return nil, err
	}
	return UnrepresentedArray{Element: base | DTC_ARRAY_MASK, Count: int(count)}, nil
}

// EncodeObjectPropList renders props in the same flat-array wire
// format DecodeObjectPropList reads.
func EncodeObjectPropList(props []ObjectProp) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, byteOrder, uint32(len(props))); err != nil {
		return nil, err
	}
	for _, p := range props {
		if err := binary.Write(&buf, byteOrder, p.ObjectHandle); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, byteOrder, p.PropertyCode); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, byteOrder, uint16(p.DataType)); err != nil {
			return nil, err
		}
		if err := encodeVariant(&buf, p.DataType, p.Value); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// RawFixedBytes encodes as exactly its own bytes, with no length
// prefix - the wire shape of a fixed-width scalar like Uint128 (e.g. a
// GUID), which this codec's reflect-based Slice encoder can't produce
// since it always writes an array-style uint32 length first.
type RawFixedBytes []byte

func encodeVariant(w io.Writer, selector DataTypeSelector, val DataDependentType) error {
	if selector == DTC_STR {
		s, _ := val.(string)
		return encodeStrField(w, reflect.ValueOf(&s).Elem())
	}
	if raw, ok := val.(RawFixedBytes); ok {
		_, err := w.Write(raw)
		return err
	}
	return encodeField(w, reflect.ValueOf(val))
}

// SendObjectPropList creates a new object directly from a property
// list in one round trip (opcode 0x9808), the batched alternative to
// SendObjectInfo + SetObjectPropList. format is the new object's
// ObjectFormatCode; size is its eventual byte size (0 for metadata-only
// objects with no data phase of their own, such as a Zune artist
// record). It returns the new object's handle.
func (s *Session) SendObjectPropList(storageID, parent uint32, format uint16, size uint32, props []ObjectProp) (uint32, error) {
	payload, err := EncodeObjectPropList(props)
	if err != nil {
		return 0, err
	}
	rep, err := s.RunTransaction(OC_MTP_SendObjectPropList, []uint32{storageID, parent, uint32(format), size}, nil, ptp.NewByteSource(bytes.NewReader(payload), int64(len(payload))), 0)
	if err != nil {
		return 0, err
	}
	if len(rep.Param) < 3 {
		return 0, &ProtocolError{Msg: "SendObjectPropList: response missing object handle"}
	}
	return rep.Param[2], nil
}

// GetObjectPropList fetches every property matching propCode (use
// 0xFFFFFFFF for "all properties") of handle and, when depth is
// nonzero, its descendants - the bulk alternative to issuing one
// GetObjectPropValue per object per property.
func (s *Session) GetObjectPropList(handle, propCode, depth uint32) ([]ObjectProp, error) {
	return s.GetObjectPropertyList(handle, 0, propCode, 0, depth)
}

// GetObjectPropertyList is the fully general form of opcode 0x9805:
// handle may be RootParent to list across an entire storage, format
// filters to one ObjectFormatCode (0 for "any"), and groupCode selects
// a device-defined property group (0 for "none"). It is how Library
// construction pulls every existing Artist/AbstractAudioAlbum object
// in one round trip instead of walking the object tree by hand.
func (s *Session) GetObjectPropertyList(handle, format, propCode, groupCode, depth uint32) ([]ObjectProp, error) {
	if !s.Supports(OC_MTP_GetObjPropList) {
		return nil, &NotSupported{What: "GetObjectPropList"}
	}
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_MTP_GetObjPropList, []uint32{handle, format, propCode, groupCode, depth}, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return nil, err
	}
	return DecodeObjectPropList(&buf)
}

// SetObjectPropList batches property updates across possibly many
// objects in a single transaction.
func (s *Session) SetObjectPropList(props []ObjectProp) error {
	if !s.Supports(OC_MTP_SetObjPropList) {
		return &NotSupported{What: "SetObjectPropList"}
	}
	payload, err := EncodeObjectPropList(props)
	if err != nil {
		return err
	}
	_, err = s.RunTransaction(OC_MTP_SetObjPropList, nil, nil, ptp.NewByteSource(bytes.NewReader(payload), int64(len(payload))), 0)
	return err
}
