package mtp

import (
	"bytes"
	"io"

	"mtpzhost/ptp"
)

// This file is the operation catalogue of spec.md section 4.C: one
// typed method per MTP operation, each built on Session.RunTransaction.
// Operations that need a data phase wrap a bytes.Buffer as a
// ptp.ByteSink/ByteSource; operations that stream large payloads
// (GetObject/SendObject) take the caller's io.Writer/io.Reader directly
// so the whole object never needs to live in memory at once.

// GetDeviceInfo fetches and caches the device's capability descriptor.
// Subsequent calls return the cached value; the device only advertises
// it once per connection in practice.
func (s *Session) GetDeviceInfo() (*DeviceInfo, error) {
	var outerErr error
	s.infoOnce.Do(func() {
		var buf bytes.Buffer
		_, err := s.RunTransaction(OC_GetDeviceInfo, nil, ptp.NewByteSink(&buf), nil, 0)
		if err != nil {
			outerErr = err
			return
		}
		info := &DeviceInfo{}
		if err := Decode(&buf, info); err != nil {
			outerErr = err
			return
		}
		s.info = info
	})
	if outerErr != nil {
		return nil, outerErr
	}
	return s.info, nil
}

// Supports reports whether opCode appears in the cached DeviceInfo's
// OperationsSupported list; vendor-gated callers (mtpz, proplist) use
// this before issuing an operation the device never advertised.
func (s *Session) Supports(opCode uint16) bool {
	if s.info == nil {
		return false
	}
	for _, c := range s.info.OperationsSupported {
		if c == opCode {
			return true
		}
	}
	return false
}

// SupportsPlaybackFormat reports whether the cached DeviceInfo's
// PlaybackFormats list includes formatCode - the way callers check for
// a vendor object format such as ObjectFormat::Artist, which has no
// corresponding operation code to probe with Supports.
func (s *Session) SupportsPlaybackFormat(formatCode uint16) bool {
	if s.info == nil {
		return false
	}
	for _, c := range s.info.PlaybackFormats {
		if c == formatCode {
			return true
		}
	}
	return false
}

func (s *Session) GetStorageIDs() ([]uint32, error) {
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_GetStorageIDs, nil, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return nil, err
	}
	var arr Uint32Array
	if err := Decode(&buf, &arr); err != nil {
		return nil, err
	}
	return arr.Values, nil
}

func (s *Session) GetStorageInfo(id uint32) (*StorageInfo, error) {
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_GetStorageInfo, []uint32{id}, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return nil, err
	}
	info := &StorageInfo{}
	if err := Decode(&buf, info); err != nil {
		return nil, err
	}
	return info, nil
}

// GetObjectHandles lists the objects under parent on storageID. Per
// spec.md section 4.C, storageID of 0xFFFFFFFF means "all storages" and
// parent of 0xFFFFFFFF means "objects directly under the storage root".
func (s *Session) GetObjectHandles(storageID, objFormatCode, parent uint32) ([]uint32, error) {
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_GetObjectHandles, []uint32{storageID, objFormatCode, parent}, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return nil, err
	}
	var arr Uint32Array
	if err := Decode(&buf, &arr); err != nil {
		return nil, err
	}
	return arr.Values, nil
}

func (s *Session) GetObjectInfo(handle uint32) (*ObjectInfo, error) {
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_GetObjectInfo, []uint32{handle}, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return nil, err
	}
	info := &ObjectInfo{}
	if err := Decode(&buf, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Session) GetNumObjects(storageID uint32, formatCode uint16, parent uint32) (uint32, error) {
	rep, err := s.runNoData(OC_GetNumObjects, []uint32{storageID, uint32(formatCode), parent})
	if err != nil {
		return 0, err
	}
	if len(rep.Param) == 0 {
		return 0, &ProtocolError{Msg: "GetNumObjects: response missing count parameter"}
	}
	return rep.Param[0], nil
}

// GetObject streams the full object payload to w. Large files are
// written incrementally; the whole object is never buffered in memory.
func (s *Session) GetObject(handle uint32, w io.Writer) error {
	_, err := s.RunTransaction(OC_GetObject, []uint32{handle}, ptp.NewByteSink(w), nil, s.DataTimeout)
	return err
}

// GetPartialObject fetches size bytes starting at offset, per spec.md
// section 4.C's streamed-download affordance.
func (s *Session) GetPartialObject(handle uint32, offset, size uint32, w io.Writer) (uint32, error) {
	rep, err := s.RunTransaction(OC_GetPartialObject, []uint32{handle, offset, size}, ptp.NewByteSink(w), nil, s.DataTimeout)
	if err != nil {
		return 0, err
	}
	if len(rep.Param) == 0 {
		return 0, nil
	}
	return rep.Param[0], nil
}

func (s *Session) GetThumb(handle uint32, w io.Writer) error {
	_, err := s.RunTransaction(OC_GetThumb, []uint32{handle}, ptp.NewByteSink(w), nil, s.DataTimeout)
	return err
}

func (s *Session) DeleteObject(handle uint32) error {
	_, err := s.runNoData(OC_DeleteObject, []uint32{handle, 0})
	return err
}

// MoveObject relocates handle under newParent (optionally onto a
// different storage); devices that don't support OC_MoveObject return
// NotSupported so callers can fall back to copy+delete.
func (s *Session) MoveObject(handle, storageID, newParent uint32) error {
	if !s.Supports(OC_MoveObject) {
		return &NotSupported{What: "MoveObject"}
	}
	_, err := s.runNoData(OC_MoveObject, []uint32{handle, storageID, newParent})
	return err
}

// SendObjectInfo announces the metadata for an object about to be
// uploaded, reserving a handle; the actual bytes follow via SendObject.
func (s *Session) SendObjectInfo(storageID, parent uint32, info *ObjectInfo) (respStorageID, respParent, handle uint32, err error) {
	var buf bytes.Buffer
	if err = Encode(&buf, info); err != nil {
		return
	}
	rep, err := s.RunTransaction(OC_SendObjectInfo, []uint32{storageID, parent}, nil, ptp.NewByteSource(&buf, int64(buf.Len())), 0)
	if err != nil {
		return
	}
	if len(rep.Param) < 3 {
		err = &ProtocolError{Msg: "SendObjectInfo: response missing parameters"}
		return
	}
	return rep.Param[0], rep.Param[1], rep.Param[2], nil
}

// SendObject uploads the object body previously announced by
// SendObjectInfo. size must match the CompressedSize given there.
func (s *Session) SendObject(r io.Reader, size int64) error {
	_, err := s.RunTransaction(OC_SendObject, nil, nil, ptp.NewByteSource(r, size), s.DataTimeout)
	return err
}

// RootParent is the pseudo-handle meaning "no parent" - the storage's
// root folder - in both SendObjectInfo's parent parameter and
// GetObjectHandles' parent filter.
const RootParent = 0xFFFFFFFF

// CreateDirectory announces and sends an empty Association object,
// the standard two-step MTP folder creation sequence.
func (s *Session) CreateDirectory(name string, parent, storageID uint32) (uint32, error) {
	info := &ObjectInfo{
		StorageID:       storageID,
		ObjectFormat:    OFC_Association,
		AssociationType: 1, // generic folder
		ParentObject:    parent,
		Filename:        name,
	}
	_, _, handle, err := s.SendObjectInfo(storageID, parent, info)
	if err != nil {
		return 0, err
	}
	if err := s.SendObject(bytes.NewReader(nil), 0); err != nil {
		return 0, err
	}
	return handle, nil
}

func (s *Session) GetDevicePropDesc(propCode uint16) (*DevicePropDesc, error) {
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_GetDevicePropDesc, []uint32{uint32(propCode)}, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return nil, err
	}
	desc := &DevicePropDesc{}
	if err := desc.Decode(&buf); err != nil {
		return nil, err
	}
	return desc, nil
}

func (s *Session) GetDevicePropValue(propCode uint16, dest interface{}) error {
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_GetDevicePropValue, []uint32{uint32(propCode)}, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return err
	}
	return Decode(&buf, dest)
}

func (s *Session) SetDevicePropValue(propCode uint16, src interface{}) error {
	var buf bytes.Buffer
	if err := Encode(&buf, src); err != nil {
		return err
	}
	_, err := s.RunTransaction(OC_SetDevicePropValue, []uint32{uint32(propCode)}, nil, ptp.NewByteSource(&buf, int64(buf.Len())), 0)
	return err
}

func (s *Session) ResetDevicePropValue(propCode uint16) error {
	_, err := s.runNoData(OC_ResetDevicePropValue, []uint32{uint32(propCode)})
	return err
}

func (s *Session) GetObjectPropsSupported(objFormatCode uint16) ([]uint16, error) {
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_MTP_GetObjectPropsSupported, []uint32{uint32(objFormatCode)}, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return nil, err
	}
	var arr Uint16Array
	if err := Decode(&buf, &arr); err != nil {
		return nil, err
	}
	return arr.Values, nil
}

func (s *Session) GetObjectPropDesc(objPropCode, objFormatCode uint16) (*ObjectPropDesc, error) {
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_MTP_GetObjectPropDesc, []uint32{uint32(objPropCode), uint32(objFormatCode)}, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return nil, err
	}
	desc := &ObjectPropDesc{}
	if err := desc.Decode(&buf); err != nil {
		return nil, err
	}
	return desc, nil
}

func (s *Session) GetObjectPropValue(handle uint32, propCode uint16, dest interface{}) error {
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_MTP_GetObjectPropValue, []uint32{handle, uint32(propCode)}, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return err
	}
	return Decode(&buf, dest)
}

func (s *Session) SetObjectPropValue(handle uint32, propCode uint16, src interface{}) error {
	var buf bytes.Buffer
	if err := Encode(&buf, src); err != nil {
		return err
	}
	_, err := s.RunTransaction(OC_MTP_SetObjectPropValue, []uint32{handle, uint32(propCode)}, nil, ptp.NewByteSource(&buf, int64(buf.Len())), 0)
	return err
}

// GetObjectStringProperty is a single-property convenience wrapper
// around GetObjectPropValue for the common case of a string-typed
// property such as ObjectFilename, Name, or Artist.
func (s *Session) GetObjectStringProperty(handle uint32, propCode uint16) (string, error) {
	var v StringValue
	if err := s.GetObjectPropValue(handle, propCode, &v); err != nil {
		return "", err
	}
	return v.Value, nil
}

// SetObjectStringProperty is SetObjectPropValue's string counterpart.
func (s *Session) SetObjectStringProperty(handle uint32, propCode uint16, value string) error {
	return s.SetObjectPropValue(handle, propCode, &StringValue{Value: value})
}

// GetObjectUint32Property reads a uint32-typed property such as
// ArtistId or Track.
func (s *Session) GetObjectUint32Property(handle uint32, propCode uint16) (uint32, error) {
	var v Uint32Value
	if err := s.GetObjectPropValue(handle, propCode, &v); err != nil {
		return 0, err
	}
	return v.Value, nil
}

// SetObjectUint32Property is GetObjectUint32Property's write
// counterpart.
func (s *Session) SetObjectUint32Property(handle uint32, propCode uint16, value uint32) error {
	return s.SetObjectPropValue(handle, propCode, &Uint32Value{Value: value})
}

// GetObjectReferences reads the handle's reference list, used by
// playlists and by Zune-style album/artist linkage.
func (s *Session) GetObjectReferences(handle uint32) ([]uint32, error) {
	if !s.Supports(OC_MTP_GetObjectReferences) {
		return nil, &NotSupported{What: "GetObjectReferences"}
	}
	var buf bytes.Buffer
	_, err := s.RunTransaction(OC_MTP_GetObjectReferences, []uint32{handle}, ptp.NewByteSink(&buf), nil, 0)
	if err != nil {
		return nil, err
	}
	var arr Uint32Array
	if err := Decode(&buf, &arr); err != nil {
		return nil, err
	}
	return arr.Values, nil
}

func (s *Session) SetObjectReferences(handle uint32, refs []uint32) error {
	if !s.Supports(OC_MTP_SetObjectReferences) {
		return &NotSupported{What: "SetObjectReferences"}
	}
	var buf bytes.Buffer
	if err := Encode(&buf, &Uint32Array{Values: refs}); err != nil {
		return err
	}
	_, err := s.RunTransaction(OC_MTP_SetObjectReferences, []uint32{handle}, nil, ptp.NewByteSource(&buf, int64(buf.Len())), 0)
	return err
}
